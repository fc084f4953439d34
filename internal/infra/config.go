package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"custody_go/internal/domain"

	"gopkg.in/yaml.v3"
)

// MaxDecimals bounds ledger.decimals so formatted amounts stay readable.
const MaxDecimals = 18

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Ledger struct {
		Owner    string `yaml:"owner"`
		Decimals int32  `yaml:"decimals"`
		Symbol   string `yaml:"symbol"`
	} `yaml:"ledger"`

	Engine struct {
		InboxSize          int    `yaml:"inbox_size"`
		CheckpointInterval uint64 `yaml:"checkpoint_interval"`
	} `yaml:"engine"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Server struct {
		Listen string `yaml:"listen"`
		Pprof  string `yaml:"pprof"`
	} `yaml:"server"`

	Auth struct {
		Keys          map[string]string `yaml:"keys"` // principal -> HMAC secret
		MaxSkewSec    int               `yaml:"max_skew_sec"`
		AllowUnsigned bool              `yaml:"allow_unsigned"` // development only
	} `yaml:"auth"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// DefaultConfig returns the settings used for keys the file leaves out.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "custody"
	cfg.Ledger.Symbol = "UNIT"
	cfg.Engine.InboxSize = 1024
	cfg.Engine.CheckpointInterval = 1000
	cfg.Server.Listen = ":8080"
	cfg.Auth.MaxSkewSec = 30
	cfg.Logging.Level = "info"
	cfg.Logging.File = "logs/app.log"
	return &cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over the defaults, applies env overrides and validates.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	owner := domain.Principal(c.Ledger.Owner)
	if owner.IsZero() {
		return &domain.ConfigError{Field: "ledger.owner", Err: errors.New("owner is required")}
	}
	if owner.IsReserved() {
		return &domain.ConfigError{Field: "ledger.owner", Err: fmt.Errorf("%q is a reserved principal", owner)}
	}
	if c.Ledger.Decimals < 0 || c.Ledger.Decimals > MaxDecimals {
		return &domain.ConfigError{Field: "ledger.decimals", Err: fmt.Errorf("must be within 0..%d, got %d", MaxDecimals, c.Ledger.Decimals)}
	}
	if c.Engine.InboxSize <= 0 {
		return &domain.ConfigError{Field: "engine.inbox_size", Err: errors.New("must be positive")}
	}
	if c.Server.Listen == "" {
		return &domain.ConfigError{Field: "server.listen", Err: errors.New("listen address is required")}
	}
	for p, secret := range c.Auth.Keys {
		if principal := domain.Principal(p); principal.IsZero() || principal.IsReserved() {
			return &domain.ConfigError{Field: "auth.keys", Err: fmt.Errorf("invalid principal %q", p)}
		}
		if secret == "" {
			return &domain.ConfigError{Field: "auth.keys", Err: fmt.Errorf("empty secret for %q", p)}
		}
	}
	if c.Auth.MaxSkewSec <= 0 {
		return &domain.ConfigError{Field: "auth.max_skew_sec", Err: errors.New("must be positive")}
	}
	return nil
}

// ValidateServe checks the settings only the API server needs. Without
// keys any client could name any caller, so serving requires either keys
// or an explicit opt-in.
func (c *Config) ValidateServe() error {
	if len(c.Auth.Keys) == 0 && !c.Auth.AllowUnsigned {
		return &domain.ConfigError{Field: "auth.keys", Err: errors.New("no signing keys configured; set auth.allow_unsigned for development")}
	}
	return nil
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if owner := os.Getenv("CUSTODY_OWNER"); owner != "" {
		cfg.Ledger.Owner = owner
	}
	if path := os.Getenv("CUSTODY_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if listen := os.Getenv("CUSTODY_LISTEN"); listen != "" {
		cfg.Server.Listen = listen
	}
}
