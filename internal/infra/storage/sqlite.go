package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"custody_go/internal/domain"
	"custody_go/internal/engine"
	"custody_go/internal/ledger"
	"custody_go/internal/registry"
	"custody_go/pkg/quant"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const checkpointRowID = 1

// Storage persists the command journal and state checkpoints in SQLite.
// It implements engine.Journal and engine.Source.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the database at path. An empty path selects
// the per-user default location.
func NewStorage(path string) (*Storage, error) {
	if path == "" {
		var err error
		if path, err = getDBPath(); err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, err
	}
	return &Storage{db: db}, nil
}

func migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&domain.BalanceRow{},
		&domain.OwnershipRow{},
		&domain.ListingRow{},
		&domain.EscrowRow{},
		&domain.CheckpointRow{},
		&domain.JournalEntry{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "Custody", "data", "custody.db"), nil
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Journal Operations
// ======================================================================================

// AppendCommand writes cmd to the journal. Sequence numbers are unique.
func (s *Storage) AppendCommand(ctx context.Context, cmd engine.Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command %d: %w", cmd.Seq, err)
	}
	entry := domain.JournalEntry{
		Seq:       cmd.Seq,
		RequestID: cmd.RequestID,
		Op:        string(cmd.Op),
		Payload:   string(payload),
		CreatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Create(&entry).Error
}

// LoadCommands returns journaled commands with Seq > afterSeq in order.
func (s *Storage) LoadCommands(ctx context.Context, afterSeq uint64) ([]engine.Command, error) {
	var entries []domain.JournalEntry
	err := s.db.WithContext(ctx).
		Where("seq > ?", afterSeq).
		Order("seq ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	cmds := make([]engine.Command, 0, len(entries))
	for _, e := range entries {
		var cmd engine.Command
		if err := json.Unmarshal([]byte(e.Payload), &cmd); err != nil {
			return nil, fmt.Errorf("decode journal entry %d: %w", e.Seq, err)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// CompactJournal deletes entries already covered by the stored checkpoint.
// Returns the number of deleted entries.
func (s *Storage) CompactJournal(ctx context.Context) (int64, error) {
	cp, ok, err := findCheckpoint(s.db.WithContext(ctx))
	if err != nil || !ok {
		return 0, err
	}
	res := s.db.WithContext(ctx).Where("seq <= ?", cp.Seq).Delete(&domain.JournalEntry{})
	return res.RowsAffected, res.Error
}

// ======================================================================================
// Checkpoint Operations
// ======================================================================================

// SaveCheckpoint replaces the stored state tables with snap in one transaction.
func (s *Storage) SaveCheckpoint(ctx context.Context, snap engine.Snapshot) error {
	balances := make([]domain.BalanceRow, 0, len(snap.Accounts))
	var supply int64
	for _, a := range snap.Accounts {
		balances = append(balances, domain.BalanceRow{Principal: string(a.Principal), Amount: int64(a.Balance)})
		supply += int64(a.Balance)
	}
	ownerships := make([]domain.OwnershipRow, 0, len(snap.Ownerships))
	for _, o := range snap.Ownerships {
		ownerships = append(ownerships, domain.OwnershipRow{AssetID: uint64(o.AssetID), Owner: string(o.Owner), Burned: o.Burned})
	}
	listings := make([]domain.ListingRow, 0, len(snap.Listings))
	for _, l := range snap.Listings {
		listings = append(listings, domain.ListingRow{AssetID: uint64(l.AssetID), Seller: string(l.Seller), Price: int64(l.Price)})
	}
	escrows := make([]domain.EscrowRow, 0, len(snap.Escrows))
	for _, r := range snap.Escrows {
		escrows = append(escrows, domain.EscrowRow{
			ID:                   uint64(r.ID),
			Depositor:            string(r.Depositor),
			Counterparty:         string(r.Counterparty),
			Amount:               int64(r.Amount),
			DepositorApproved:    r.DepositorApproved,
			CounterpartyApproved: r.CounterpartyApproved,
			State:                r.State.String(),
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := replaceAll(tx, &domain.BalanceRow{}, balances); err != nil {
			return err
		}
		if err := replaceAll(tx, &domain.OwnershipRow{}, ownerships); err != nil {
			return err
		}
		if err := replaceAll(tx, &domain.ListingRow{}, listings); err != nil {
			return err
		}
		if err := replaceAll(tx, &domain.EscrowRow{}, escrows); err != nil {
			return err
		}
		return tx.Save(&domain.CheckpointRow{
			ID:           checkpointRowID,
			Seq:          snap.Seq,
			LastAssetID:  uint64(snap.LastAssetID),
			LastEscrowID: uint64(snap.LastEscrowID),
			Supply:       supply,
			UpdatedAt:    time.Now(),
		}).Error
	})
}

func replaceAll[T any](tx *gorm.DB, model *T, rows []T) error {
	if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.CreateInBatches(rows, 500).Error
}

// findCheckpoint reads the checkpoint row without treating its absence as
// an error, so a fresh database logs nothing.
func findCheckpoint(db *gorm.DB) (cp domain.CheckpointRow, ok bool, err error) {
	res := db.Where("id = ?", checkpointRowID).Limit(1).Find(&cp)
	if res.Error != nil {
		return domain.CheckpointRow{}, false, res.Error
	}
	return cp, res.RowsAffected == 1, nil
}

// LoadCheckpoint reads the stored checkpoint. ok is false when none exists.
func (s *Storage) LoadCheckpoint(ctx context.Context) (snap engine.Snapshot, ok bool, err error) {
	db := s.db.WithContext(ctx)

	cp, found, err := findCheckpoint(db)
	if err != nil || !found {
		return engine.Snapshot{}, false, err // Not found is not an error
	}

	var (
		balances   []domain.BalanceRow
		ownerships []domain.OwnershipRow
		listings   []domain.ListingRow
		escrows    []domain.EscrowRow
	)
	if err = db.Order("principal").Find(&balances).Error; err != nil {
		return engine.Snapshot{}, false, err
	}
	if err = db.Order("asset_id").Find(&ownerships).Error; err != nil {
		return engine.Snapshot{}, false, err
	}
	if err = db.Order("asset_id").Find(&listings).Error; err != nil {
		return engine.Snapshot{}, false, err
	}
	if err = db.Order("id").Find(&escrows).Error; err != nil {
		return engine.Snapshot{}, false, err
	}

	snap = engine.Snapshot{
		Seq:          cp.Seq,
		LastAssetID:  domain.AssetID(cp.LastAssetID),
		LastEscrowID: domain.EscrowID(cp.LastEscrowID),
	}
	var supply int64
	for _, b := range balances {
		if b.Amount < 0 {
			return engine.Snapshot{}, false, domain.Errorf(domain.ErrInvariant, "negative balance for %s", b.Principal)
		}
		supply += b.Amount
		snap.Accounts = append(snap.Accounts, ledger.Account{Principal: domain.Principal(b.Principal), Balance: quant.Amount(b.Amount)})
	}
	if supply != cp.Supply {
		return engine.Snapshot{}, false, domain.Errorf(domain.ErrInvariant, "checkpoint supply %d, balances sum %d", cp.Supply, supply)
	}
	for _, o := range ownerships {
		snap.Ownerships = append(snap.Ownerships, registry.Ownership{AssetID: domain.AssetID(o.AssetID), Owner: domain.Principal(o.Owner), Burned: o.Burned})
	}
	for _, l := range listings {
		snap.Listings = append(snap.Listings, domain.Listing{AssetID: domain.AssetID(l.AssetID), Seller: domain.Principal(l.Seller), Price: quant.Amount(l.Price)})
	}
	for _, r := range escrows {
		state, err := domain.ParseEscrowState(r.State)
		if err != nil {
			return engine.Snapshot{}, false, fmt.Errorf("escrow %d: %w", r.ID, err)
		}
		snap.Escrows = append(snap.Escrows, domain.EscrowRecord{
			ID:                   domain.EscrowID(r.ID),
			Depositor:            domain.Principal(r.Depositor),
			Counterparty:         domain.Principal(r.Counterparty),
			Amount:               quant.Amount(r.Amount),
			DepositorApproved:    r.DepositorApproved,
			CounterpartyApproved: r.CounterpartyApproved,
			State:                state,
		})
	}
	return snap, true, nil
}
