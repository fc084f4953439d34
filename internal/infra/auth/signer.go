// Package auth signs and verifies API requests with a per-principal HMAC key.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"sync"
	"time"

	"custody_go/internal/domain"

	"github.com/google/uuid"
)

const (
	HeaderPrincipal = "X-Custody-Principal"
	HeaderSign      = "X-Custody-Sign"
	HeaderTimestamp = "X-Custody-Timestamp"
	HeaderNonce     = "X-Custody-Nonce"
)

const (
	maxNonceLen = 64
	// DefaultMaxNonces bounds the replay window's memory.
	DefaultMaxNonces = 100_000
)

// Signer produces request headers for one principal.
type Signer struct {
	principal domain.Principal
	secret    string
}

// NewSigner creates a new Signer instance
func NewSigner(principal domain.Principal, secret string) *Signer {
	return &Signer{principal: principal, secret: secret}
}

// GenerateHeaders creates the necessary headers for a request
// method: GET, POST, etc.
// path: /v1/commands (no host, no query)
// body: json string (empty if none)
// Every call draws a fresh nonce, so each header set is good for one request.
func (s *Signer) GenerateHeaders(method, path, body string) map[string]string {
	// Unix Timestamp in Milliseconds
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	nonce := uuid.NewString()
	return map[string]string{
		HeaderPrincipal: string(s.principal),
		HeaderSign:      computeHmacSha256(preSign(timestamp, nonce, method, path, body), s.secret),
		HeaderTimestamp: timestamp,
		HeaderNonce:     nonce,
		"Content-Type":  "application/json",
	}
}

func preSign(timestamp, nonce, method, path, body string) string {
	return timestamp + nonce + method + path + body
}

// Verifier checks signed requests against the configured keys.
type Verifier struct {
	keys    map[domain.Principal]string
	maxSkew time.Duration
	now     func() time.Time

	mu        sync.Mutex
	seen      map[nonceKey]time.Time // expiry of each accepted nonce
	maxNonces int
}

type nonceKey struct {
	principal domain.Principal
	nonce     string
}

// NewVerifier creates a verifier. A request whose timestamp is further than
// maxSkew from the server clock is rejected, and a nonce is accepted once
// per principal while its timestamp is inside that window.
func NewVerifier(keys map[string]string, maxSkew time.Duration) *Verifier {
	m := make(map[domain.Principal]string, len(keys))
	for p, k := range keys {
		m[domain.Principal(p)] = k
	}
	return &Verifier{
		keys:      m,
		maxSkew:   maxSkew,
		now:       time.Now,
		seen:      make(map[nonceKey]time.Time),
		maxNonces: DefaultMaxNonces,
	}
}

// Verify returns the authenticated principal of r, whose body was already
// read into body.
func (v *Verifier) Verify(r *http.Request, body []byte) (domain.Principal, error) {
	p := domain.Principal(r.Header.Get(HeaderPrincipal))
	secret, ok := v.keys[p]
	if !ok {
		return "", domain.Errorf(domain.ErrNotAuthorized, "unknown principal %q", p)
	}

	timestamp := r.Header.Get(HeaderTimestamp)
	ms, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return "", domain.Errorf(domain.ErrNotAuthorized, "bad timestamp %q", timestamp)
	}
	signedAt := time.UnixMilli(ms)
	now := v.now()
	skew := now.Sub(signedAt)
	if skew > v.maxSkew || skew < -v.maxSkew {
		return "", domain.Errorf(domain.ErrNotAuthorized, "timestamp outside %s window", v.maxSkew)
	}

	nonce := r.Header.Get(HeaderNonce)
	if nonce == "" || len(nonce) > maxNonceLen {
		return "", domain.Errorf(domain.ErrNotAuthorized, "missing or oversized nonce")
	}

	want := computeHmacSha256(preSign(timestamp, nonce, r.Method, r.URL.Path, string(body)), secret)
	if !hmac.Equal([]byte(want), []byte(r.Header.Get(HeaderSign))) {
		return "", domain.Errorf(domain.ErrNotAuthorized, "signature mismatch for %q", p)
	}

	if err := v.claim(nonceKey{principal: p, nonce: nonce}, signedAt.Add(v.maxSkew), now); err != nil {
		return "", err
	}
	return p, nil
}

// claim records key until expiry. A key already held is a replay.
func (v *Verifier) claim(key nonceKey, expiry, now time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if exp, ok := v.seen[key]; ok && !now.After(exp) {
		return domain.Errorf(domain.ErrNotAuthorized, "nonce %q already used by %q", key.nonce, key.principal)
	}
	if len(v.seen) >= v.maxNonces {
		for k, exp := range v.seen {
			if now.After(exp) {
				delete(v.seen, k)
			}
		}
		if len(v.seen) >= v.maxNonces {
			return domain.Errorf(domain.ErrNotAuthorized, "too many requests in flight")
		}
	}
	v.seen[key] = expiry
	return nil
}

func computeHmacSha256(message string, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
