package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorf(t *testing.T) {
	err := Errorf(ErrNotOwner, "asset %d held by %s", 7, "alice")

	if !errors.Is(err, ErrNotOwner) {
		t.Error("Expected error to wrap ErrNotOwner")
	}
	if err.Error() != "not owner: asset 7 held by alice" {
		t.Errorf("Error message = %q", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	t.Run("wrapped twice", func(t *testing.T) {
		inner := Errorf(ErrInsufficientBalance, "need %d", 10)
		outer := fmt.Errorf("buy: %w", inner)
		if KindOf(outer) != ErrInsufficientBalance {
			t.Errorf("KindOf = %v, want ErrInsufficientBalance", KindOf(outer))
		}
	})

	t.Run("plain error", func(t *testing.T) {
		if KindOf(errors.New("boom")) != nil {
			t.Error("KindOf should be nil for plain errors")
		}
	})

	t.Run("nil", func(t *testing.T) {
		if KindOf(nil) != nil {
			t.Error("KindOf(nil) should be nil")
		}
	})
}

func TestOpError(t *testing.T) {
	err := &OpError{Op: "buy", Seq: 3, Err: Errorf(ErrNotListed, "asset %d", 1)}

	if !errors.Is(err, ErrNotListed) {
		t.Error("Expected OpError to unwrap to ErrNotListed")
	}
	if err.Error() != "buy: not listed: asset 1" {
		t.Errorf("Error message = %q", err.Error())
	}
}

func TestConfigError(t *testing.T) {
	baseErr := errors.New("missing value")
	err := &ConfigError{Field: "ledger.owner", Err: baseErr}

	expected := "config error [ledger.owner]: missing value"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, baseErr) {
		t.Error("Expected ConfigError to wrap baseErr")
	}
}
