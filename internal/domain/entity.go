package domain

import (
	"time"
)

// BalanceRow is one entry of the persisted balance table.
type BalanceRow struct {
	Principal string `gorm:"primaryKey"`
	Amount    int64
}

func (BalanceRow) TableName() string { return "balances" }

// OwnershipRow is one entry of the persisted ownership table.
// Burned assets keep their row with an empty owner.
type OwnershipRow struct {
	AssetID uint64 `gorm:"primaryKey;autoIncrement:false"`
	Owner   string `gorm:"index"`
	Burned  bool
}

func (OwnershipRow) TableName() string { return "ownerships" }

// ListingRow is one entry of the persisted listing table.
type ListingRow struct {
	AssetID uint64 `gorm:"primaryKey;autoIncrement:false"`
	Seller  string `gorm:"index"`
	Price   int64
}

func (ListingRow) TableName() string { return "listings" }

// EscrowRow is one persisted escrow record.
type EscrowRow struct {
	ID                   uint64 `gorm:"primaryKey;autoIncrement:false"`
	Depositor            string `gorm:"index"`
	Counterparty         string `gorm:"index"`
	Amount               int64
	DepositorApproved    bool
	CounterpartyApproved bool
	State                string
}

func (EscrowRow) TableName() string { return "escrows" }

// CheckpointRow holds the counters that accompany a state checkpoint.
// There is exactly one row, ID 1.
type CheckpointRow struct {
	ID           uint `gorm:"primaryKey"`
	Seq          uint64
	LastAssetID  uint64
	LastEscrowID uint64
	Supply       int64
	UpdatedAt    time.Time
}

func (CheckpointRow) TableName() string { return "checkpoint" }

// JournalEntry is one sequenced command in the write-ahead journal.
type JournalEntry struct {
	Seq       uint64 `gorm:"primaryKey;autoIncrement:false"`
	RequestID string `gorm:"index"`
	Op        string
	Payload   string // JSON encoded command
	CreatedAt time.Time
}

func (JournalEntry) TableName() string { return "journal" }
