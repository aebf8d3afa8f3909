package store

import "time"

// Table statuses.
const (
	TableWaiting = "WAITING"
	TableRunning = "RUNNING"
)

// Seat statuses.
const (
	SeatSeated  = "SEATED"
	SeatPlaying = "PLAYING"
)

// Ledger entry kinds. The ledger is append-only.
const (
	LedgerBuyIn   = "BUY_IN"
	LedgerRebuy   = "REBUY"
	LedgerCashOut = "CASH_OUT"
)

// User is an account resolved from a bearer token.
type User struct {
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	Username  string `gorm:"uniqueIndex;type:varchar(64);not null"`
	Token     string `gorm:"uniqueIndex;type:varchar(128);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Wallet holds a user's bankroll outside any table.
type Wallet struct {
	UserID    string `gorm:"primaryKey;type:varchar(64)"`
	Balance   int64  `gorm:"not null"`
	UpdatedAt time.Time
}

// LedgerEntry records one chip movement between wallet and table.
type LedgerEntry struct {
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	UserID    string `gorm:"index;type:varchar(64);not null"`
	TableID   string `gorm:"index;type:varchar(64)"`
	Kind      string `gorm:"type:varchar(16);not null"`
	Amount    int64  `gorm:"not null"`
	Balance   int64  `gorm:"not null"` // wallet balance after the movement
	CreatedAt time.Time
}

// Table is a configured cash-game table.
type Table struct {
	ID         string `gorm:"primaryKey;type:varchar(64)"`
	Name       string `gorm:"uniqueIndex;type:varchar(64);not null"`
	MaxSeats   int    `gorm:"not null"`
	SmallBlind int64  `gorm:"not null"`
	BigBlind   int64  `gorm:"not null"`
	Status     string `gorm:"type:varchar(16);not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SeatRow is an occupied seat; absence of a row means the seat is empty.
// The composite key keeps seatNo unique per table.
type SeatRow struct {
	TableID    string `gorm:"primaryKey;type:varchar(64)"`
	SeatNo     int    `gorm:"primaryKey"`
	UserID     string `gorm:"index;type:varchar(64);not null"`
	Username   string `gorm:"type:varchar(64);not null"`
	Stack      int64  `gorm:"not null"`
	Status     string `gorm:"type:varchar(16);not null"`
	SittingOut bool   `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName keeps the seats table plural and unprefixed.
func (SeatRow) TableName() string { return "seats" }
