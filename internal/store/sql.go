package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cardroom/internal/engine"
)

// SQLStore is the durable relational store for users, wallets, tables
// and seats. All chip movements against the wallet run inside a single
// transaction with an append-only ledger row.
type SQLStore struct {
	db     *gorm.DB
	logger *log.Logger
}

// NewSQLStore wraps a gorm handle.
func NewSQLStore(db *gorm.DB, logger *log.Logger) *SQLStore {
	return &SQLStore{db: db, logger: logger.WithPrefix("sql")}
}

// Migrate creates or updates the schema.
func (s *SQLStore) Migrate() error {
	return s.db.AutoMigrate(&User{}, &Wallet{}, &LedgerEntry{}, &Table{}, &SeatRow{})
}

// EnsureTable upserts a configured table by name and returns it.
func (s *SQLStore) EnsureTable(ctx context.Context, name string, maxSeats int, smallBlind, bigBlind int64) (*Table, error) {
	var table Table
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&table, "name = ?", name).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			table = Table{
				ID:         uuid.NewString(),
				Name:       name,
				MaxSeats:   maxSeats,
				SmallBlind: smallBlind,
				BigBlind:   bigBlind,
				Status:     TableWaiting,
			}
			return tx.Create(&table).Error
		}
		if err != nil {
			return err
		}
		table.MaxSeats = maxSeats
		table.SmallBlind = smallBlind
		table.BigBlind = bigBlind
		return tx.Save(&table).Error
	})
	if err != nil {
		return nil, err
	}
	return &table, nil
}

// EnsureUser upserts a user by username with a wallet, for development
// seeding.
func (s *SQLStore) EnsureUser(ctx context.Context, username, token string, balance int64) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&user, "username = ?", username).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = User{ID: uuid.NewString(), Username: username, Token: token}
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			return tx.Create(&Wallet{UserID: user.ID, Balance: balance}).Error
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserByToken resolves a bearer token to an account.
func (s *SQLStore) UserByToken(ctx context.Context, token string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("unknown token")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// TableMeta implements engine.SeatStore.
func (s *SQLStore) TableMeta(ctx context.Context, tableID string) (*engine.TableMeta, error) {
	var table Table
	err := s.db.WithContext(ctx).First(&table, "id = ?", tableID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, engine.Errf(engine.CodeTableNotFound, "table %s not found", tableID)
	}
	if err != nil {
		return nil, err
	}
	return &engine.TableMeta{
		MaxSeats:   table.MaxSeats,
		SmallBlind: table.SmallBlind,
		BigBlind:   table.BigBlind,
	}, nil
}

// OccupiedSeats implements engine.SeatStore.
func (s *SQLStore) OccupiedSeats(ctx context.Context, tableID string) ([]engine.SeatInfo, error) {
	var rows []SeatRow
	if err := s.db.WithContext(ctx).Where("table_id = ?", tableID).Order("seat_no").Find(&rows).Error; err != nil {
		return nil, err
	}
	seats := make([]engine.SeatInfo, 0, len(rows))
	for _, row := range rows {
		seats = append(seats, engine.SeatInfo{
			SeatNo:     row.SeatNo,
			UserID:     row.UserID,
			Username:   row.Username,
			Stack:      row.Stack,
			SittingOut: row.SittingOut,
		})
	}
	return seats, nil
}

// BeginHand marks the table running and the dealt-in seats playing.
func (s *SQLStore) BeginHand(ctx context.Context, tableID string, seatNos []int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Table{}).Where("id = ?", tableID).Update("status", TableRunning).Error; err != nil {
			return err
		}
		return tx.Model(&SeatRow{}).
			Where("table_id = ? AND seat_no IN ?", tableID, seatNos).
			Update("status", SeatPlaying).Error
	})
}

// FinishHand returns the table and its seats to their between-hands
// state.
func (s *SQLStore) FinishHand(ctx context.Context, tableID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Table{}).Where("id = ?", tableID).Update("status", TableWaiting).Error; err != nil {
			return err
		}
		return tx.Model(&SeatRow{}).
			Where("table_id = ? AND status = ?", tableID, SeatPlaying).
			Update("status", SeatSeated).Error
	})
}

// PersistStacks writes the per-seat stacks in one transaction after
// every applied action.
func (s *SQLStore) PersistStacks(ctx context.Context, tableID string, stacks map[int]int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for seatNo, stack := range stacks {
			if err := tx.Model(&SeatRow{}).
				Where("table_id = ? AND seat_no = ?", tableID, seatNo).
				Update("stack", stack).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// CashOutSeat credits the seat's full stack back to the wallet, writes
// the ledger row and frees the seat. Returns the cashed-out amount.
func (s *SQLStore) CashOutSeat(ctx context.Context, tableID, userID string) (int64, error) {
	var amount int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seat SeatRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&seat, "table_id = ? AND user_id = ?", tableID, userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return engine.Errf(engine.CodeNotSeated, "user %s is not seated at table %s", userID, tableID)
		}
		if err != nil {
			return err
		}
		amount = seat.Stack
		if err := creditWallet(tx, userID, tableID, LedgerCashOut, amount); err != nil {
			return err
		}
		return tx.Delete(&SeatRow{}, "table_id = ? AND seat_no = ?", tableID, seat.SeatNo).Error
	})
	return amount, err
}

// BuyIn atomically debits the wallet and takes the seat.
func (s *SQLStore) BuyIn(ctx context.Context, tableID string, seatNo int, userID, username string, amount int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var table Table
		err := tx.First(&table, "id = ?", tableID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return engine.Errf(engine.CodeTableNotFound, "table %s not found", tableID)
		}
		if err != nil {
			return err
		}
		if seatNo < 1 || seatNo > table.MaxSeats {
			return engine.Errf(engine.CodeSeatNotFound, "seat %d does not exist", seatNo)
		}

		var existing SeatRow
		err = tx.First(&existing, "table_id = ? AND seat_no = ?", tableID, seatNo).Error
		if err == nil {
			return engine.Errf(engine.CodeSeatTaken, "seat %d is taken", seatNo)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = tx.First(&existing, "table_id = ? AND user_id = ?", tableID, userID).Error
		if err == nil {
			return engine.Errf(engine.CodeSeatTaken, "user already seated at this table")
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := debitWallet(tx, userID, tableID, LedgerBuyIn, amount); err != nil {
			return err
		}
		return tx.Create(&SeatRow{
			TableID:  tableID,
			SeatNo:   seatNo,
			UserID:   userID,
			Username: username,
			Stack:    amount,
			Status:   SeatSeated,
		}).Error
	})
}

// Rebuy tops up a seated stack, capped at the table maximum.
func (s *SQLStore) Rebuy(ctx context.Context, tableID, userID string, amount, maxStack int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seat SeatRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&seat, "table_id = ? AND user_id = ?", tableID, userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return engine.Errf(engine.CodeNotSeated, "user %s is not seated at table %s", userID, tableID)
		}
		if err != nil {
			return err
		}
		if seat.Stack+amount > maxStack {
			return engine.Errf(engine.CodeRebuyExceeds, "rebuy would exceed table maximum of %d", maxStack)
		}
		if err := debitWallet(tx, userID, tableID, LedgerRebuy, amount); err != nil {
			return err
		}
		return tx.Model(&SeatRow{}).
			Where("table_id = ? AND seat_no = ?", tableID, seat.SeatNo).
			Update("stack", seat.Stack+amount).Error
	})
}

// SetSittingOut toggles the voluntary sit-out flag.
func (s *SQLStore) SetSittingOut(ctx context.Context, tableID, userID string, sittingOut bool) error {
	result := s.db.WithContext(ctx).Model(&SeatRow{}).
		Where("table_id = ? AND user_id = ?", tableID, userID).
		Update("sitting_out", sittingOut)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return engine.Errf(engine.CodeNotSeated, "user %s is not seated at table %s", userID, tableID)
	}
	return nil
}

// SeatOf returns the user's seat at the table, if any.
func (s *SQLStore) SeatOf(ctx context.Context, tableID, userID string) (*SeatRow, error) {
	var seat SeatRow
	err := s.db.WithContext(ctx).First(&seat, "table_id = ? AND user_id = ?", tableID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &seat, nil
}

// SeatsOfUser lists every table the user is seated at, for the
// one-active-table rule.
func (s *SQLStore) SeatsOfUser(ctx context.Context, userID string) ([]SeatRow, error) {
	var rows []SeatRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error
	return rows, err
}

// TableSummary is a lobby listing row.
type TableSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MaxSeats   int    `json:"maxSeats"`
	SmallBlind int64  `json:"smallBlind"`
	BigBlind   int64  `json:"bigBlind"`
	Status     string `json:"status"`
	Seated     int    `json:"seated"`
}

// ListTables returns lobby summaries.
func (s *SQLStore) ListTables(ctx context.Context) ([]TableSummary, error) {
	var tables []Table
	if err := s.db.WithContext(ctx).Order("name").Find(&tables).Error; err != nil {
		return nil, err
	}
	out := make([]TableSummary, 0, len(tables))
	for _, t := range tables {
		var seated int64
		if err := s.db.WithContext(ctx).Model(&SeatRow{}).Where("table_id = ?", t.ID).Count(&seated).Error; err != nil {
			return nil, err
		}
		out = append(out, TableSummary{
			ID:         t.ID,
			Name:       t.Name,
			MaxSeats:   t.MaxSeats,
			SmallBlind: t.SmallBlind,
			BigBlind:   t.BigBlind,
			Status:     t.Status,
			Seated:     int(seated),
		})
	}
	return out, nil
}

// debitWallet moves chips out of the wallet under a row lock and appends
// the ledger entry.
func debitWallet(tx *gorm.DB, userID, tableID, kind string, amount int64) error {
	if amount <= 0 {
		return engine.Errf(engine.CodeInvalidAmount, "amount must be positive")
	}
	var wallet Wallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&wallet, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Errf(engine.CodeWalletNotFound, "no wallet for user %s", userID)
	}
	if err != nil {
		return err
	}
	if wallet.Balance < amount {
		return engine.Errf(engine.CodeInsufficientFunds, "balance %d below %d", wallet.Balance, amount)
	}
	wallet.Balance -= amount
	if err := tx.Save(&wallet).Error; err != nil {
		return err
	}
	return tx.Create(&LedgerEntry{
		ID:      uuid.NewString(),
		UserID:  userID,
		TableID: tableID,
		Kind:    kind,
		Amount:  -amount,
		Balance: wallet.Balance,
	}).Error
}

// creditWallet moves chips into the wallet under a row lock and appends
// the ledger entry.
func creditWallet(tx *gorm.DB, userID, tableID, kind string, amount int64) error {
	var wallet Wallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&wallet, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Errf(engine.CodeWalletNotFound, "no wallet for user %s", userID)
	}
	if err != nil {
		return err
	}
	wallet.Balance += amount
	if err := tx.Save(&wallet).Error; err != nil {
		return err
	}
	return tx.Create(&LedgerEntry{
		ID:      uuid.NewString(),
		UserID:  userID,
		TableID: tableID,
		Kind:    kind,
		Amount:  amount,
		Balance: wallet.Balance,
	}).Error
}
