package engine

import (
	"sort"

	"cardroom/poker"
)

// SeatView is the public per-seat state. Hole cards never appear here.
type SeatView struct {
	SeatNo       int    `json:"seatNo"`
	UserID       string `json:"userId,omitempty"`
	Username     string `json:"username,omitempty"`
	Stack        int64  `json:"stack"`
	Bet          int64  `json:"bet"`
	HasFolded    bool   `json:"hasFolded"`
	IsAllIn      bool   `json:"isAllIn"`
	IsDealer     bool   `json:"isDealer"`
	IsTurn       bool   `json:"isTurn"`
	IsSittingOut bool   `json:"isSittingOut"`
}

// GameView is the public per-hand state. The deck and pending board stay
// server-side.
type GameView struct {
	HandID         string       `json:"handId"`
	Round          Round        `json:"round"`
	Board          []poker.Card `json:"board"`
	PotTotal       int64        `json:"potTotal"`
	CurrentBet     int64        `json:"currentBet"`
	MinRaise       int64        `json:"minRaise"`
	TurnSeat       int          `json:"turnSeat"`
	TurnEndsAt     int64        `json:"turnEndsAt,omitempty"`
	IsDealingBoard bool         `json:"isDealingBoard"`
	AutoRunout     bool         `json:"autoRunout"`
}

// TableSnapshot is the full public snapshot broadcast to the table room.
type TableSnapshot struct {
	TableID string     `json:"tableId"`
	Seats   []SeatView `json:"seats"`
	Game    *GameView  `json:"game,omitempty"`
}

// Snapshot builds the public view of a running hand.
func Snapshot(rt *TableRuntime) *TableSnapshot {
	snap := &TableSnapshot{
		TableID: rt.TableID,
		Game: &GameView{
			HandID:         rt.HandID,
			Round:          rt.Round,
			Board:          rt.Board,
			PotTotal:       rt.Pot.Total,
			CurrentBet:     rt.CurrentBet,
			MinRaise:       rt.MinRaise,
			TurnSeat:       rt.CurrentTurnSeat,
			TurnEndsAt:     rt.TurnEndsAt,
			IsDealingBoard: rt.IsDealingBoard,
			AutoRunout:     rt.AutoRunout,
		},
	}
	if snap.Game.Board == nil {
		snap.Game.Board = []poker.Card{}
	}
	for _, p := range rt.Players {
		snap.Seats = append(snap.Seats, SeatView{
			SeatNo:       p.SeatNo,
			UserID:       p.UserID,
			Username:     p.Username,
			Stack:        p.Stack,
			Bet:          p.Bet,
			HasFolded:    p.HasFolded,
			IsAllIn:      p.IsAllIn,
			IsDealer:     p.SeatNo == rt.DealerSeat,
			IsTurn:       p.SeatNo == rt.CurrentTurnSeat,
			IsSittingOut: p.IsSittingOut,
		})
	}
	sort.Slice(snap.Seats, func(i, j int) bool { return snap.Seats[i].SeatNo < snap.Seats[j].SeatNo })
	return snap
}
