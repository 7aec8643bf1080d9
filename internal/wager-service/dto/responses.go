package dto

import (
	"time"

	"github.com/radieske/contest-wager-ledger/internal/wager-service/domain"
)

type PlaceBetResponse struct {
	IntentID       string    `json:"intentId"`
	Status         string    `json:"status"` // PENDING
	Amount         string    `json:"amount"`
	AmountLamports uint64    `json:"amountLamports"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

type ConfirmBetResponse struct {
	Status    string   `json:"status"` // CONFIRMED | REJECTED
	Reason    string   `json:"reason,omitempty"`
	Bet       *BetView `json:"bet,omitempty"`
	Duplicate bool     `json:"duplicate,omitempty"`
}

type IntentResponse struct {
	IntentID       string     `json:"intentId"`
	ParticipantID  int        `json:"participantId"`
	WalletAddress  string     `json:"walletAddress"`
	Amount         string     `json:"amount"`
	AmountLamports uint64     `json:"amountLamports"`
	Status         string     `json:"status"`
	Reason         string     `json:"reason,omitempty"`
	Signature      string     `json:"signature,omitempty"`
	BetID          string     `json:"betId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	ExpiresAt      time.Time  `json:"expiresAt"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}

type BetView struct {
	ID             string    `json:"id"`
	IntentID       string    `json:"intentId"`
	ParticipantID  int       `json:"participantId"`
	WalletAddress  string    `json:"walletAddress"`
	Amount         string    `json:"amount"`
	AmountLamports uint64    `json:"amountLamports"`
	Signature      string    `json:"signature"`
	ConfirmedAt    time.Time `json:"confirmedAt"`
}

type AccountResponse struct {
	WalletAddress   string     `json:"walletAddress"`
	Balance         string     `json:"balance"` // snapshot on-chain em SOL
	BalanceLamports uint64     `json:"balanceLamports"`
	BalanceAt       *time.Time `json:"balanceAt,omitempty"`
	Bets            []BetView  `json:"bets"`
}

type ErrorResponse struct {
	Error   string `json:"error"` // kind estável, ex: "AMOUNT_MISMATCH"
	Message string `json:"message"`
}

func NewBetView(b domain.Bet) BetView {
	return BetView{
		ID:             b.ID,
		IntentID:       b.IntentID,
		ParticipantID:  b.ParticipantID,
		WalletAddress:  b.WalletAddress,
		Amount:         domain.FormatSOL(b.AmountLamports),
		AmountLamports: b.AmountLamports,
		Signature:      b.Signature,
		ConfirmedAt:    b.ConfirmedAt,
	}
}

func NewIntentResponse(in domain.Intent) IntentResponse {
	return IntentResponse{
		IntentID:       in.ID,
		ParticipantID:  in.ParticipantID,
		WalletAddress:  in.WalletAddress,
		Amount:         domain.FormatSOL(in.AmountLamports),
		AmountLamports: in.AmountLamports,
		Status:         string(in.State),
		Reason:         in.Reason,
		Signature:      in.Signature,
		BetID:          in.BetID,
		CreatedAt:      in.CreatedAt,
		ExpiresAt:      in.ExpiresAt,
		ResolvedAt:     in.ResolvedAt,
	}
}

func NewAccountResponse(a domain.Account) AccountResponse {
	out := AccountResponse{
		WalletAddress:   a.WalletAddress,
		Balance:         domain.FormatSOL(a.BalanceLamports),
		BalanceLamports: a.BalanceLamports,
		Bets:            make([]BetView, 0, len(a.Bets)),
	}
	if !a.BalanceAt.IsZero() {
		at := a.BalanceAt
		out.BalanceAt = &at
	}
	for _, b := range a.Bets {
		out.Bets = append(out.Bets, NewBetView(b))
	}
	return out
}
