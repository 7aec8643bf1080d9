package dto

import "github.com/shopspring/decimal"

type PlaceBetRequest struct {
	ParticipantID int             `json:"participantId"`
	WalletAddress string          `json:"walletAddress"`
	Amount        decimal.Decimal `json:"amount"` // em SOL, ex: 1.5 ou "1.5"
}

type ConfirmBetRequest struct {
	Signature string `json:"signature"`
}
