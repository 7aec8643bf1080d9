package events

import "time"

// Evento emitido quando uma intenção de aposta é criada (PENDING)
type IntentCreated struct {
	EventID        string    `json:"event_id"`
	IntentID       string    `json:"intent_id"`
	ParticipantID  int       `json:"participant_id"`
	WalletAddress  string    `json:"wallet_address"`
	AmountLamports uint64    `json:"amount_lamports"`
	ExpiresAt      time.Time `json:"expires_at"`
	Ts             time.Time `json:"ts"`
}

// Evento emitido quando a assinatura foi confirmada e a aposta gravada no ledger
type BetSettled struct {
	EventID         string    `json:"event_id"`
	BetID           string    `json:"bet_id"`
	IntentID        string    `json:"intent_id"`
	ParticipantID   int       `json:"participant_id"`
	WalletAddress   string    `json:"wallet_address"`
	AmountLamports  uint64    `json:"amount_lamports"`
	Signature       string    `json:"signature"`
	ConfirmedAt     time.Time `json:"confirmed_at"`
	BalanceLamports *uint64   `json:"balance_lamports,omitempty"`
	Ts              time.Time `json:"ts"`
}

// Evento emitido quando a intenção termina REJECTED ou EXPIRED
type IntentRejected struct {
	EventID       string    `json:"event_id"`
	IntentID      string    `json:"intent_id"`
	WalletAddress string    `json:"wallet_address"`
	State         string    `json:"state"`  // "REJECTED" | "EXPIRED"
	Reason        string    `json:"reason"` // ex: "AMOUNT_MISMATCH"
	Signature     string    `json:"signature,omitempty"`
	Ts            time.Time `json:"ts"`
}
