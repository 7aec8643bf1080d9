package domain

import "time"

// IntentState representa o ciclo de vida de uma intenção de aposta
// PENDING -> CONFIRMED | REJECTED | EXPIRED; estados terminais são imutáveis
type IntentState string

const (
	StatePending   IntentState = "PENDING"
	StateConfirmed IntentState = "CONFIRMED"
	StateRejected  IntentState = "REJECTED"
	StateExpired   IntentState = "EXPIRED"
)

// Terminal indica se o estado não admite mais transições
func (s IntentState) Terminal() bool {
	return s == StateConfirmed || s == StateRejected || s == StateExpired
}

// Participant é um competidor listado para o contest; nunca é alterado por apostas
type Participant struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Intent é a aposta declarada pelo usuário antes da verificação do pagamento on-chain
type Intent struct {
	ID             string      `json:"id"`
	ParticipantID  int         `json:"participantId"`
	WalletAddress  string      `json:"walletAddress"`
	AmountLamports uint64      `json:"amountLamports"`
	State          IntentState `json:"state"`
	Reason         string      `json:"reason,omitempty"` // kind do erro quando REJECTED/EXPIRED
	Signature      string      `json:"signature,omitempty"`
	BetID          string      `json:"betId,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	ExpiresAt      time.Time   `json:"expiresAt"`
	ResolvedAt     *time.Time  `json:"resolvedAt,omitempty"`
}

// Expired indica se a intenção pendente passou do prazo em relação a now
func (i Intent) Expired(now time.Time) bool {
	return i.State == StatePending && !now.Before(i.ExpiresAt)
}

// Bet é a aposta liquidada; criada somente após confirmação on-chain e única por assinatura
type Bet struct {
	ID             string    `json:"id"`
	IntentID       string    `json:"intentId"`
	WalletAddress  string    `json:"walletAddress"`
	ParticipantID  int       `json:"participantId"`
	AmountLamports uint64    `json:"amountLamports"`
	Signature      string    `json:"signature"`
	ConfirmedAt    time.Time `json:"confirmedAt"`
}

// Account agrega o histórico de apostas de uma carteira
// O saldo é apenas um snapshot informativo do saldo on-chain (não é custodial)
type Account struct {
	WalletAddress   string    `json:"walletAddress"`
	BalanceLamports uint64    `json:"balanceLamports"`
	BalanceAt       time.Time `json:"balanceAt,omitempty"`
	Bets            []Bet     `json:"bets"`
}

// Transfer é a visão de domínio de uma transferência nativa confirmada na chain,
// independente do formato da resposta RPC
type Transfer struct {
	Signature string
	Payer     string
	Recipient string
	Lamports  uint64
	Slot      uint64
	BlockTime time.Time
	Failed    bool
}
