package chain

import (
	"context"

	"github.com/radieske/contest-wager-ledger/internal/wager-service/domain"
)

// Query é a capacidade somente-leitura de consultar a chain por assinatura.
// Retorna domain.ErrNotFound quando a transação ainda não está visível.
type Query interface {
	GetTransfer(ctx context.Context, signature string) (domain.Transfer, error)
}

// BalanceReader lê o saldo nativo (em lamports) de um endereço
type BalanceReader interface {
	Balance(ctx context.Context, address string) (uint64, error)
}

// Signer é a capacidade de assinatura da carteira: envia uma transferência
// para o destino e devolve a assinatura da transação.
// Falha com domain.ErrUserRejected ou domain.ErrInsufficientFunds.
type Signer interface {
	Address() string
	SendTransfer(ctx context.Context, to string, lamports uint64) (string, error)
}
