package ledger

import (
	"context"

	"github.com/radieske/contest-wager-ledger/internal/wager-service/domain"
)

// Store é o ledger de apostas liquidadas.
//
// Commit é atômico por assinatura: se a assinatura já existe, devolve a aposta
// gravada anteriormente com created=false e nada muda. Caso contrário grava a
// aposta no fim do histórico da carteira e, se balance != nil, atualiza o
// snapshot de saldo, tudo ou nada.
type Store interface {
	Commit(ctx context.Context, bet domain.Bet, balance *uint64) (stored domain.Bet, created bool, err error)
	BetBySignature(ctx context.Context, signature string) (domain.Bet, bool, error)
	// GetAccount nunca falha por carteira desconhecida: devolve conta vazia
	GetAccount(ctx context.Context, walletAddress string) (domain.Account, error)
}
