package intents

import (
	"context"
	"errors"

	"github.com/radieske/contest-wager-ledger/internal/wager-service/domain"
)

// ErrNotPending indica que a intenção já está em estado terminal; a transição não foi aplicada
var ErrNotPending = errors.New("intent is not pending")

// Store guarda as intenções de aposta e aplica as transições de estado.
//
// Resolve faz compare-and-set a partir de PENDING: aplica mutate e grava o novo
// estado. Se a intenção não estiver mais pendente, devolve o registro atual com
// ErrNotPending.
type Store interface {
	Create(ctx context.Context, in domain.Intent) error
	Get(ctx context.Context, id string) (domain.Intent, error)
	Resolve(ctx context.Context, id string, to domain.IntentState, mutate func(*domain.Intent)) (domain.Intent, error)
}

func resolve(in *domain.Intent, to domain.IntentState, mutate func(*domain.Intent)) error {
	if in.State != domain.StatePending {
		return ErrNotPending
	}
	if mutate != nil {
		mutate(in)
	}
	in.State = to
	return nil
}
