package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/radieske/contest-wager-ledger/internal/wager-service/domain"
)

type memAccount struct {
	balance   uint64
	balanceAt time.Time
	bets      []domain.Bet
}

// MemoryStore mantém o ledger em memória (testes e execução local)
type MemoryStore struct {
	mu          sync.RWMutex
	bySignature map[string]domain.Bet
	accounts    map[string]*memAccount
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bySignature: make(map[string]domain.Bet),
		accounts:    make(map[string]*memAccount),
		now:         time.Now,
	}
}

func (m *MemoryStore) Commit(ctx context.Context, bet domain.Bet, balance *uint64) (domain.Bet, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Bet{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.bySignature[bet.Signature]; ok {
		return existing, false, nil
	}

	acc, ok := m.accounts[bet.WalletAddress]
	if !ok {
		acc = &memAccount{}
		m.accounts[bet.WalletAddress] = acc
	}
	acc.bets = append(acc.bets, bet)
	if balance != nil {
		acc.balance = *balance
		acc.balanceAt = m.now().UTC()
	}
	m.bySignature[bet.Signature] = bet
	return bet, true, nil
}

func (m *MemoryStore) BetBySignature(ctx context.Context, signature string) (domain.Bet, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Bet{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bySignature[signature]
	return b, ok, nil
}

func (m *MemoryStore) GetAccount(ctx context.Context, walletAddress string) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := domain.Account{WalletAddress: walletAddress, Bets: []domain.Bet{}}
	if acc, ok := m.accounts[walletAddress]; ok {
		out.BalanceLamports = acc.balance
		out.BalanceAt = acc.balanceAt
		out.Bets = append(out.Bets, acc.bets...)
	}
	return out, nil
}
