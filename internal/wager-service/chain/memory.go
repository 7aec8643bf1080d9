package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/radieske/contest-wager-ledger/internal/wager-service/domain"
)

// Memory simula a chain em memória. Uma transferência pode ficar "invisível"
// por algumas leituras para reproduzir a consistência eventual do RPC.
type Memory struct {
	mu        sync.Mutex
	transfers map[string]domain.Transfer
	hidden    map[string]int
	balances  map[string]uint64
	reads     map[string]int
}

func NewMemory() *Memory {
	return &Memory{
		transfers: make(map[string]domain.Transfer),
		hidden:    make(map[string]int),
		balances:  make(map[string]uint64),
		reads:     make(map[string]int),
	}
}

// AddTransfer registra uma transferência visível imediatamente
func (m *Memory) AddTransfer(t domain.Transfer) { m.AddTransferAfter(t, 0) }

// AddTransferAfter registra uma transferência que responde NotFound nas primeiras n leituras
func (m *Memory) AddTransferAfter(t domain.Transfer, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers[t.Signature] = t
	m.hidden[t.Signature] = n
}

func (m *Memory) SetBalance(address string, lamports uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[address] = lamports
}

// Reads retorna quantas vezes a assinatura foi consultada
func (m *Memory) Reads(signature string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[signature]
}

func (m *Memory) GetTransfer(ctx context.Context, signature string) (domain.Transfer, error) {
	if err := ctx.Err(); err != nil {
		return domain.Transfer{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads[signature]++

	t, ok := m.transfers[signature]
	if !ok {
		return domain.Transfer{}, domain.ErrNotFound
	}
	if m.hidden[signature] > 0 {
		m.hidden[signature]--
		return domain.Transfer{}, domain.ErrNotFound
	}
	return t, nil
}

func (m *Memory) Balance(ctx context.Context, address string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[address], nil
}

// MemorySigner é uma carteira sobre a chain em memória
type MemorySigner struct {
	Chain *Memory
	From  string
	// Approve simula a confirmação do usuário na carteira; nil aprova tudo
	Approve func(to string, lamports uint64) bool
}

func (s *MemorySigner) Address() string { return s.From }

func (s *MemorySigner) SendTransfer(_ context.Context, to string, lamports uint64) (string, error) {
	if s.Approve != nil && !s.Approve(to, lamports) {
		return "", domain.ErrUserRejected
	}

	s.Chain.mu.Lock()
	defer s.Chain.mu.Unlock()

	bal := s.Chain.balances[s.From]
	if bal < lamports {
		return "", fmt.Errorf("%w: have %d, need %d", domain.ErrInsufficientFunds, bal, lamports)
	}
	s.Chain.balances[s.From] = bal - lamports
	s.Chain.balances[to] += lamports

	sig := uuid.NewString()
	s.Chain.transfers[sig] = domain.Transfer{
		Signature: sig,
		Payer:     s.From,
		Recipient: to,
		Lamports:  lamports,
	}
	return sig, nil
}
