package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/contest-wager-ledger/internal/wager-service/chain"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/domain"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/intents"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/ledger"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/registry"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/verifier"
	"github.com/radieske/contest-wager-ledger/pkg/contracts/events"
)

const platform = "PLATFORM"

type recordingPublisher struct {
	mu       sync.Mutex
	created  []events.IntentCreated
	settled  []events.BetSettled
	rejected []events.IntentRejected
}

func (p *recordingPublisher) PublishIntentCreated(_ context.Context, e events.IntentCreated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *recordingPublisher) PublishBetSettled(_ context.Context, e events.BetSettled) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settled = append(p.settled, e)
	return nil
}

func (p *recordingPublisher) PublishIntentRejected(_ context.Context, e events.IntentRejected) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejected = append(p.rejected, e)
	return nil
}

type fixture struct {
	engine  *Engine
	chain   *chain.Memory
	ledger  ledger.Store
	intents *intents.MemoryStore
	publ    *recordingPublisher
	now     time.Time
}

func newFixture(t *testing.T, opts ...func(*Deps)) *fixture {
	t.Helper()
	reg, err := registry.New(registry.DefaultSeed)
	require.NoError(t, err)

	mem := chain.NewMemory()
	vcfg := verifier.DefaultConfig()
	vcfg.MaxAttempts = 3
	vcfg.InitialBackoff = time.Millisecond
	vcfg.MaxBackoff = time.Millisecond

	f := &fixture{
		chain:   mem,
		ledger:  ledger.NewMemoryStore(),
		intents: intents.NewMemoryStore(),
		publ:    &recordingPublisher{},
		now:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	deps := Deps{
		Registry:  reg,
		Intents:   f.intents,
		Ledger:    f.ledger,
		Verifier:  verifier.New(zap.NewNop(), mem, vcfg),
		Balances:  mem,
		Publisher: f.publ,
	}
	for _, o := range opts {
		o(&deps)
	}
	f.ledger = deps.Ledger

	f.engine = New(zap.NewNop(), Config{PlatformAddress: platform, IntentTTL: 15 * time.Minute}, deps)
	f.engine.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) pay(sig, payer string, lamports uint64) {
	f.chain.AddTransfer(domain.Transfer{Signature: sig, Payer: payer, Recipient: platform, Lamports: lamports})
}

func sol(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in, err := f.engine.CreateIntent(ctx, 2, "W1", sol("1.5"))
	require.NoError(t, err)
	assert.NotEmpty(t, in.ID)
	assert.Equal(t, domain.StatePending, in.State)
	assert.Equal(t, uint64(1_500_000_000), in.AmountLamports)
	assert.Equal(t, f.now.Add(15*time.Minute), in.ExpiresAt)

	stored, err := f.intents.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, in, stored)

	require.Len(t, f.publ.created, 1)
	assert.Equal(t, in.ID, f.publ.created[0].IntentID)
}

func TestCreateIntent_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name          string
		participantID int
		wallet        string
		amount        decimal.Decimal
		want          error
	}{
		{"zero amount", 2, "W1", sol("0"), domain.ErrInvalidAmount},
		{"negative amount", 2, "W1", sol("-1"), domain.ErrInvalidAmount},
		{"sub-lamport amount", 2, "W1", sol("0.0000000001"), domain.ErrInvalidAmount},
		{"empty wallet", 2, "  ", sol("1"), domain.ErrInvalidWallet},
		{"unknown participant", 99, "W1", sol("1"), domain.ErrUnknownParticipant},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.CreateIntent(ctx, tc.participantID, tc.wallet, tc.amount)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, f.publ.created)
}

func TestSubmitSignature_SettlesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pay("SIG1", "W1", 1_500_000_000)
	f.chain.SetBalance("W1", 8_500_000_000)

	var settled, dups int
	f.engine.Hooks.OnSettled = func(domain.Intent, domain.Bet) { settled++ }
	f.engine.Hooks.OnDuplicate = func(domain.Bet) { dups++ }

	in, err := f.engine.CreateIntent(ctx, 2, "W1", sol("1.5"))
	require.NoError(t, err)

	res, err := f.engine.SubmitSignature(ctx, in.ID, "SIG1")
	require.NoError(t, err)
	require.NotNil(t, res.Bet)
	assert.False(t, res.Duplicate)
	assert.Equal(t, domain.StateConfirmed, res.Intent.State)
	assert.Equal(t, "SIG1", res.Intent.Signature)
	assert.Equal(t, res.Bet.ID, res.Intent.BetID)
	assert.Equal(t, 2, res.Bet.ParticipantID)
	assert.Equal(t, uint64(1_500_000_000), res.Bet.AmountLamports)

	again, err := f.engine.SubmitSignature(ctx, in.ID, "SIG1")
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, res.Bet.ID, again.Bet.ID)

	acc, err := f.engine.GetAccount(ctx, "W1")
	require.NoError(t, err)
	require.Len(t, acc.Bets, 1)
	assert.Equal(t, "SIG1", acc.Bets[0].Signature)
	assert.Equal(t, uint64(8_500_000_000), acc.BalanceLamports)

	assert.Equal(t, 1, settled)
	assert.Equal(t, 1, dups)
	require.Len(t, f.publ.settled, 1)
	require.NotNil(t, f.publ.settled[0].BalanceLamports)
	assert.Equal(t, uint64(8_500_000_000), *f.publ.settled[0].BalanceLamports)
}

func TestSubmitSignature_AmountMismatchRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pay("SIG1", "W1", 1_500_000_000)
	f.pay("SIG2", "W1", 1_000_000_000)

	first, err := f.engine.CreateIntent(ctx, 2, "W1", sol("1.5"))
	require.NoError(t, err)
	_, err = f.engine.SubmitSignature(ctx, first.ID, "SIG1")
	require.NoError(t, err)

	var rejected []domain.Intent
	f.engine.Hooks.OnRejected = func(in domain.Intent) { rejected = append(rejected, in) }

	second, err := f.engine.CreateIntent(ctx, 2, "W1", sol("1.5"))
	require.NoError(t, err)
	res, err := f.engine.SubmitSignature(ctx, second.ID, "SIG2")
	assert.ErrorIs(t, err, domain.ErrAmountMismatch)
	assert.Nil(t, res.Bet)
	assert.Equal(t, domain.StateRejected, res.Intent.State)
	assert.Equal(t, "AMOUNT_MISMATCH", res.Intent.Reason)

	acc, err := f.engine.GetAccount(ctx, "W1")
	require.NoError(t, err)
	assert.Len(t, acc.Bets, 1, "rejected intent leaves the account unchanged")

	require.Len(t, rejected, 1)
	require.Len(t, f.publ.rejected, 1)
	assert.Equal(t, "AMOUNT_MISMATCH", f.publ.rejected[0].Reason)

	// intenção rejeitada é terminal
	_, err = f.engine.SubmitSignature(ctx, second.ID, "SIG2")
	assert.ErrorIs(t, err, domain.ErrIntentRejected)
}

func TestSubmitSignature_FinalMismatches(t *testing.T) {
	cases := []struct {
		name     string
		transfer domain.Transfer
		want     error
	}{
		{"wrong recipient", domain.Transfer{Signature: "S", Payer: "W1", Recipient: "OTHER", Lamports: 1_000_000_000}, domain.ErrRecipientMismatch},
		{"wrong payer", domain.Transfer{Signature: "S", Payer: "W9", Recipient: platform, Lamports: 1_000_000_000}, domain.ErrPayerMismatch},
		{"failed transaction", domain.Transfer{Signature: "S", Payer: "W1", Recipient: platform, Lamports: 1_000_000_000, Failed: true}, domain.ErrTransferFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.chain.AddTransfer(tc.transfer)

			in, err := f.engine.CreateIntent(ctx, 1, "W1", sol("1"))
			require.NoError(t, err)
			res, err := f.engine.SubmitSignature(ctx, in.ID, "S")
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, domain.StateRejected, res.Intent.State)
			assert.Equal(t, domain.Kind(tc.want), res.Intent.Reason)
		})
	}
}

func TestSubmitSignature_NotFoundAfterRetriesRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in, err := f.engine.CreateIntent(ctx, 1, "W1", sol("1"))
	require.NoError(t, err)
	res, err := f.engine.SubmitSignature(ctx, in.ID, "GHOST")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.StateRejected, res.Intent.State)
	assert.Equal(t, 3, f.chain.Reads("GHOST"))
}

func TestSubmitSignature_EventuallyVisible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.chain.AddTransferAfter(domain.Transfer{Signature: "LATE", Payer: "W1", Recipient: platform, Lamports: 1_000_000_000}, 2)

	in, err := f.engine.CreateIntent(ctx, 1, "W1", sol("1"))
	require.NoError(t, err)
	res, err := f.engine.SubmitSignature(ctx, in.ID, "LATE")
	require.NoError(t, err)
	assert.Equal(t, domain.StateConfirmed, res.Intent.State)
	assert.Equal(t, 3, f.chain.Reads("LATE"))
}

func TestSubmitSignature_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pay("SIG1", "W1", 1_500_000_000)

	in, err := f.engine.CreateIntent(ctx, 2, "W1", sol("1.5"))
	require.NoError(t, err)

	f.now = f.now.Add(15 * time.Minute)
	res, err := f.engine.SubmitSignature(ctx, in.ID, "SIG1")
	assert.ErrorIs(t, err, domain.ErrExpired)
	assert.Equal(t, domain.StateExpired, res.Intent.State)
	assert.Zero(t, f.chain.Reads("SIG1"), "expired intent is never verified")

	got, err := f.engine.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateExpired, got.State)

	acc, err := f.engine.GetAccount(ctx, "W1")
	require.NoError(t, err)
	assert.Empty(t, acc.Bets)
}

func TestGetIntent_ExpiresLazily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in, err := f.engine.CreateIntent(ctx, 2, "W1", sol("1.5"))
	require.NoError(t, err)

	got, err := f.engine.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, got.State)

	f.now = f.now.Add(time.Hour)
	got, err = f.engine.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateExpired, got.State)
	assert.Equal(t, "EXPIRED", got.Reason)
	require.Len(t, f.publ.rejected, 1)
	assert.Equal(t, "EXPIRED", f.publ.rejected[0].State)

	_, err = f.engine.GetIntent(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrUnknownIntent)
}

func TestSubmitSignature_ReusedForAnotherIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pay("SIG1", "W1", 1_000_000_000)

	a, err := f.engine.CreateIntent(ctx, 1, "W1", sol("1"))
	require.NoError(t, err)
	b, err := f.engine.CreateIntent(ctx, 1, "W1", sol("1"))
	require.NoError(t, err)

	_, err = f.engine.SubmitSignature(ctx, a.ID, "SIG1")
	require.NoError(t, err)

	res, err := f.engine.SubmitSignature(ctx, b.ID, "SIG1")
	assert.ErrorIs(t, err, domain.ErrSignatureReused)
	assert.Equal(t, domain.StatePending, res.Intent.State)

	acc, err := f.engine.GetAccount(ctx, "W1")
	require.NoError(t, err)
	assert.Len(t, acc.Bets, 1)
}

func TestSubmitSignature_ConfirmedIntentRefusesOtherSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pay("SIG1", "W1", 1_000_000_000)
	f.pay("SIG3", "W1", 1_000_000_000)

	in, err := f.engine.CreateIntent(ctx, 1, "W1", sol("1"))
	require.NoError(t, err)
	_, err = f.engine.SubmitSignature(ctx, in.ID, "SIG1")
	require.NoError(t, err)

	_, err = f.engine.SubmitSignature(ctx, in.ID, "SIG3")
	assert.ErrorIs(t, err, domain.ErrIntentClosed)
	assert.Zero(t, f.chain.Reads("SIG3"))
}

func TestSubmitSignature_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.SubmitSignature(ctx, "missing", "SIG1")
	assert.ErrorIs(t, err, domain.ErrUnknownIntent)

	in, err := f.engine.CreateIntent(ctx, 1, "W1", sol("1"))
	require.NoError(t, err)
	_, err = f.engine.SubmitSignature(ctx, in.ID, "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestSubmitSignature_ConcurrentSameSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pay("SIG1", "W1", 1_000_000_000)

	in, err := f.engine.CreateIntent(ctx, 1, "W1", sol("1"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	betIDs := make([]string, 8)
	for i := range betIDs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.engine.SubmitSignature(ctx, in.ID, "SIG1")
			if assert.NoError(t, err) && assert.NotNil(t, res.Bet) {
				betIDs[i] = res.Bet.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range betIDs {
		assert.Equal(t, betIDs[0], id)
	}
	acc, err := f.engine.GetAccount(ctx, "W1")
	require.NoError(t, err)
	assert.Len(t, acc.Bets, 1)
	assert.Len(t, f.publ.settled, 1)
}

// barrierVerifier segura todas as chamadas até n chegarem, depois confirma
type barrierVerifier struct {
	n       int
	mu      sync.Mutex
	arrived int
	gate    chan struct{}
}

func newBarrierVerifier(n int) *barrierVerifier {
	return &barrierVerifier{n: n, gate: make(chan struct{})}
}

func (b *barrierVerifier) Confirm(ctx context.Context, sig string, want verifier.Expected) (domain.Transfer, error) {
	b.mu.Lock()
	b.arrived++
	if b.arrived == b.n {
		close(b.gate)
	}
	b.mu.Unlock()

	select {
	case <-b.gate:
	case <-ctx.Done():
		return domain.Transfer{}, ctx.Err()
	}
	return domain.Transfer{Signature: sig, Payer: want.Payer, Recipient: want.Recipient, Lamports: want.Lamports}, nil
}

func TestSubmitSignature_ConcurrentCallersAllSeeCommittedBet(t *testing.T) {
	const callers = 4
	f := newFixture(t, func(d *Deps) { d.Verifier = newBarrierVerifier(callers) })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	in, err := f.engine.CreateIntent(ctx, 1, "W1", sol("1"))
	require.NoError(t, err)

	var settled int
	var mu sync.Mutex
	f.engine.Hooks.OnSettled = func(domain.Intent, domain.Bet) {
		mu.Lock()
		settled++
		mu.Unlock()
	}

	results := make([]Result, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.engine.SubmitSignature(ctx, in.ID, "SIG1")
		}(i)
	}
	wg.Wait()

	duplicates := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i], "caller %d", i)
		require.NotNil(t, results[i].Bet)
		assert.Equal(t, results[0].Bet.ID, results[i].Bet.ID)
		assert.Equal(t, domain.StateConfirmed, results[i].Intent.State)
		if results[i].Duplicate {
			duplicates++
		}
	}
	assert.Equal(t, callers-1, duplicates)
	assert.Equal(t, 1, settled)
	assert.Len(t, f.publ.settled, 1)

	acc, err := f.engine.GetAccount(ctx, "W1")
	require.NoError(t, err)
	assert.Len(t, acc.Bets, 1)
}

// holdingLedger segura o retorno do commit que criou a aposta até release fechar
type holdingLedger struct {
	ledger.Store
	release chan struct{}
}

func (h holdingLedger) Commit(ctx context.Context, bet domain.Bet, balance *uint64) (domain.Bet, bool, error) {
	stored, created, err := h.Store.Commit(ctx, bet, balance)
	if created {
		<-h.release
	}
	return stored, created, err
}

func TestSubmitSignature_CreatorLosingResolveStillPublishes(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, func(d *Deps) {
		d.Verifier = newBarrierVerifier(2)
		d.Ledger = holdingLedger{Store: ledger.NewMemoryStore(), release: release}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	in, err := f.engine.CreateIntent(ctx, 1, "W1", sol("1"))
	require.NoError(t, err)

	type outcome struct {
		res Result
		err error
	}
	out := make(chan outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			res, err := f.engine.SubmitSignature(ctx, in.ID, "SIG1")
			out <- outcome{res, err}
		}()
	}

	// quem não criou a aposta resolve a intenção primeiro
	first := <-out
	require.NoError(t, first.err)
	assert.True(t, first.res.Duplicate)
	assert.Empty(t, f.publ.settled)

	close(release)
	second := <-out
	require.NoError(t, second.err)
	assert.False(t, second.res.Duplicate)
	require.NotNil(t, second.res.Bet)
	assert.Equal(t, first.res.Bet.ID, second.res.Bet.ID)
	assert.Equal(t, domain.StateConfirmed, second.res.Intent.State)
	require.Len(t, f.publ.settled, 1)
	assert.Equal(t, second.res.Bet.ID, f.publ.settled[0].BetID)
}

type stubVerifier struct{ err error }

func (s stubVerifier) Confirm(context.Context, string, verifier.Expected) (domain.Transfer, error) {
	return domain.Transfer{}, s.err
}

func TestSubmitSignature_TimeoutKeepsPending(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Verifier = stubVerifier{err: domain.ErrVerifierTimeout} })
	ctx := context.Background()

	in, err := f.engine.CreateIntent(ctx, 1, "W1", sol("1"))
	require.NoError(t, err)
	res, err := f.engine.SubmitSignature(ctx, in.ID, "SIG1")
	assert.ErrorIs(t, err, domain.ErrVerifierTimeout)
	assert.Equal(t, domain.StatePending, res.Intent.State)

	stored, err := f.intents.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, stored.State)
}

type failingLedger struct{ ledger.Store }

func (failingLedger) Commit(context.Context, domain.Bet, *uint64) (domain.Bet, bool, error) {
	return domain.Bet{}, false, errors.New("connection refused")
}

func TestSubmitSignature_LedgerDownKeepsPending(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Ledger = failingLedger{Store: ledger.NewMemoryStore()} })
	ctx := context.Background()
	f.pay("SIG1", "W1", 1_000_000_000)

	in, err := f.engine.CreateIntent(ctx, 1, "W1", sol("1"))
	require.NoError(t, err)
	res, err := f.engine.SubmitSignature(ctx, in.ID, "SIG1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, domain.StatePending, res.Intent.State)
	assert.Empty(t, f.publ.settled)
}

func TestSubmitSignature_RepairsIntentAfterCrash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in, err := f.engine.CreateIntent(ctx, 1, "W1", sol("1"))
	require.NoError(t, err)

	// aposta gravada mas a transição da intenção não chegou a acontecer
	_, _, err = f.ledger.Commit(ctx, domain.Bet{
		ID: "b1", IntentID: in.ID, WalletAddress: "W1", ParticipantID: 1,
		AmountLamports: 1_000_000_000, Signature: "SIG1", ConfirmedAt: f.now,
	}, nil)
	require.NoError(t, err)

	res, err := f.engine.SubmitSignature(ctx, in.ID, "SIG1")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, domain.StateConfirmed, res.Intent.State)
	assert.Equal(t, "b1", res.Intent.BetID)
	assert.Zero(t, f.chain.Reads("SIG1"))
}

func TestGetAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acc, err := f.engine.GetAccount(ctx, "NEW")
	require.NoError(t, err)
	assert.Equal(t, "NEW", acc.WalletAddress)
	assert.Empty(t, acc.Bets)

	_, err = f.engine.GetAccount(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidWallet)

	assert.Len(t, f.engine.Participants(), len(registry.DefaultSeed))
}
