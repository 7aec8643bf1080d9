package intents

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/contest-wager-ledger/internal/wager-service/domain"
)

func pending(id string) domain.Intent {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return domain.Intent{
		ID:             id,
		ParticipantID:  2,
		WalletAddress:  "W1",
		AmountLamports: 1_500_000_000,
		State:          domain.StatePending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(15 * time.Minute),
	}
}

func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		require.NoError(t, s.Create(ctx, pending("i1")))
		got, err := s.Get(ctx, "i1")
		require.NoError(t, err)
		assert.Equal(t, pending("i1"), got)

		assert.Error(t, s.Create(ctx, pending("i1")), "duplicate id")
	})

	t.Run("unknown intent", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrUnknownIntent)
		_, err = s.Resolve(ctx, "missing", domain.StateRejected, nil)
		assert.ErrorIs(t, err, domain.ErrUnknownIntent)
	})

	t.Run("resolve once, terminal afterwards", func(t *testing.T) {
		require.NoError(t, s.Create(ctx, pending("i2")))

		got, err := s.Resolve(ctx, "i2", domain.StateConfirmed, func(in *domain.Intent) {
			in.Signature = "SIG1"
			in.BetID = "b1"
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StateConfirmed, got.State)
		assert.Equal(t, "SIG1", got.Signature)

		cur, err := s.Resolve(ctx, "i2", domain.StateRejected, func(in *domain.Intent) { in.Reason = "X" })
		assert.ErrorIs(t, err, ErrNotPending)
		assert.Equal(t, domain.StateConfirmed, cur.State)
		assert.Empty(t, cur.Reason)

		stored, err := s.Get(ctx, "i2")
		require.NoError(t, err)
		assert.Equal(t, domain.StateConfirmed, stored.State)
		assert.Equal(t, "b1", stored.BetID)
	})

	t.Run("concurrent resolve has one winner", func(t *testing.T) {
		require.NoError(t, s.Create(ctx, pending("i3")))
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Resolve(ctx, "i3", domain.StateExpired, nil)
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, ErrNotPending)
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	runStoreContract(t, NewRedisStore(client, time.Hour))
}

func TestRedisStore_ResolveKeepsTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	s := NewRedisStore(client, time.Hour)
	require.NoError(t, s.Create(ctx, pending("i1")))
	_, err := s.Resolve(ctx, "i1", domain.StateRejected, func(in *domain.Intent) { in.Reason = "AMOUNT_MISMATCH" })
	require.NoError(t, err)

	assert.Equal(t, time.Hour, mr.TTL("intent:i1"))

	mr.FastForward(2 * time.Hour)
	_, err = s.Get(ctx, "i1")
	assert.ErrorIs(t, err, domain.ErrUnknownIntent)
}
