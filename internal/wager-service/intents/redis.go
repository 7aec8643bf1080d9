package intents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/contest-wager-ledger/internal/wager-service/domain"
)

const maxResolveRetries = 8

// RedisStore guarda intenções como JSON em "intent:{id}".
// O TTL da chave é só retenção (o prazo da intenção é aplicado pelo engine),
// por isso cobre IntentTTL + retenção para o status continuar consultável.
type RedisStore struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisStore(c *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{Client: c, TTL: ttl}
}

func key(id string) string { return "intent:" + id }

func (r *RedisStore) Create(ctx context.Context, in domain.Intent) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	ok, err := r.Client.SetNX(ctx, key(in.ID), b, r.TTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("intent %s already exists", in.ID)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (domain.Intent, error) {
	b, err := r.Client.Get(ctx, key(id)).Bytes()
	if err == redis.Nil {
		return domain.Intent{}, fmt.Errorf("%w: %s", domain.ErrUnknownIntent, id)
	}
	if err != nil {
		return domain.Intent{}, err
	}
	var in domain.Intent
	if err := json.Unmarshal(b, &in); err != nil {
		return domain.Intent{}, fmt.Errorf("decode intent %s: %w", id, err)
	}
	return in, nil
}

// Resolve usa WATCH/MULTI: se outra requisição alterar a chave no meio, repete
func (r *RedisStore) Resolve(ctx context.Context, id string, to domain.IntentState, mutate func(*domain.Intent)) (domain.Intent, error) {
	k := key(id)
	var out domain.Intent

	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, k).Bytes()
		if err == redis.Nil {
			return fmt.Errorf("%w: %s", domain.ErrUnknownIntent, id)
		}
		if err != nil {
			return err
		}
		var in domain.Intent
		if err := json.Unmarshal(b, &in); err != nil {
			return fmt.Errorf("decode intent %s: %w", id, err)
		}
		if err := resolve(&in, to, mutate); err != nil {
			out = in
			return err
		}
		nb, err := json.Marshal(in)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, nb, redis.KeepTTL)
			return nil
		})
		if err == nil {
			out = in
		}
		return err
	}

	for i := 0; i < maxResolveRetries; i++ {
		err := r.Client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, err
	}
	return domain.Intent{}, fmt.Errorf("resolve intent %s: too much contention", id)
}

// Ping é usado pelo /healthz
func (r *RedisStore) Ping(ctx context.Context) error { return r.Client.Ping(ctx).Err() }
