package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/contest-wager-ledger/internal/settlement-audit/repo"
)

// Reader é o subconjunto de *kafka.Reader usado pelo consumer.
// FetchMessage + CommitMessages: o offset só avança depois que o evento foi gravado.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Repo interface {
	Insert(ctx context.Context, r repo.Record) (bool, error)
}

// envelope tem os campos comuns aos três eventos do ciclo de vida
type envelope struct {
	EventID       string `json:"event_id"`
	IntentID      string `json:"intent_id"`
	WalletAddress string `json:"wallet_address"`
	Signature     string `json:"signature"`
}

// Auditor consome os eventos das apostas e grava a trilha de auditoria
type Auditor struct {
	Log    *zap.Logger
	Reader Reader
	Repo   Repo
	Kinds  map[string]string // tópico -> kind; tópico ausente usa o próprio nome

	OnConsumed  func(kind string) // métricas (counter++)
	OnDuplicate func(kind string)
	OnError     func(phase string)

	RetryDelay time.Duration
}

// Run processa até o contexto ser cancelado
func (a *Auditor) Run(ctx context.Context) error {
	delay := a.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	for {
		m, err := a.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.Log.Warn("kafka fetch failed", zap.Error(err))
			a.fail("read")
			if !sleep(ctx, delay) {
				return ctx.Err()
			}
			continue
		}

		// falha de banco: tenta de novo a mesma mensagem, sem commit
		for {
			err := a.handle(ctx, m)
			if err == nil {
				break
			}
			a.Log.Warn("audit insert failed", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
			a.fail("db")
			if !sleep(ctx, delay) {
				return ctx.Err()
			}
		}

		if err := a.Reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.Log.Warn("kafka commit failed", zap.Error(err))
			a.fail("commit")
		}
	}
}

// handle devolve erro só para falhas que valem retry; mensagem inválida é descartada
func (a *Auditor) handle(ctx context.Context, m kafka.Message) error {
	kind := m.Topic
	if k, ok := a.Kinds[m.Topic]; ok {
		kind = k
	}

	var env envelope
	if err := json.Unmarshal(m.Value, &env); err != nil || env.EventID == "" {
		a.Log.Warn("invalid audit message", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		a.fail("decode")
		return nil
	}

	inserted, err := a.Repo.Insert(ctx, repo.Record{
		EventID:       env.EventID,
		Topic:         m.Topic,
		Kind:          kind,
		IntentID:      env.IntentID,
		WalletAddress: env.WalletAddress,
		Signature:     env.Signature,
		Payload:       m.Value,
	})
	if err != nil {
		return err
	}
	if !inserted {
		if a.OnDuplicate != nil {
			a.OnDuplicate(kind)
		}
		return nil
	}
	if a.OnConsumed != nil {
		a.OnConsumed(kind)
	}
	a.Log.Debug("audit recorded", zap.String("kind", kind), zap.String("event_id", env.EventID), zap.String("intent_id", env.IntentID))
	return nil
}

func (a *Auditor) fail(phase string) {
	if a.OnError != nil {
		a.OnError(phase)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
