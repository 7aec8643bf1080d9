package producer

import (
	"context"
	"time"

	"github.com/radieske/contest-wager-ledger/internal/shared/kafka"
	"github.com/radieske/contest-wager-ledger/pkg/contracts/events"
)

// Topics define o tópico de cada evento do ciclo de vida
type Topics struct {
	IntentCreated  string
	BetSettled     string
	IntentRejected string
}

// KafkaPublisher publica os eventos com a carteira como chave de partição
type KafkaPublisher struct {
	Writer  kafka.MessageWriter
	Topics  Topics
	Timeout time.Duration
}

func NewKafkaPublisher(w kafka.MessageWriter, topics Topics) *KafkaPublisher {
	return &KafkaPublisher{Writer: w, Topics: topics, Timeout: 2 * time.Second}
}

func (p *KafkaPublisher) PublishIntentCreated(ctx context.Context, e events.IntentCreated) error {
	return p.write(ctx, p.Topics.IntentCreated, e.WalletAddress, e)
}

func (p *KafkaPublisher) PublishBetSettled(ctx context.Context, e events.BetSettled) error {
	return p.write(ctx, p.Topics.BetSettled, e.WalletAddress, e)
}

func (p *KafkaPublisher) PublishIntentRejected(ctx context.Context, e events.IntentRejected) error {
	return p.write(ctx, p.Topics.IntentRejected, e.WalletAddress, e)
}

// write não herda o cancelamento da requisição: o evento sai mesmo se o cliente desconectar
func (p *KafkaPublisher) write(ctx context.Context, topic, key string, payload any) error {
	wctx := context.WithoutCancel(ctx)
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(wctx, p.Timeout)
		defer cancel()
	}
	return kafka.WriteJSON(wctx, p.Writer, topic, key, payload)
}
