package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PubSubChannel é o canal Redis padrão para o push de liquidações
const PubSubChannel = "bet_updates_broadcast"

// StartRedisSubscriber escuta o canal Redis e repassa cada Update ao Hub.
// Com várias réplicas do serviço, qualquer uma publica e todas entregam aos seus clientes.
func StartRedisSubscriber(ctx context.Context, log *zap.Logger, r *redis.Client, channel string, hub *Hub) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close() // encerra a inscrição ao finalizar o contexto
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var upd Update
				if err := json.Unmarshal([]byte(msg.Payload), &upd); err != nil {
					log.Warn("ws subscriber unmarshal", zap.Error(err))
					continue
				}
				hub.Broadcast(upd)
			}
		}
	}()
}

// Notifier publica updates no canal Redis consumido por StartRedisSubscriber
type Notifier struct {
	Client  *redis.Client
	Channel string
}

func NewNotifier(c *redis.Client, channel string) *Notifier {
	return &Notifier{Client: c, Channel: channel}
}

func (n *Notifier) Notify(ctx context.Context, kind, wallet string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	b, err := json.Marshal(Update{Type: kind, WalletAddress: wallet, Payload: raw})
	if err != nil {
		return err
	}
	return n.Client.Publish(ctx, n.Channel, b).Err()
}
