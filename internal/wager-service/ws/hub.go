package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

// client serializa as escritas: gorilla/websocket aceita um único writer por conexão
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub gerencia conexões WebSocket e assinaturas por carteira
// subs: walletAddress -> conjunto de clientes inscritos
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{}
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(log *zap.Logger, allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket.
// Um cliente pode acompanhar várias carteiras na mesma conexão.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn}
	defer conn.Close()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			if msg.WalletAddress == "" {
				continue
			}
			h.mu.Lock()
			if _, ok := h.subs[msg.WalletAddress]; !ok {
				h.subs[msg.WalletAddress] = make(map[*client]struct{})
			}
			h.subs[msg.WalletAddress][c] = struct{}{}
			h.mu.Unlock()
		case "unsubscribe":
			h.remove(msg.WalletAddress, c)
		case "ping":
			_ = c.write([]byte(`{"type":"pong"}`))
		}
	}

	// Remove a conexão de todas as assinaturas ao desconectar
	h.mu.Lock()
	for wallet, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, wallet)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) remove(wallet string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.subs[wallet]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, wallet)
		}
	}
}

// Subscribers retorna quantas conexões acompanham a carteira
func (h *Hub) Subscribers(wallet string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[wallet])
}

// Broadcast envia o update para todos os clientes inscritos na carteira
func (h *Hub) Broadcast(update Update) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.subs[update.WalletAddress]))
	for c := range h.subs[update.WalletAddress] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, err := json.Marshal(update)
	if err != nil {
		h.log.Error("ws marshal update", zap.Error(err))
		return
	}
	for _, c := range targets {
		if err := c.write(b); err != nil {
			h.log.Debug("ws write failed", zap.String("wallet", update.WalletAddress), zap.Error(err))
		}
	}
}
