package ws

import "encoding/json"

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// WalletAddress: obrigatório para subscribe/unsubscribe
type ClientMsg struct {
	Type          string `json:"type"`
	WalletAddress string `json:"walletAddress"`
}

// Update é o push enviado aos clientes inscritos na carteira
// Type: intent_created | bet_settled | intent_rejected
type Update struct {
	Type          string          `json:"type"`
	WalletAddress string          `json:"walletAddress"`
	Payload       json.RawMessage `json:"payload"`
}
