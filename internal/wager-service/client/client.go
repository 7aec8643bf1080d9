package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/contest-wager-ledger/internal/wager-service/chain"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/domain"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/dto"
)

// APIError é uma resposta de erro do wager-service
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wager api %d %s: %s", e.Status, e.Kind, e.Message)
}

// Client fala com a API HTTP do wager-service
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New usa um timeout folgado: o confirm espera a verificação on-chain com retries
func New(base string) *Client {
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Participants(ctx context.Context) ([]domain.Participant, error) {
	var out []domain.Participant
	_, err := c.do(ctx, http.MethodGet, "/participants", nil, &out)
	return out, err
}

func (c *Client) PlaceBet(ctx context.Context, participantID int, wallet string, amount decimal.Decimal) (dto.PlaceBetResponse, error) {
	var out dto.PlaceBetResponse
	_, err := c.do(ctx, http.MethodPost, "/bets", dto.PlaceBetRequest{
		ParticipantID: participantID,
		WalletAddress: wallet,
		Amount:        amount,
	}, &out)
	return out, err
}

// Confirm devolve o resultado também quando a intenção foi REJECTED (422)
func (c *Client) Confirm(ctx context.Context, intentID, signature string) (dto.ConfirmBetResponse, error) {
	var out dto.ConfirmBetResponse
	_, err := c.do(ctx, http.MethodPost, "/bets/"+url.PathEscape(intentID)+"/confirm", dto.ConfirmBetRequest{Signature: signature}, &out)
	return out, err
}

func (c *Client) Intent(ctx context.Context, intentID string) (dto.IntentResponse, error) {
	var out dto.IntentResponse
	_, err := c.do(ctx, http.MethodGet, "/bets/"+url.PathEscape(intentID), nil, &out)
	return out, err
}

func (c *Client) Account(ctx context.Context, wallet string) (dto.AccountResponse, error) {
	var out dto.AccountResponse
	_, err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(wallet), nil, &out)
	return out, err
}

// Bet executa o fluxo completo da carteira: declara a intenção, paga a plataforma
// com o signer e envia a assinatura para verificação
func (c *Client) Bet(ctx context.Context, signer chain.Signer, platform string, participantID int, amount decimal.Decimal) (dto.PlaceBetResponse, dto.ConfirmBetResponse, error) {
	placed, err := c.PlaceBet(ctx, participantID, signer.Address(), amount)
	if err != nil {
		return placed, dto.ConfirmBetResponse{}, err
	}
	sig, err := signer.SendTransfer(ctx, platform, placed.AmountLamports)
	if err != nil {
		return placed, dto.ConfirmBetResponse{}, fmt.Errorf("send transfer: %w", err)
	}
	res, err := c.Confirm(ctx, placed.IntentID, sig)
	return placed, res, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, err
	}

	// 422 do confirm com status REJECTED é um resultado, não erro de transporte
	if res.StatusCode == http.StatusUnprocessableEntity {
		var rejected struct {
			Status string `json:"status"`
		}
		if json.Unmarshal(raw, &rejected) == nil && rejected.Status == string(domain.StateRejected) {
			return res.StatusCode, json.Unmarshal(raw, out)
		}
	}
	if res.StatusCode >= 300 {
		var e dto.ErrorResponse
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e = dto.ErrorResponse{Error: "HTTP_" + strconv.Itoa(res.StatusCode), Message: string(raw)}
		}
		return res.StatusCode, &APIError{Status: res.StatusCode, Kind: e.Error, Message: e.Message}
	}
	if out == nil {
		return res.StatusCode, nil
	}
	return res.StatusCode, json.Unmarshal(raw, out)
}
