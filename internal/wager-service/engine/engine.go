package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/contest-wager-ledger/internal/wager-service/chain"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/domain"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/intents"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/ledger"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/verifier"
	"github.com/radieske/contest-wager-ledger/pkg/contracts/events"
)

// Registry é o catálogo somente-leitura de participantes
type Registry interface {
	List() []domain.Participant
	Get(id int) (domain.Participant, error)
}

// Verifier confirma uma assinatura contra o pagamento esperado
type Verifier interface {
	Confirm(ctx context.Context, signature string, want verifier.Expected) (domain.Transfer, error)
}

// Publisher emite os eventos do ciclo de vida da aposta (Kafka em produção)
type Publisher interface {
	PublishIntentCreated(ctx context.Context, e events.IntentCreated) error
	PublishBetSettled(ctx context.Context, e events.BetSettled) error
	PublishIntentRejected(ctx context.Context, e events.IntentRejected) error
}

// Hooks são chamados após cada transição persistida (métricas e push via websocket no main)
type Hooks struct {
	OnIntentCreated func(in domain.Intent)
	OnSettled       func(in domain.Intent, bet domain.Bet)
	OnRejected      func(in domain.Intent) // REJECTED ou EXPIRED; o motivo está em in.Reason
	OnDuplicate     func(bet domain.Bet)
}

type Config struct {
	PlatformAddress string
	IntentTTL       time.Duration
	BalanceTimeout  time.Duration
}

type Deps struct {
	Registry  Registry
	Intents   intents.Store
	Ledger    ledger.Store
	Verifier  Verifier
	Balances  chain.BalanceReader // opcional: snapshot do saldo após a liquidação
	Publisher Publisher           // opcional
}

// Result é o resultado de SubmitSignature. Bet só vem preenchido quando a intenção foi liquidada.
type Result struct {
	Intent    domain.Intent
	Bet       *domain.Bet
	Duplicate bool
}

// Engine coordena intenção -> verificação -> ledger.
// Uma aposta só é registrada depois que a transferência foi confirmada na chain,
// e cada assinatura gera no máximo uma aposta.
type Engine struct {
	log  *zap.Logger
	cfg  Config
	deps Deps

	Hooks Hooks

	now   func() time.Time
	newID func() string
}

func New(log *zap.Logger, cfg Config, deps Deps) *Engine {
	if cfg.IntentTTL <= 0 {
		cfg.IntentTTL = 15 * time.Minute
	}
	if cfg.BalanceTimeout <= 0 {
		cfg.BalanceTimeout = 2 * time.Second
	}
	return &Engine{
		log:   log,
		cfg:   cfg,
		deps:  deps,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
}

func (e *Engine) Participants() []domain.Participant {
	return e.deps.Registry.List()
}

// CreateIntent registra a aposta declarada como PENDING. Nenhuma leitura na chain é feita aqui.
func (e *Engine) CreateIntent(ctx context.Context, participantID int, walletAddress string, amount decimal.Decimal) (domain.Intent, error) {
	lamports, err := domain.ToLamports(amount)
	if err != nil {
		return domain.Intent{}, err
	}
	walletAddress = strings.TrimSpace(walletAddress)
	if walletAddress == "" {
		return domain.Intent{}, domain.ErrInvalidWallet
	}
	if _, err := e.deps.Registry.Get(participantID); err != nil {
		return domain.Intent{}, err
	}

	now := e.now()
	in := domain.Intent{
		ID:             e.newID(),
		ParticipantID:  participantID,
		WalletAddress:  walletAddress,
		AmountLamports: lamports,
		State:          domain.StatePending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(e.cfg.IntentTTL),
	}
	if err := e.deps.Intents.Create(ctx, in); err != nil {
		return domain.Intent{}, unavailable(err)
	}

	e.log.Info("intent created",
		zap.String("intent_id", in.ID),
		zap.Int("participant_id", in.ParticipantID),
		zap.String("wallet", in.WalletAddress),
		zap.Uint64("amount_lamports", in.AmountLamports),
	)
	if e.Hooks.OnIntentCreated != nil {
		e.Hooks.OnIntentCreated(in)
	}
	e.publish(ctx, "intent_created", func(p Publisher) error {
		return p.PublishIntentCreated(ctx, events.IntentCreated{
			EventID:        e.newID(),
			IntentID:       in.ID,
			ParticipantID:  in.ParticipantID,
			WalletAddress:  in.WalletAddress,
			AmountLamports: in.AmountLamports,
			ExpiresAt:      in.ExpiresAt,
			Ts:             now,
		})
	})
	return in, nil
}

// GetIntent devolve a intenção; uma pendente vencida é expirada na leitura
func (e *Engine) GetIntent(ctx context.Context, id string) (domain.Intent, error) {
	in, err := e.deps.Intents.Get(ctx, id)
	if err != nil {
		return domain.Intent{}, storeErr(err)
	}
	if in.Expired(e.now()) {
		cur, err := e.expire(ctx, in)
		if err != nil && !errors.Is(err, intents.ErrNotPending) {
			return domain.Intent{}, unavailable(err)
		}
		return cur, nil
	}
	return in, nil
}

func (e *Engine) GetAccount(ctx context.Context, walletAddress string) (domain.Account, error) {
	walletAddress = strings.TrimSpace(walletAddress)
	if walletAddress == "" {
		return domain.Account{}, domain.ErrInvalidWallet
	}
	acc, err := e.deps.Ledger.GetAccount(ctx, walletAddress)
	if err != nil {
		return domain.Account{}, unavailable(err)
	}
	return acc, nil
}

// SubmitSignature verifica o pagamento da intenção e grava a aposta.
//
// Reenviar a mesma assinatura para a mesma intenção devolve a aposta existente
// (Duplicate=true). Falhas finais de verificação deixam a intenção REJECTED e
// retornam o erro junto com o Result; timeout e indisponibilidade mantêm PENDING.
func (e *Engine) SubmitSignature(ctx context.Context, intentID, signature string) (Result, error) {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return Result{}, domain.ErrInvalidSignature
	}

	in, err := e.deps.Intents.Get(ctx, intentID)
	if err != nil {
		return Result{}, storeErr(err)
	}

	if existing, ok, err := e.deps.Ledger.BetBySignature(ctx, signature); err != nil {
		return Result{Intent: in}, unavailable(err)
	} else if ok {
		if existing.IntentID != in.ID {
			return Result{Intent: in}, fmt.Errorf("%w: %s", domain.ErrSignatureReused, signature)
		}
		return e.duplicate(ctx, in, existing)
	}

	if in.State.Terminal() {
		return e.closed(ctx, in, signature)
	}
	if in.Expired(e.now()) {
		cur, err := e.expire(ctx, in)
		if errors.Is(err, intents.ErrNotPending) {
			return e.closed(ctx, cur, signature)
		}
		if err != nil {
			return Result{Intent: in}, unavailable(err)
		}
		return Result{Intent: cur}, domain.ErrExpired
	}

	want := verifier.Expected{
		Payer:     in.WalletAddress,
		Recipient: e.cfg.PlatformAddress,
		Lamports:  in.AmountLamports,
	}
	if _, err := e.deps.Verifier.Confirm(ctx, signature, want); err != nil {
		if !domain.Rejecting(err) {
			e.log.Warn("verification inconclusive, intent stays pending",
				zap.String("intent_id", in.ID),
				zap.String("signature", signature),
				zap.Error(err),
			)
			return Result{Intent: in}, err
		}
		return e.reject(ctx, in, signature, err)
	}

	balance := e.balance(ctx, in.WalletAddress)
	bet := domain.Bet{
		ID:             e.newID(),
		IntentID:       in.ID,
		WalletAddress:  in.WalletAddress,
		ParticipantID:  in.ParticipantID,
		AmountLamports: in.AmountLamports,
		Signature:      signature,
		ConfirmedAt:    e.now(),
	}
	stored, created, err := e.deps.Ledger.Commit(ctx, bet, balance)
	if err != nil {
		return Result{Intent: in}, unavailable(err)
	}
	if !created && stored.IntentID != in.ID {
		return Result{Intent: in}, fmt.Errorf("%w: %s", domain.ErrSignatureReused, signature)
	}

	confirmed, err := e.confirm(ctx, in, stored)
	switch {
	case err == nil:
	case errors.Is(err, intents.ErrNotPending) &&
		confirmed.State == domain.StateConfirmed && confirmed.Signature == signature:
		// requisição concorrente com a mesma assinatura fez a transição antes
	case errors.Is(err, intents.ErrNotPending):
		// Outra requisição resolveu a intenção no meio; a aposta paga continua valendo
		e.log.Warn("bet settled but intent was already resolved",
			zap.String("intent_id", in.ID),
			zap.String("intent_state", string(confirmed.State)),
			zap.String("signature", signature),
		)
	default:
		return Result{Intent: in, Bet: &stored}, unavailable(err)
	}

	if !created {
		if e.Hooks.OnDuplicate != nil {
			e.Hooks.OnDuplicate(stored)
		}
		return Result{Intent: confirmed, Bet: &stored, Duplicate: true}, nil
	}

	e.log.Info("bet settled",
		zap.String("intent_id", in.ID),
		zap.String("bet_id", stored.ID),
		zap.String("wallet", stored.WalletAddress),
		zap.Uint64("amount_lamports", stored.AmountLamports),
		zap.String("signature", signature),
	)
	if e.Hooks.OnSettled != nil {
		e.Hooks.OnSettled(confirmed, stored)
	}
	e.publish(ctx, "bet_settled", func(p Publisher) error {
		return p.PublishBetSettled(ctx, events.BetSettled{
			EventID:         e.newID(),
			BetID:           stored.ID,
			IntentID:        stored.IntentID,
			ParticipantID:   stored.ParticipantID,
			WalletAddress:   stored.WalletAddress,
			AmountLamports:  stored.AmountLamports,
			Signature:       stored.Signature,
			ConfirmedAt:     stored.ConfirmedAt,
			BalanceLamports: balance,
			Ts:              e.now(),
		})
	})
	return Result{Intent: confirmed, Bet: &stored}, nil
}

// duplicate trata a reentrega de uma assinatura já liquidada para esta intenção.
// Se o processo caiu entre o commit e a transição, a intenção é reparada aqui.
func (e *Engine) duplicate(ctx context.Context, in domain.Intent, bet domain.Bet) (Result, error) {
	if in.State == domain.StatePending {
		cur, err := e.confirm(ctx, in, bet)
		if err != nil && !errors.Is(err, intents.ErrNotPending) {
			return Result{Intent: in, Bet: &bet}, unavailable(err)
		}
		in = cur
	}
	if e.Hooks.OnDuplicate != nil {
		e.Hooks.OnDuplicate(bet)
	}
	return Result{Intent: in, Bet: &bet, Duplicate: true}, nil
}

// closed mapeia uma intenção terminal para o erro correspondente
func (e *Engine) closed(ctx context.Context, in domain.Intent, signature string) (Result, error) {
	switch in.State {
	case domain.StateConfirmed:
		if in.Signature == signature {
			bet, ok, err := e.deps.Ledger.BetBySignature(ctx, signature)
			if err != nil {
				return Result{Intent: in}, unavailable(err)
			}
			if ok {
				return e.duplicate(ctx, in, bet)
			}
		}
		return Result{Intent: in}, domain.ErrIntentClosed
	case domain.StateRejected:
		return Result{Intent: in}, fmt.Errorf("%w: %s", domain.ErrIntentRejected, in.Reason)
	case domain.StateExpired:
		return Result{Intent: in}, domain.ErrExpired
	}
	return Result{Intent: in}, fmt.Errorf("unexpected intent state %q", in.State)
}

func (e *Engine) confirm(ctx context.Context, in domain.Intent, bet domain.Bet) (domain.Intent, error) {
	now := e.now()
	return e.deps.Intents.Resolve(ctx, in.ID, domain.StateConfirmed, func(i *domain.Intent) {
		i.Signature = bet.Signature
		i.BetID = bet.ID
		i.ResolvedAt = &now
	})
}

func (e *Engine) reject(ctx context.Context, in domain.Intent, signature string, cause error) (Result, error) {
	now := e.now()
	reason := domain.Kind(cause)
	cur, err := e.deps.Intents.Resolve(ctx, in.ID, domain.StateRejected, func(i *domain.Intent) {
		i.Reason = reason
		i.Signature = signature
		i.ResolvedAt = &now
	})
	if errors.Is(err, intents.ErrNotPending) {
		return e.closed(ctx, cur, signature)
	}
	if err != nil {
		return Result{Intent: in}, unavailable(err)
	}

	e.log.Info("intent rejected",
		zap.String("intent_id", in.ID),
		zap.String("signature", signature),
		zap.String("reason", reason),
		zap.Error(cause),
	)
	e.rejected(ctx, cur)
	return Result{Intent: cur}, cause
}

func (e *Engine) expire(ctx context.Context, in domain.Intent) (domain.Intent, error) {
	now := e.now()
	cur, err := e.deps.Intents.Resolve(ctx, in.ID, domain.StateExpired, func(i *domain.Intent) {
		i.Reason = domain.Kind(domain.ErrExpired)
		i.ResolvedAt = &now
	})
	if err != nil {
		return cur, err
	}
	e.log.Info("intent expired", zap.String("intent_id", in.ID), zap.Time("expires_at", in.ExpiresAt))
	e.rejected(ctx, cur)
	return cur, nil
}

func (e *Engine) rejected(ctx context.Context, in domain.Intent) {
	if e.Hooks.OnRejected != nil {
		e.Hooks.OnRejected(in)
	}
	e.publish(ctx, "intent_rejected", func(p Publisher) error {
		return p.PublishIntentRejected(ctx, events.IntentRejected{
			EventID:       e.newID(),
			IntentID:      in.ID,
			WalletAddress: in.WalletAddress,
			State:         string(in.State),
			Reason:        in.Reason,
			Signature:     in.Signature,
			Ts:            e.now(),
		})
	})
}

// balance lê o saldo on-chain do pagador; falha aqui não impede a liquidação
func (e *Engine) balance(ctx context.Context, walletAddress string) *uint64 {
	if e.deps.Balances == nil {
		return nil
	}
	bctx, cancel := context.WithTimeout(ctx, e.cfg.BalanceTimeout)
	defer cancel()
	v, err := e.deps.Balances.Balance(bctx, walletAddress)
	if err != nil {
		e.log.Warn("balance snapshot failed", zap.String("wallet", walletAddress), zap.Error(err))
		return nil
	}
	return &v
}

// publish é best-effort: o ledger já é a fonte da verdade quando o evento sai
func (e *Engine) publish(ctx context.Context, event string, fn func(Publisher) error) {
	if e.deps.Publisher == nil {
		return
	}
	if err := fn(e.deps.Publisher); err != nil {
		e.log.Warn("publish failed", zap.String("event", event), zap.Error(err))
	}
}

func unavailable(err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

// storeErr preserva ErrUnknownIntent e trata o resto como indisponibilidade
func storeErr(err error) error {
	if errors.Is(err, domain.ErrUnknownIntent) {
		return err
	}
	return unavailable(err)
}
