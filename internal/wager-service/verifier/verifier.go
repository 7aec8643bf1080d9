package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/contest-wager-ledger/internal/wager-service/chain"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/domain"
)

// Config define a política de retry e as tolerâncias da verificação
type Config struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier int
	AttemptTimeout    time.Duration // timeout rígido por tentativa
	AmountTolerance   uint64        // diferença máxima aceita em lamports
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:       5,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2,
		AttemptTimeout:    3 * time.Second,
	}
}

// Verifier confirma uma assinatura contra a chain. Nunca altera estado do ledger.
type Verifier struct {
	log   *zap.Logger
	chain chain.Query
	cfg   Config

	// OnAttempt recebe o resultado de cada tentativa: found | not_found | error | timeout
	OnAttempt func(result string)

	sleep func(ctx context.Context, d time.Duration) error
}

func New(log *zap.Logger, q chain.Query, cfg Config) *Verifier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}
	return &Verifier{log: log, chain: q, cfg: cfg, sleep: sleepCtx}
}

// Expected descreve o pagamento que a intenção declarou
type Expected struct {
	Payer     string
	Recipient string
	Lamports  uint64
}

// Confirm consulta a assinatura com backoff exponencial limitado e valida a transferência.
// NotFound e erros transitórios são repetidos; divergências de valor/destino/pagador são finais.
func (v *Verifier) Confirm(ctx context.Context, signature string, want Expected) (domain.Transfer, error) {
	backoff := v.cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= v.cfg.MaxAttempts; attempt++ {
		t, err := v.fetch(ctx, signature)
		if err == nil {
			v.attempt("found")
			return t, check(t, want, v.cfg.AmountTolerance)
		}
		if errors.Is(err, domain.ErrInvalidSignature) {
			v.attempt("error")
			return domain.Transfer{}, err
		}
		if ctx.Err() != nil {
			return domain.Transfer{}, fmt.Errorf("%w: %w", domain.ErrVerifierTimeout, ctx.Err())
		}

		switch {
		case errors.Is(err, domain.ErrNotFound):
			v.attempt("not_found")
		case errors.Is(err, context.DeadlineExceeded):
			v.attempt("timeout")
		default:
			v.attempt("error")
		}
		lastErr = err

		if attempt == v.cfg.MaxAttempts {
			break
		}
		v.log.Debug("signature not confirmed yet, retrying",
			zap.String("signature", signature),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		sleep := backoff
		if v.cfg.MaxBackoff > 0 && sleep > v.cfg.MaxBackoff {
			sleep = v.cfg.MaxBackoff
		}
		if err := v.sleep(ctx, sleep); err != nil {
			return domain.Transfer{}, fmt.Errorf("%w: %w", domain.ErrVerifierTimeout, err)
		}
		backoff *= time.Duration(v.cfg.BackoffMultiplier)
	}

	if errors.Is(lastErr, domain.ErrNotFound) {
		return domain.Transfer{}, fmt.Errorf("%w: %s after %d attempts", domain.ErrNotFound, signature, v.cfg.MaxAttempts)
	}
	return domain.Transfer{}, fmt.Errorf("%w: %v", domain.ErrVerifierTimeout, lastErr)
}

// fetch executa uma tentativa com timeout próprio, para que um RPC travado
// não segure o worker indefinidamente
func (v *Verifier) fetch(ctx context.Context, signature string) (domain.Transfer, error) {
	if v.cfg.AttemptTimeout <= 0 {
		return v.chain.GetTransfer(ctx, signature)
	}
	actx, cancel := context.WithTimeout(ctx, v.cfg.AttemptTimeout)
	defer cancel()
	return v.chain.GetTransfer(actx, signature)
}

func check(t domain.Transfer, want Expected, tolerance uint64) error {
	if t.Failed {
		return domain.ErrTransferFailed
	}
	if t.Recipient != want.Recipient {
		return fmt.Errorf("%w: got %q, want %q", domain.ErrRecipientMismatch, t.Recipient, want.Recipient)
	}
	if t.Payer != want.Payer {
		return fmt.Errorf("%w: got %q, want %q", domain.ErrPayerMismatch, t.Payer, want.Payer)
	}
	if !domain.WithinTolerance(t.Lamports, want.Lamports, tolerance) {
		return fmt.Errorf("%w: got %d lamports, want %d", domain.ErrAmountMismatch, t.Lamports, want.Lamports)
	}
	return nil
}

func (v *Verifier) attempt(result string) {
	if v.OnAttempt != nil {
		v.OnAttempt(result)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
