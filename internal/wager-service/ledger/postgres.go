package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/radieske/contest-wager-ledger/internal/wager-service/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_accounts (
    wallet_address   TEXT PRIMARY KEY,
    balance_lamports BIGINT NOT NULL DEFAULT 0,
    balance_at       TIMESTAMPTZ,
    version          BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS ledger_bets (
    seq             BIGSERIAL PRIMARY KEY,
    id              UUID NOT NULL UNIQUE,
    intent_id       TEXT NOT NULL,
    wallet_address  TEXT NOT NULL REFERENCES ledger_accounts(wallet_address),
    participant_id  INT NOT NULL,
    amount_lamports BIGINT NOT NULL CHECK (amount_lamports > 0),
    signature       TEXT NOT NULL UNIQUE,
    confirmed_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS ledger_bets_wallet_seq ON ledger_bets (wallet_address, seq);
`

// Postgres implementa o ledger em banco Postgres.
// A unicidade da assinatura é garantida pela constraint UNIQUE de ledger_bets.signature.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Migrate cria as tabelas do ledger se ainda não existirem
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

// Commit grava a aposta em uma única transação.
// Lock pessimista na linha da conta mantém o histórico da carteira na ordem de confirmação.
func (p *Postgres) Commit(ctx context.Context, bet domain.Bet, balance *uint64) (domain.Bet, bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Bet{}, false, err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_accounts (wallet_address) VALUES ($1) ON CONFLICT (wallet_address) DO NOTHING`,
		bet.WalletAddress); err != nil {
		return domain.Bet{}, false, err
	}

	var version int64
	if err = tx.QueryRowContext(ctx,
		`SELECT version FROM ledger_accounts WHERE wallet_address=$1 FOR UPDATE`,
		bet.WalletAddress).Scan(&version); err != nil {
		return domain.Bet{}, false, err
	}

	// Idempotência: conflito na assinatura não insere nada
	var seq int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO ledger_bets (id, intent_id, wallet_address, participant_id, amount_lamports, signature, confirmed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (signature) DO NOTHING
		RETURNING seq`,
		bet.ID, bet.IntentID, bet.WalletAddress, bet.ParticipantID, int64(bet.AmountLamports), bet.Signature, bet.ConfirmedAt,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		existing, ok, ferr := p.BetBySignature(ctx, bet.Signature)
		if ferr != nil {
			return domain.Bet{}, false, ferr
		}
		if !ok {
			return domain.Bet{}, false, errors.New("signature conflict without stored bet")
		}
		return existing, false, nil
	}
	if err != nil {
		return domain.Bet{}, false, err
	}

	if balance != nil {
		if _, err = tx.ExecContext(ctx, `
			UPDATE ledger_accounts SET balance_lamports=$1, balance_at=$2, version=version+1
			WHERE wallet_address=$3`,
			int64(*balance), time.Now().UTC(), bet.WalletAddress); err != nil {
			return domain.Bet{}, false, err
		}
	}

	if err = tx.Commit(); err != nil {
		return domain.Bet{}, false, err
	}
	return bet, true, nil
}

func (p *Postgres) BetBySignature(ctx context.Context, signature string) (domain.Bet, bool, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, intent_id, wallet_address, participant_id, amount_lamports, signature, confirmed_at
		FROM ledger_bets WHERE signature=$1`, signature)
	b, err := scanBet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Bet{}, false, nil
	}
	if err != nil {
		return domain.Bet{}, false, err
	}
	return b, true, nil
}

// GetAccount retorna saldo e histórico em ordem de confirmação
func (p *Postgres) GetAccount(ctx context.Context, walletAddress string) (domain.Account, error) {
	acc := domain.Account{WalletAddress: walletAddress, Bets: []domain.Bet{}}

	var (
		balance   int64
		balanceAt sql.NullTime
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT balance_lamports, balance_at FROM ledger_accounts WHERE wallet_address=$1`,
		walletAddress).Scan(&balance, &balanceAt)
	if errors.Is(err, sql.ErrNoRows) {
		return acc, nil
	}
	if err != nil {
		return domain.Account{}, err
	}
	acc.BalanceLamports = uint64(balance)
	if balanceAt.Valid {
		acc.BalanceAt = balanceAt.Time.UTC()
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, intent_id, wallet_address, participant_id, amount_lamports, signature, confirmed_at
		FROM ledger_bets WHERE wallet_address=$1 ORDER BY seq`, walletAddress)
	if err != nil {
		return domain.Account{}, err
	}
	defer rows.Close()
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return domain.Account{}, err
		}
		acc.Bets = append(acc.Bets, b)
	}
	return acc, rows.Err()
}

// Ping é usado pelo /healthz
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

type scanner interface{ Scan(dest ...any) error }

func scanBet(s scanner) (domain.Bet, error) {
	var (
		b      domain.Bet
		amount int64
	)
	if err := s.Scan(&b.ID, &b.IntentID, &b.WalletAddress, &b.ParticipantID, &amount, &b.Signature, &b.ConfirmedAt); err != nil {
		return domain.Bet{}, err
	}
	b.AmountLamports = uint64(amount)
	b.ConfirmedAt = b.ConfirmedAt.UTC()
	return b, nil
}
