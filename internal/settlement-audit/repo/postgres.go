package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS bet_audit (
	event_id       TEXT PRIMARY KEY,
	topic          TEXT NOT NULL,
	kind           TEXT NOT NULL,
	intent_id      TEXT NOT NULL DEFAULT '',
	wallet_address TEXT NOT NULL DEFAULT '',
	signature      TEXT NOT NULL DEFAULT '',
	payload        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS bet_audit_intent_idx ON bet_audit (intent_id, created_at);
`

// Record é uma linha da trilha de auditoria: um evento do ciclo de vida da aposta
type Record struct {
	EventID       string
	Topic         string
	Kind          string
	IntentID      string
	WalletAddress string
	Signature     string
	Payload       json.RawMessage
	CreatedAt     time.Time
}

type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate bet_audit: %w", err)
	}
	return nil
}

// Insert grava o evento uma única vez; redelivery do Kafka devolve inserted=false
func (p *Postgres) Insert(ctx context.Context, r Record) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO bet_audit (event_id, topic, kind, intent_id, wallet_address, signature, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
		ON CONFLICT (event_id) DO NOTHING`,
		r.EventID, r.Topic, r.Kind, r.IntentID, r.WalletAddress, r.Signature, []byte(r.Payload))
	if err != nil {
		return false, fmt.Errorf("insert audit %s: %w", r.EventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ByIntent devolve a trilha de uma intenção em ordem de chegada
func (p *Postgres) ByIntent(ctx context.Context, intentID string) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT event_id, topic, kind, intent_id, wallet_address, signature, payload, created_at
		FROM bet_audit WHERE intent_id=$1 ORDER BY created_at, event_id`, intentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var payload []byte
		if err := rows.Scan(&r.EventID, &r.Topic, &r.Kind, &r.IntentID, &r.WalletAddress, &r.Signature, &payload, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Payload = payload
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }
