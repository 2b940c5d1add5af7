// Package interactionlog persists per-contact interaction history
// (messages, calls, meetings) in Postgres. The directory remains the system
// of record for contacts themselves; this log only holds what the
// collaborator events reported.
package interactionlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/rolodexhq/rolodex/internal/contact"
)

const (
	postgresTableName        = "rolodex_interactions"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

type PostgresStore struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, contact.ErrInvalidInput
	}
	return &PostgresStore{
		dsn:       dsn,
		tableName: postgresTableName,
		openDB:    sql.Open,
	}, nil
}

func (s *PostgresStore) Append(ctx context.Context, it contact.Interaction) (contact.Interaction, error) {
	if strings.TrimSpace(it.ContactID) == "" {
		return contact.Interaction{}, contact.ErrInvalidInput
	}
	if err := s.ensureReady(); err != nil {
		return contact.Interaction{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}
	if it.OccurredAt.IsZero() {
		it.OccurredAt = it.CreatedAt
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (contact_id, kind, direction, channel, subject, payload, occurred_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`, postgresQuoteIdentifier(s.tableName))
	err := s.db.QueryRowContext(ctx, query,
		it.ContactID,
		string(it.Kind),
		string(it.Direction),
		it.Channel,
		it.Subject,
		it.Payload,
		it.OccurredAt,
		it.CreatedAt,
	).Scan(&it.ID)
	if err != nil {
		return contact.Interaction{}, err
	}
	return it, nil
}

func (s *PostgresStore) ListByContact(ctx context.Context, contactID string) ([]contact.Interaction, error) {
	if strings.TrimSpace(contactID) == "" {
		return nil, contact.ErrInvalidInput
	}
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT id, contact_id, kind, direction, channel, subject, payload, occurred_at, created_at
		FROM %s
		WHERE contact_id = $1
		ORDER BY occurred_at DESC, id DESC`, postgresQuoteIdentifier(s.tableName))
	rows, err := s.db.QueryContext(ctx, query, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contact.Interaction
	for rows.Next() {
		var (
			it        contact.Interaction
			kind      string
			direction string
		)
		if err := rows.Scan(&it.ID, &it.ContactID, &kind, &direction, &it.Channel, &it.Subject, &it.Payload, &it.OccurredAt, &it.CreatedAt); err != nil {
			return nil, err
		}
		it.Kind = contact.InteractionKind(kind)
		it.Direction = contact.Direction(direction)
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) ensureReady() error {
	if s == nil {
		return contact.ErrInvalidInput
	}
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		createTable := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				contact_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				direction TEXT NOT NULL DEFAULT '',
				channel TEXT NOT NULL DEFAULT '',
				subject TEXT NOT NULL DEFAULT '',
				payload TEXT NOT NULL DEFAULT '',
				occurred_at TIMESTAMPTZ NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, postgresQuoteIdentifier(s.tableName))
		if _, err := db.ExecContext(ctx, createTable); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		createIndex := fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s (contact_id, occurred_at)",
			postgresQuoteIdentifier(s.tableName+"_contact_idx"),
			postgresQuoteIdentifier(s.tableName))
		if _, err := db.ExecContext(ctx, createIndex); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

func postgresQuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var _ contact.InteractionLog = (*PostgresStore)(nil)
