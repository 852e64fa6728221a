package capturelog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/myndlens/myndlens-p-sub000/internal/conversation"
	"github.com/myndlens/myndlens-p-sub000/pkg/types"
)

// Writer appends fragments to durable storage.
type Writer interface {
	Append(ctx context.Context, userID, sessionID string, f conversation.Fragment) error
}

// Entry is one logged fragment.
type Entry struct {
	UserID    string
	SessionID string
	Fragment  conversation.Fragment
}

// Store is the PostgreSQL-backed [Writer]. It is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

var _ Writer = (*Store)(nil)

// NewStore connects to dsn, verifies the connection, and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("capturelog: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("capturelog: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Append implements [Writer].
func (s *Store) Append(ctx context.Context, userID, sessionID string, f conversation.Fragment) error {
	const q = `
		INSERT INTO capture_fragments
		    (user_id, session_id, text, provenance, confidence, sub_intents, span_ids, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	subIntents := f.SubIntents
	if subIntents == nil {
		subIntents = []string{}
	}
	spans := f.SpanIDs
	if spans == nil {
		spans = []int64{}
	}
	at := f.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.pool.Exec(ctx, q,
		userID,
		sessionID,
		f.Text,
		string(f.Provenance),
		f.Confidence,
		subIntents,
		spans,
		at,
	)
	if err != nil {
		return fmt.Errorf("capturelog: append: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for userID, oldest first.
func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	const q = `
		SELECT user_id, session_id, text, provenance, confidence, sub_intents, span_ids, at
		FROM (
		    SELECT * FROM capture_fragments
		    WHERE  user_id = $1
		    ORDER  BY at DESC, id DESC
		    LIMIT  $2
		) recent
		ORDER BY at, id`

	rows, err := s.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("capturelog: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e          Entry
			provenance string
		)
		err := row.Scan(
			&e.UserID,
			&e.SessionID,
			&e.Fragment.Text,
			&provenance,
			&e.Fragment.Confidence,
			&e.Fragment.SubIntents,
			&e.Fragment.SpanIDs,
			&e.Fragment.At,
		)
		e.Fragment.Provenance = types.Provenance(provenance)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("capturelog: scan recent: %w", err)
	}
	return entries, nil
}
