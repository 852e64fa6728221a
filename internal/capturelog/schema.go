// Package capturelog keeps an append-only log of transcript fragments in
// PostgreSQL. The log is advisory: the capture pipeline writes through a
// [Guard], so a database outage degrades the log but never the capture.
//
// Usage:
//
//	store, err := capturelog.NewStore(ctx, dsn)
//	if err != nil {
//		return err
//	}
//	guard := capturelog.NewGuard(store)
//	guard.Append(ctx, userID, sessionID, fragment)
package capturelog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlFragments = `
CREATE TABLE IF NOT EXISTS capture_fragments (
    id          BIGSERIAL    PRIMARY KEY,
    user_id     TEXT         NOT NULL,
    session_id  TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    provenance  TEXT         NOT NULL DEFAULT '',
    confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
    sub_intents TEXT[]       NOT NULL DEFAULT '{}',
    span_ids    BIGINT[]     NOT NULL DEFAULT '{}',
    at          TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_capture_fragments_user_at
    ON capture_fragments (user_id, at);

CREATE INDEX IF NOT EXISTS idx_capture_fragments_session
    ON capture_fragments (session_id);
`

// Migrate creates the capture log schema if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlFragments); err != nil {
		return fmt.Errorf("capturelog migrate: %w", err)
	}
	return nil
}
