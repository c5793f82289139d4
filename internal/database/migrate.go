package database

import (
	"context"
	"fmt"
)

// schema provisions the screens table on startup. Early deployments of this
// service ran against databases created by hand, so the table is created on
// demand rather than through a migration tool.
const schema = `
CREATE TABLE IF NOT EXISTS screens (
	id UUID PRIMARY KEY,
	pairing_code VARCHAR(20) NOT NULL UNIQUE,
	status VARCHAR(16) NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	expires_at TIMESTAMPTZ NOT NULL,
	activated_at TIMESTAMPTZ,
	last_seen_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_screens_expires_at ON screens (expires_at);
`

func Migrate(ctx context.Context, db *DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
