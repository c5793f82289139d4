package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/clubhousehq/screens-server-go/internal/model"
)

type ScreenRepository interface {
	FindByCode(ctx context.Context, code string) (*model.Screen, error)
	List(ctx context.Context) ([]model.Screen, error)
	Create(ctx context.Context, params model.CreateScreenParams) (*model.Screen, error)
	// Activate performs the conditional pending->activated transition and
	// returns the number of rows affected. Zero rows means the screen was
	// activated or expired between the caller's precondition check and the
	// update; multiple server replicas share one store, so this is the only
	// race arbiter.
	Activate(ctx context.Context, code string, now time.Time) (int64, error)
	TouchLastSeen(ctx context.Context, code string, now time.Time) error
	Delete(ctx context.Context, code string) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type screenRepo struct {
	db *sqlx.DB
}

func NewScreenRepository(db *sqlx.DB) ScreenRepository {
	return &screenRepo{db: db}
}

func (r *screenRepo) FindByCode(ctx context.Context, code string) (*model.Screen, error) {
	var s model.Screen
	err := r.db.GetContext(ctx, &s, `
		SELECT * FROM screens WHERE pairing_code = $1
	`, code)
	return HandleNotFound(&s, err)
}

func (r *screenRepo) List(ctx context.Context) ([]model.Screen, error) {
	var screens []model.Screen
	err := r.db.SelectContext(ctx, &screens, `
		SELECT * FROM screens ORDER BY created_at DESC
	`)
	return screens, err
}

func (r *screenRepo) Create(ctx context.Context, params model.CreateScreenParams) (*model.Screen, error) {
	var s model.Screen
	err := r.db.GetContext(ctx, &s, `
		INSERT INTO screens (id, pairing_code, status, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, params.ID, params.PairingCode, model.ScreenStatusPending, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *screenRepo) Activate(ctx context.Context, code string, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE screens SET
			status = $2,
			activated_at = $3
		WHERE pairing_code = $1 AND status = $4 AND expires_at > $3
	`, code, model.ScreenStatusActivated, now, model.ScreenStatusPending)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *screenRepo) TouchLastSeen(ctx context.Context, code string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE screens SET last_seen_at = $2 WHERE pairing_code = $1
	`, code, now)
	return err
}

func (r *screenRepo) Delete(ctx context.Context, code string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM screens WHERE pairing_code = $1
	`, code)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *screenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM screens
		WHERE expires_at < NOW() AND status = $1
	`, model.ScreenStatusPending)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
