package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clubhousehq/screens-server-go/internal/model"
)

type mockScreenRepo struct {
	deleteExpiredCalls atomic.Int64
	deleteExpiredErr   error
}

func (m *mockScreenRepo) FindByCode(ctx context.Context, code string) (*model.Screen, error) {
	return nil, nil
}

func (m *mockScreenRepo) List(ctx context.Context) ([]model.Screen, error) {
	return nil, nil
}

func (m *mockScreenRepo) Create(ctx context.Context, params model.CreateScreenParams) (*model.Screen, error) {
	return nil, nil
}

func (m *mockScreenRepo) Activate(ctx context.Context, code string, now time.Time) (int64, error) {
	return 0, nil
}

func (m *mockScreenRepo) TouchLastSeen(ctx context.Context, code string, now time.Time) error {
	return nil
}

func (m *mockScreenRepo) Delete(ctx context.Context, code string) (int64, error) {
	return 0, nil
}

func (m *mockScreenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	m.deleteExpiredCalls.Add(1)
	return 2, m.deleteExpiredErr
}

func TestCleanupJob(t *testing.T) {
	t.Run("runs an immediate sweep on start", func(t *testing.T) {
		repo := &mockScreenRepo{}
		job := NewCleanupJob(repo, time.Hour)

		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool {
			return repo.deleteExpiredCalls.Load() >= 1
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("keeps sweeping on the interval", func(t *testing.T) {
		repo := &mockScreenRepo{}
		job := NewCleanupJob(repo, 20*time.Millisecond)

		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool {
			return repo.deleteExpiredCalls.Load() >= 3
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("survives repository errors", func(t *testing.T) {
		repo := &mockScreenRepo{deleteExpiredErr: assert.AnError}
		job := NewCleanupJob(repo, 20*time.Millisecond)

		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool {
			return repo.deleteExpiredCalls.Load() >= 2
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("stop halts the sweeps", func(t *testing.T) {
		repo := &mockScreenRepo{}
		job := NewCleanupJob(repo, 10*time.Millisecond)

		job.Start()
		time.Sleep(50 * time.Millisecond)
		job.Stop()

		after := repo.deleteExpiredCalls.Load()
		time.Sleep(50 * time.Millisecond)
		assert.LessOrEqual(t, repo.deleteExpiredCalls.Load(), after+1)
	})
}
