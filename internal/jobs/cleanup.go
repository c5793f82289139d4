package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clubhousehq/screens-server-go/internal/repository"
)

// CleanupJob sweeps expired pending pairing codes on a fixed interval. The
// pairing service also purges opportunistically on each new pairing request;
// this job catches codes left behind when no kiosk is pairing.
type CleanupJob struct {
	screenRepo repository.ScreenRepository
	interval   time.Duration
	done       chan struct{}
}

func NewCleanupJob(screenRepo repository.ScreenRepository, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		screenRepo: screenRepo,
		interval:   interval,
		done:       make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := j.screenRepo.DeleteExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to cleanup expired pairing codes")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("cleaned up expired pairing codes")
	}
}
