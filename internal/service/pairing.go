package service

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/clubhousehq/screens-server-go/internal/errors"
	"github.com/clubhousehq/screens-server-go/internal/model"
	"github.com/clubhousehq/screens-server-go/internal/repository"
	"github.com/clubhousehq/screens-server-go/internal/util"
)

// pairingCodeChars excludes O, I, 0 and 1: codes are read off a TV screen and
// typed by hand.
const pairingCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// maxCodeAttempts bounds insert retries when a generated code collides with a
// live one.
const maxCodeAttempts = 10

// ScreenStatusResult is the polling response for a kiosk waiting on activation.
type ScreenStatusResult struct {
	Activated bool `json:"activated"`
	Expired   bool `json:"expired"`
}

type PairingService struct {
	screenRepo repository.ScreenRepository
	ttl        time.Duration
	codeLength int
}

func NewPairingService(screenRepo repository.ScreenRepository, ttl time.Duration, codeLength int) *PairingService {
	return &PairingService{
		screenRepo: screenRepo,
		ttl:        ttl,
		codeLength: codeLength,
	}
}

// RequestPairing issues a fresh pairing code for an unactivated screen. Expired
// pending codes are purged opportunistically first; a failed purge is logged
// and must not block issuance.
func (s *PairingService) RequestPairing(ctx context.Context) (*model.Screen, error) {
	if count, err := s.screenRepo.DeleteExpired(ctx); err != nil {
		log.Warn().Err(err).Msg("expired pairing code cleanup failed")
	} else if count > 0 {
		log.Debug().Int64("count", count).Msg("purged expired pairing codes")
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := generatePairingCode(s.codeLength)

		screen, err := s.screenRepo.Create(ctx, model.CreateScreenParams{
			ID:          uuid.NewString(),
			PairingCode: code,
			ExpiresAt:   time.Now().Add(s.ttl),
		})
		if repository.IsUniqueViolation(err) {
			log.Debug().Str("code", util.MaskCode(code)).Msg("pairing code collision, regenerating")
			continue
		}
		if err != nil {
			return nil, apperrors.Database(err)
		}

		log.Info().
			Str("code", util.MaskCode(screen.PairingCode)).
			Time("expiresAt", screen.ExpiresAt).
			Msg("pairing code issued")

		return screen, nil
	}

	return nil, apperrors.Internal("Could not generate a unique pairing code")
}

// Status reports whether a screen has been activated. Expiry is evaluated here
// too so a kiosk polling a timed-out code can restart pairing instead of
// waiting forever.
func (s *PairingService) Status(ctx context.Context, code string) (*ScreenStatusResult, error) {
	normalized := normalizeCode(code)

	screen, err := s.screenRepo.FindByCode(ctx, normalized)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if screen == nil {
		return nil, apperrors.NotFound("Pairing code")
	}

	// Liveness marker only; a failed touch never fails the poll.
	if err := s.screenRepo.TouchLastSeen(ctx, normalized, time.Now()); err != nil {
		log.Warn().Err(err).Str("code", util.MaskCode(normalized)).Msg("failed to touch last seen")
	}

	return &ScreenStatusResult{
		Activated: screen.Status == model.ScreenStatusActivated,
		Expired:   screen.Status == model.ScreenStatusPending && screen.Expired(time.Now()),
	}, nil
}

// Activate marks a pending, unexpired screen as trusted. Preconditions are
// checked in order (exists, unexpired, pending) so the operator sees the most
// specific failure; the transition itself is a conditional update, and losing
// that race reports AlreadyActivated rather than success.
func (s *PairingService) Activate(ctx context.Context, code string) error {
	normalized := normalizeCode(code)

	screen, err := s.screenRepo.FindByCode(ctx, normalized)
	if err != nil {
		return apperrors.Database(err)
	}
	if screen == nil {
		return apperrors.InvalidPairingCode()
	}

	now := time.Now()
	if screen.Expired(now) {
		return apperrors.PairingExpired()
	}
	if screen.Status != model.ScreenStatusPending {
		return apperrors.AlreadyActivated()
	}

	rows, err := s.screenRepo.Activate(ctx, normalized, now)
	if err != nil {
		return apperrors.Database(err)
	}
	if rows == 0 {
		// Another activation (or expiry) won between the check and the update.
		return apperrors.AlreadyActivated()
	}

	log.Info().Str("code", util.MaskCode(normalized)).Msg("screen activated")
	return nil
}

// ListScreens returns every session, newest first.
func (s *PairingService) ListScreens(ctx context.Context) ([]model.Screen, error) {
	screens, err := s.screenRepo.List(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return screens, nil
}

// DeleteScreen removes a session regardless of its state.
func (s *PairingService) DeleteScreen(ctx context.Context, code string) error {
	normalized := normalizeCode(code)

	rows, err := s.screenRepo.Delete(ctx, normalized)
	if err != nil {
		return apperrors.Database(err)
	}
	if rows == 0 {
		return apperrors.NotFound("Pairing code")
	}

	log.Info().Str("code", util.MaskCode(normalized)).Msg("screen deleted")
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func generatePairingCode(length int) string {
	chars := []byte(pairingCodeChars)
	code := make([]byte, length)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		code[i] = chars[n.Int64()]
	}
	return string(code)
}
