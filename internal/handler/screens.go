package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/clubhousehq/screens-server-go/internal/audit"
	apperrors "github.com/clubhousehq/screens-server-go/internal/errors"
	"github.com/clubhousehq/screens-server-go/internal/httputil"
	"github.com/clubhousehq/screens-server-go/internal/middleware"
	"github.com/clubhousehq/screens-server-go/internal/model"
	"github.com/clubhousehq/screens-server-go/internal/service"
	"github.com/clubhousehq/screens-server-go/internal/util"
)

type ScreenHandler struct {
	pairingService *service.PairingService
}

func NewScreenHandler(pairingService *service.PairingService) *ScreenHandler {
	return &ScreenHandler{
		pairingService: pairingService,
	}
}

type activateRequest struct {
	PairingCode string `json:"pairing_code"`
}

// POST /screens/pair
//
// Called by an unactivated kiosk. Returns the code the kiosk puts on screen
// for the operator to enter.
func (h *ScreenHandler) RequestPairing(w http.ResponseWriter, r *http.Request) {
	screen, err := h.pairingService.RequestPairing(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to issue pairing code")
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type: audit.EventPairRequest,
		Code: util.MaskCode(screen.PairingCode),
	})

	writeJSON(w, http.StatusOK, map[string]string{
		"pairing_code": screen.PairingCode,
	})
}

// GET /screens/status/{code}
//
// Kiosks poll this until activated is true. Unknown codes return 404 so the
// kiosk restarts pairing; expired codes are flagged for the same reason.
func (h *ScreenHandler) Status(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		httputil.WriteError(w, apperrors.MissingRequired("code"))
		return
	}

	result, err := h.pairingService.Status(r.Context(), code)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// POST /screens/activate (admin)
func (h *ScreenHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.PairingCode == "" {
		httputil.WriteError(w, apperrors.MissingRequired("pairing_code"))
		return
	}

	if err := h.pairingService.Activate(r.Context(), req.PairingCode); err != nil {
		httputil.WriteError(w, err)
		return
	}

	event := audit.Event{
		Type: audit.EventScreenActivate,
		Code: util.MaskCode(req.PairingCode),
	}
	if user := middleware.GetUser(r.Context()); user != nil {
		event.UserID = user.ID
	}
	audit.LogFromRequest(r, event)

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Screen activated successfully",
	})
}

// GET /screens (admin)
func (h *ScreenHandler) List(w http.ResponseWriter, r *http.Request) {
	screens, err := h.pairingService.ListScreens(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list screens")
		httputil.WriteError(w, err)
		return
	}

	if screens == nil {
		screens = []model.Screen{}
	}
	writeJSON(w, http.StatusOK, screens)
}

// DELETE /screens/{code} (admin)
func (h *ScreenHandler) Delete(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		httputil.WriteError(w, apperrors.MissingRequired("code"))
		return
	}

	if err := h.pairingService.DeleteScreen(r.Context(), code); err != nil {
		httputil.WriteError(w, err)
		return
	}

	event := audit.Event{
		Type: audit.EventScreenDelete,
		Code: util.MaskCode(code),
	}
	if user := middleware.GetUser(r.Context()); user != nil {
		event.UserID = user.ID
	}
	audit.LogFromRequest(r, event)

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Screen deleted",
	})
}
