// Package remote exposes the range controller's operator actions over HTTP.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"range-remote/internal/indicator"
	"range-remote/internal/link"
	"range-remote/internal/protocol"
	"range-remote/internal/sequencer"
	"range-remote/internal/settings"
)

// Controller runs sequencer commands. *sequencer.Runner implements it.
type Controller interface {
	Do(ctx context.Context, cmd sequencer.Command) (sequencer.Result, error)
	Snapshot() sequencer.Snapshot
}

// LinkControl manages the serial link. *link.Link implements it.
type LinkControl interface {
	Status() link.Status
	Connect(device string) error
	Disconnect() error
}

// SettingsService reads and updates persisted settings.
type SettingsService interface {
	Current() settings.Settings
	Update(next settings.Settings) error
}

// Display reports what a simulated indicator shows.
type Display interface {
	Display() indicator.Display
}

// Handler serves the operator API using go-chi.
type Handler struct {
	ctl      Controller
	link     LinkControl
	settings SettingsService
	display  Display
	ports    func() ([]string, error)
	log      *slog.Logger
}

// NewHandler returns a Handler. display may be nil when no simulated
// indicator is attached.
func NewHandler(ctl Controller, l LinkControl, s SettingsService, display Display, log *slog.Logger) *Handler {
	return &Handler{
		ctl:      ctl,
		link:     l,
		settings: s,
		display:  display,
		ports:    link.Ports,
		log:      log,
	}
}

// Mount registers every route on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/session", h.GetSession)
	r.Post("/emergency-stop", h.EmergencyStop)
	r.Route("/target", func(r chi.Router) {
		r.Post("/start", h.StartTarget)
		r.Post("/score", h.Score)
		r.Post("/equipment-failure", h.EquipmentFailure)
	})
	r.Post("/matchplay/{detail}/start", h.StartMatchplay)
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.PutSettings)
	r.Route("/link", func(r chi.Router) {
		r.Get("/", h.GetLink)
		r.Get("/ports", h.GetPorts)
		r.Post("/connect", h.Connect)
		r.Post("/disconnect", h.Disconnect)
	})
	r.Get("/indicator", h.GetIndicator)
}

type actionResponse struct {
	RunID   string             `json:"runId,omitempty"`
	Session sequencer.Snapshot `json:"session"`
	Error   string             `json:"error,omitempty"`
}

type targetStartRequest struct {
	Detail *protocol.Detail `json:"detail"`
}

type equipmentFailureRequest struct {
	Arrows       int              `json:"arrows"`
	TimePerArrow int              `json:"timePerArrow"`
	Detail       *protocol.Detail `json:"detail"`
}

type connectRequest struct {
	Device string `json:"device"`
}

// StartTarget handles POST /target/start. Body: { "detail": "ab" }; without
// a detail the suggested one is used.
func (h *Handler) StartTarget(w http.ResponseWriter, r *http.Request) {
	var req targetStartRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.run(w, r, sequencer.Command{Type: sequencer.CmdStartTarget, Detail: req.Detail})
}

// Score handles POST /target/score.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, sequencer.Command{Type: sequencer.CmdScore})
}

// EquipmentFailure handles POST /target/equipment-failure.
// Body: { "arrows": 3, "timePerArrow": 40, "detail": "ab" }.
func (h *Handler) EquipmentFailure(w http.ResponseWriter, r *http.Request) {
	var req equipmentFailureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid equipment failure body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.run(w, r, sequencer.Command{
		Type:         sequencer.CmdEquipmentFailure,
		Arrows:       req.Arrows,
		TimePerArrow: req.TimePerArrow,
		Detail:       req.Detail,
	})
}

// StartMatchplay handles POST /matchplay/{detail}/start.
func (h *Handler) StartMatchplay(w http.ResponseWriter, r *http.Request) {
	detail, err := protocol.ParseDetail(chi.URLParam(r, "detail"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.run(w, r, sequencer.Command{Type: sequencer.CmdStartMatchplay, Detail: &detail})
}

// EmergencyStop handles POST /emergency-stop.
func (h *Handler) EmergencyStop(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, sequencer.Command{Type: sequencer.CmdEmergencyStop})
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, cmd sequencer.Command) {
	res, err := h.ctl.Do(r.Context(), cmd)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.log.Warn("action failed",
				slog.String("command", cmd.Type.String()),
				slog.String("run_id", res.RunID),
				slog.String("error", err.Error()))
		}
		snap := res.Snapshot
		if res.RunID == "" {
			snap = h.ctl.Snapshot()
		}
		writeJSON(w, status, actionResponse{RunID: res.RunID, Session: snap, Error: err.Error()})
		return
	}

	h.log.Info("action accepted", slog.String("command", cmd.Type.String()), slog.String("run_id", res.RunID))
	writeJSON(w, http.StatusAccepted, actionResponse{RunID: res.RunID, Session: res.Snapshot})
}

// GetSession handles GET /session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctl.Snapshot())
}

// GetSettings handles GET /settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Current())
}

// PutSettings handles PUT /settings. Fields missing from the body keep
// their current values.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	next := h.settings.Current()
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		h.log.Debug("invalid settings body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.settings.Update(next); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, settings.ErrInvalidSettings) {
			status = http.StatusBadRequest
		} else {
			h.log.Error("save settings failed", slog.String("error", err.Error()))
		}
		writeError(w, status, err)
		return
	}
	h.log.Info("settings updated")
	writeJSON(w, http.StatusOK, next)
}

// GetLink handles GET /link.
func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.link.Status())
}

// GetPorts handles GET /link/ports.
func (h *Handler) GetPorts(w http.ResponseWriter, r *http.Request) {
	ports, err := h.ports()
	if err != nil {
		h.log.Error("list serial ports failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if ports == nil {
		ports = []string{}
	}
	writeJSON(w, http.StatusOK, ports)
}

// Connect handles POST /link/connect. Body: { "device": "/dev/ttyUSB0" }.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Device == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.link.Connect(req.Device); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, h.link.Status())
}

// Disconnect handles POST /link/disconnect.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.link.Disconnect(); err != nil {
		h.log.Warn("disconnect", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, h.link.Status())
}

// GetIndicator handles GET /indicator. It is only available with a
// simulated indicator.
func (h *Handler) GetIndicator(w http.ResponseWriter, r *http.Request) {
	if h.display == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.display.Display())
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeOptional decodes a JSON body into v, accepting an empty body.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	h.log.Debug("invalid request body", slog.String("error", err.Error()))
	writeError(w, http.StatusBadRequest, err)
	return false
}

// statusFor maps action errors to HTTP statuses. Anything unrecognised,
// protocol.ErrPacketTooLarge included, is a server error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sequencer.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, link.ErrNoTransport), errors.Is(err, sequencer.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, link.ErrWriteTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
