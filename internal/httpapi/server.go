// Package httpapi exposes feeding, status, settings and intake records over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"snackloader/internal/feeding"
	"snackloader/internal/livedata"
	"snackloader/internal/metrics"
	"snackloader/internal/model"
	"snackloader/internal/settings"
)

// Feeder runs a feeding.
type Feeder interface {
	Execute(ctx context.Context, pet model.Pet, requested int, source model.Source) (model.FeedingOutcome, error)
}

// SettingsEditor reads and edits the feeder settings document.
type SettingsEditor interface {
	GetOrDefault(ctx context.Context, userID string) (model.FeederSettings, error)
	Save(ctx context.Context, s model.FeederSettings) (model.FeederSettings, error)
	AddEntry(ctx context.Context, userID string, pet model.Pet, entry model.ScheduleEntry) (model.FeederSettings, error)
	RemoveEntry(ctx context.Context, userID string, pet model.Pet, index int) (model.FeederSettings, error)
	SetAutoFeed(ctx context.Context, userID string, enabled bool) (model.FeederSettings, error)
}

// LiveState exposes the latest device readings.
type LiveState interface {
	Snapshot() livedata.Snapshot
}

// IntakeReader reads ledger days.
type IntakeReader interface {
	Day(ctx context.Context, date string) ([]model.DailyIntake, error)
}

// HistoryReader lists recent feeding evaluations.
type HistoryReader interface {
	ListFeedEvents(ctx context.Context, limit int) ([]model.FeedEvent, error)
}

// Services are the application components the API drives.
type Services struct {
	Feeder   Feeder
	Settings SettingsEditor
	Live     LiveState
	Intake   IntakeReader
	History  HistoryReader
}

// Server routes HTTP requests to the feeder services of one device and user.
type Server struct {
	svc      Services
	deviceID string
	userID   string
	log      *slog.Logger
	metrics  *metrics.Metrics
	router   *mux.Router
}

// New creates a Server. m may be nil.
func New(svc Services, deviceID, userID string, log *slog.Logger, m *metrics.Metrics) *Server {
	s := &Server{
		svc:      svc,
		deviceID: deviceID,
		userID:   userID,
		log:      log,
		metrics:  m,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle("/healthz", s.handleHealth, http.MethodGet)
	s.handle("/device/{deviceID}/feed-{pet}", s.handleFeed, http.MethodPost)
	s.handle("/device/{deviceID}/status", s.handleStatus, http.MethodGet)
	s.handle("/settings", s.handleGetSettings, http.MethodGet)
	s.handle("/settings", s.handlePutSettings, http.MethodPut)
	s.handle("/settings/autofeed", s.handleAutoFeed, http.MethodPut)
	s.handle("/settings/{pet}/schedule", s.handleAddEntry, http.MethodPost)
	s.handle("/settings/{pet}/schedule/{index:[0-9]+}", s.handleRemoveEntry, http.MethodDelete)
	s.handle("/intake/{date}", s.handleIntake, http.MethodGet)
	s.handle("/history", s.handleHistory, http.MethodGet)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
}

func (s *Server) handle(route string, h http.HandlerFunc, method string) {
	s.router.Handle(route, s.metrics.WrapHandler(route, h)).Methods(method)
}

// Handler returns the router wrapped with access logging and panic recovery.
func (s *Server) Handler() http.Handler {
	logger := slog.NewLogLogger(s.log.Handler(), slog.LevelInfo)
	var h http.Handler = s.router
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(logger), handlers.PrintRecoveryStack(false))(h)
	return handlers.LoggingHandler(logger.Writer(), h)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// fail maps service errors onto status codes. Collaborator failures are
// reported without their cause.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, feeding.ErrFeedingFailed):
		writeError(w, http.StatusBadGateway, "feeding failed")
	case errors.Is(err, model.ErrInvalidPet),
		errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, settings.ErrInvalidTime),
		errors.Is(err, settings.ErrIndexOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
