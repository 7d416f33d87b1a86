package http

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"fleetwatch/tracking/internal/access"
	"fleetwatch/tracking/internal/apperr"
	"fleetwatch/tracking/internal/attendance"
	"fleetwatch/tracking/internal/auth"
	"fleetwatch/tracking/internal/config"
	"fleetwatch/tracking/internal/logging"
	"fleetwatch/tracking/internal/metrics"
	"fleetwatch/tracking/internal/notify"
	"fleetwatch/tracking/internal/position"
	"fleetwatch/tracking/internal/report"
)

// Services groups the core operations the HTTP layer exposes.
type Services struct {
	Resolver      *access.Resolver
	Positions     *position.Service
	Attendance    *attendance.Service
	Notifications *notify.Service
	Reports       *report.Service
}

type Server struct {
	cfg          config.Config
	svc          Services
	jwtPublicKey *rsa.PublicKey
	metrics      *metrics.Metrics
	logger       *slog.Logger
	validate     *validator.Validate
}

func NewServer(cfg config.Config, svc Services, m *metrics.Metrics, logger *slog.Logger) (*Server, error) {
	publicKey, err := auth.ParseRSAPublicKey(cfg.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		cfg:          cfg,
		svc:          svc,
		jwtPublicKey: publicKey,
		metrics:      m,
		logger:       logger,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/scope", s.handleGetScope)

		r.Get("/vehicles/current", s.handleListCurrent)
		r.Post("/vehicles/{vehicleId}/position", s.handleReportPosition)
		r.Get("/vehicles/{vehicleId}/history", s.handleListHistory)

		r.Post("/attendance", s.handleMarkAttendance)
		r.Get("/attendance", s.handleListAttendance)

		r.Post("/notifications", s.handleCreateNotification)
		r.Get("/notifications", s.handleListNotifications)
		r.Post("/notifications/read-all", s.handleMarkAllRead)
		r.Post("/notifications/{notificationId}/read", s.handleMarkRead)

		r.Post("/reports", s.handleGenerateReport)
		r.Get("/reports", s.handleListReports)
	})

	return r
}

// Auth

type callerKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.jwtPublicKey, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), callerKey{}, claims.Caller())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFromContext(ctx context.Context) (access.Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(access.Caller)
	return caller, ok
}

// Helpers

// writeAppError maps a core error onto its status code. Storage failures are
// logged with their cause; the client only sees server_error.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		writeError(w, http.StatusBadRequest, apperr.CodeOf(err))
	case apperr.KindAccessDenied:
		writeError(w, http.StatusForbidden, apperr.CodeOf(err))
	case apperr.KindNotFound:
		writeError(w, http.StatusNotFound, apperr.CodeOf(err))
	case apperr.KindConflict:
		writeError(w, http.StatusConflict, apperr.CodeOf(err))
	default:
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, apperr.CodeServerError)
	}
}

// decodeBody decodes a JSON body and checks its validate tags.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := decodeJSON(r, out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return false
	}
	if err := s.validate.Struct(out); err != nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return false
	}
	return true
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// queryLimit reads ?limit=. Absent means 0, which every service treats as its
// default.
func queryLimit(r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return limit, true
}
