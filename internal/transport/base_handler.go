package transport

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/pkg/logger"
)

const maxBodyBytes = 1 << 20

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
	}
	return &BaseHandler{Logger: lg}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

// WriteAppError writes err in the standard error envelope.
func (h *BaseHandler) WriteAppError(w http.ResponseWriter, err *internal.AppError) {
	status, body := err.ToHTTPResponse()
	h.WriteJSON(w, status, body)
}

// WriteError writes a bare status and message for failures that never
// reached a service.
func (h *BaseHandler) WriteError(w http.ResponseWriter, status int, message string) {
	appErr := &internal.AppError{
		Type:       internal.ErrorTypeValidation,
		Code:       internal.ErrCodeValidationFailed,
		Message:    message,
		StatusCode: status,
	}
	switch {
	case status == http.StatusUnauthorized:
		appErr.Type, appErr.Code = internal.ErrorTypeUnauthorized, internal.ErrCodeMissingToken
	case status == http.StatusForbidden:
		appErr.Type, appErr.Code = internal.ErrorTypeForbidden, internal.ErrCodePermissionDenied
	case status >= http.StatusInternalServerError:
		appErr.Type, appErr.Code = internal.ErrorTypeInternal, internal.ErrCodeInternal
	}
	h.WriteAppError(w, appErr)
}

// HandleServiceError maps a service error to its HTTP status. Anything that
// is not an AppError is logged and reported as a generic 500.
func (h *BaseHandler) HandleServiceError(w http.ResponseWriter, err error) {
	appErr, ok := internal.IsAppError(err)
	if !ok {
		h.Logger.Error("unhandled service error", "error", err)
		h.WriteAppError(w, internal.NewBusinessLogicError("internal server error", err))
		return
	}
	if appErr.StatusCode >= http.StatusInternalServerError {
		h.Logger.Error("service error", "code", appErr.Code, "error", appErr)
	}
	h.WriteAppError(w, appErr)
}

// DecodeJSON reads a JSON body, rejecting unknown fields. It writes the 400
// itself and returns false on failure.
func (h *BaseHandler) DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.Logger.Warn("invalid request body", "path", r.URL.Path, "error", err)
		h.WriteAppError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return false
	}
	return true
}

// IDParam parses a positive int64 chi URL parameter. It writes the 400 itself
// and returns false on failure.
func (h *BaseHandler) IDParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.WriteAppError(w, internal.NewValidationFieldError(name, name+" must be a positive integer", internal.ErrCodeInvalidID))
		return 0, false
	}
	return id, true
}

// IntQuery reads an integer query parameter, falling back to def when it is
// absent. It writes the 400 itself and returns false when it is malformed.
func (h *BaseHandler) IntQuery(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		h.WriteAppError(w, internal.NewValidationFieldError(name, name+" must be an integer", internal.ErrCodeValidationFailed))
		return 0, false
	}
	return n, true
}

// BoolQuery reads a boolean query parameter, falling back to def.
func (h *BaseHandler) BoolQuery(r *http.Request, name string, def bool) bool {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

// ExtractTokenFromHeader extracts Bearer token from Authorization header
func (h *BaseHandler) ExtractTokenFromHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authHeader[7:])
}

// ClientIP returns the caller address without the port. Forwarding headers
// only count when the router trusts its proxy and has rewritten RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
