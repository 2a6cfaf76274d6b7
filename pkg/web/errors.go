package web

import (
	"errors"
	"net/http"

	"github.com/zoe-analytics/zoe/pkg/auth"
	"github.com/zoe-analytics/zoe/pkg/endpoint"
	"github.com/zoe-analytics/zoe/pkg/master"
	"github.com/zoe-analytics/zoe/pkg/storage"
	"github.com/zoe-analytics/zoe/pkg/zapp"
)

type errorResponse struct {
	Message string `json:"message"`
}

// writeError maps an error from the lower layers onto the documented HTTP
// status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	var nameErr *endpoint.NameInvalidError
	var descErr *zapp.InvalidDescriptionError
	var cmdErr *master.CommandError
	switch {
	case errors.As(err, &nameErr), errors.As(err, &descErr), errors.Is(err, endpoint.ErrNotRunning):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, endpoint.ErrQuotaExceeded):
		status = http.StatusPaymentRequired
	case errors.Is(err, endpoint.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, master.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.As(err, &cmdErr):
		status = http.StatusBadRequest
	default:
		reqID, _ := r.Context().Value(requestIDKey).(string)
		s.logger.Error().Str("request_id", reqID).Err(err).Msg("internal error")
	}

	s.writeJSON(w, status, &errorResponse{Message: err.Error()})
}
