package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/zoe-analytics/zoe/pkg/auth"
	"github.com/zoe-analytics/zoe/pkg/metrics"
	"github.com/zoe-analytics/zoe/pkg/storage"
	"github.com/zoe-analytics/zoe/pkg/types"
)

type ctxKey int

const (
	userKey ctxKey = iota
	requestIDKey
)

// requestID tags every request with a unique id, echoed in the response
// headers and the logs.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps log streaming working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(r.Method).Observe(elapsed.Seconds())

		reqID, _ := r.Context().Value(requestIDKey).(string)
		s.logger.Debug().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", elapsed).
			Msg("request")
	})
}

// basicAuth authenticates the request with HTTP Basic credentials and loads
// (or creates, on first sight) the matching user record.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="zoe"`)
			s.writeError(w, r, auth.ErrInvalidCredentials)
			return
		}

		principal, err := s.authenticator.Authenticate(username, password)
		if err != nil {
			s.writeError(w, r, auth.ErrInvalidCredentials)
			return
		}

		user, err := s.userFor(principal)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func (s *Server) userFor(principal *auth.Principal) (*types.User, error) {
	user, err := s.store.UserGetByName(principal.Name)
	if errors.Is(err, storage.ErrNotFound) {
		id, err := s.store.UserNew(principal.Name, principal.Role)
		if err != nil {
			return nil, err
		}
		return s.store.UserGet(id)
	}
	if err != nil {
		return nil, err
	}
	// The directory is authoritative for the role
	user.Role = principal.Role
	return user, nil
}

func requestUser(r *http.Request) *types.User {
	user, _ := r.Context().Value(userKey).(*types.User)
	return user
}
