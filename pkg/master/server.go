package master

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zoe-analytics/zoe/pkg/log"
	"github.com/zoe-analytics/zoe/pkg/scheduler"
	"github.com/zoe-analytics/zoe/pkg/storage"
	"github.com/zoe-analytics/zoe/pkg/types"
)

// Server answers the front-end over the master channel: a JSON request/reply
// exchange carrying the four execution commands. All scheduling decisions
// stay behind this boundary; the front-end never touches the scheduler
// directly.
type Server struct {
	store  storage.Store
	sched  *scheduler.Scheduler
	logger zerolog.Logger
	http   *http.Server
}

// NewServer creates a channel server listening on listenURI.
func NewServer(store storage.Store, sched *scheduler.Scheduler, listenURI string) *Server {
	s := &Server{
		store:  store,
		sched:  sched,
		logger: log.WithComponent("master"),
	}

	r := chi.NewRouter()
	r.Post("/", s.handleRequest)

	s.http = &http.Server{
		Addr:         listenURI,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}
	return s
}

// Handler exposes the channel's HTTP handler, mainly so tests can mount it
// on an ephemeral listener.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start begins serving the channel. It returns once the listener is bound,
// so a client started right after cannot race the socket.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	s.logger.Info().Str("listen", s.http.Addr).Msg("master channel listening")
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("master channel server failed")
		}
	}()
	return nil
}

// Stop shuts the channel down, waiting for in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeReply(w, &Reply{Success: false, Message: "malformed request: " + err.Error()})
		return
	}

	s.logger.Debug().Str("command", req.Command).Int("execution_id", req.ExecutionID).Msg("channel request")

	var reply *Reply
	switch req.Command {
	case CmdExecutionStart:
		reply = s.executionStart(req.ExecutionID)
	case CmdExecutionTerminate:
		reply = s.executionTerminate(req.ExecutionID)
	case CmdExecutionDelete:
		reply = s.executionDelete(req.ExecutionID)
	case CmdSchedulerStats:
		reply = &Reply{Success: true, Message: "ok", Data: s.sched.Stats()}
	default:
		reply = &Reply{Success: false, Message: "unknown command: " + req.Command}
	}
	s.writeReply(w, reply)
}

func (s *Server) writeReply(w http.ResponseWriter, reply *Reply) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		s.logger.Error().Err(err).Msg("cannot encode channel reply")
	}
}

func (s *Server) executionStart(id int) *Reply {
	execution, err := s.store.ExecutionGet(id)
	if err != nil {
		return &Reply{Success: false, Message: "no such execution"}
	}
	// Duplicate deliveries from the front-end retry loop arrive after the
	// first one has already queued the execution.
	if execution.Status != types.ExecutionSubmitted {
		return &Reply{Success: true, Message: "ok"}
	}
	if err := s.store.SetScheduled(id); err != nil {
		return &Reply{Success: false, Message: err.Error()}
	}
	execution.Status = types.ExecutionScheduled
	s.sched.Incoming(execution)
	return &Reply{Success: true, Message: "ok"}
}

func (s *Server) executionTerminate(id int) *Reply {
	execution, err := s.store.ExecutionGet(id)
	if err != nil {
		return &Reply{Success: false, Message: "no such execution"}
	}
	if !execution.IsActive() {
		return &Reply{Success: false, Message: "execution is not running"}
	}
	s.sched.Terminate(execution)
	return &Reply{Success: true, Message: "ok"}
}

// executionDelete drives an active execution all the way to terminated
// before removing it, so no container outlives its database row.
func (s *Server) executionDelete(id int) *Reply {
	execution, err := s.store.ExecutionGet(id)
	if err != nil {
		return &Reply{Success: false, Message: "no such execution"}
	}
	if execution.IsActive() {
		<-s.sched.Terminate(execution)
	}
	if err := s.store.ExecutionDelete(id); err != nil {
		return &Reply{Success: false, Message: err.Error()}
	}
	return &Reply{Success: true, Message: "ok"}
}
