package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zoe-analytics/zoe/pkg/storage"
	"github.com/zoe-analytics/zoe/pkg/types"
)

const (
	zoeVersion               = "1.0.0"
	apiVersion               = "0.7"
	applicationFormatVersion = 3
)

type infoResponse struct {
	Version                  string `json:"version"`
	APIVersion               string `json:"api_version"`
	ApplicationFormatVersion int    `json:"application_format_version"`
	DeploymentName           string `json:"deployment_name"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, &infoResponse{
		Version:                  zoeVersion,
		APIVersion:               apiVersion,
		ApplicationFormatVersion: applicationFormatVersion,
		DeploymentName:           s.cfg.DeploymentName,
	})
}

type executionStartRequest struct {
	Name        string          `json:"name"`
	Application json.RawMessage `json:"application"`
}

func (s *Server) handleExecutionStart(w http.ResponseWriter, r *http.Request) {
	var req executionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	id, err := s.endpoint.ExecutionStart(requestUser(r), req.Name, req.Application)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]int{"execution_id": id})
}

func (s *Server) handleExecutionList(w http.ResponseWriter, r *http.Request) {
	filters := storage.Filters{}
	if status := r.URL.Query().Get("status"); status != "" {
		filters["status"] = types.ExecutionStatus(status)
	}

	executions, err := s.endpoint.ExecutionList(requestUser(r), filters)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, executions)
}

func (s *Server) handleExecutionGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, storage.ErrNotFound)
		return
	}
	execution, err := s.endpoint.ExecutionByID(requestUser(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, execution)
}

func (s *Server) handleExecutionTerminate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, storage.ErrNotFound)
		return
	}
	if err := s.endpoint.ExecutionTerminate(requestUser(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExecutionDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, storage.ErrNotFound)
		return
	}
	if err := s.endpoint.ExecutionDelete(requestUser(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleServiceList(w http.ResponseWriter, r *http.Request) {
	filters := storage.Filters{}
	if raw := r.URL.Query().Get("execution_id"); raw != "" {
		executionID, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "execution_id must be an integer", http.StatusBadRequest)
			return
		}
		filters["execution_id"] = executionID
	}

	services, err := s.endpoint.ServiceList(requestUser(r), filters)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, services)
}

func (s *Server) handleServiceGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, storage.ErrNotFound)
		return
	}
	service, err := s.endpoint.ServiceByID(requestUser(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, service)
}

func (s *Server) handleServiceLogs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, storage.ErrNotFound)
		return
	}
	follow := r.URL.Query().Get("stream") == "1"

	stream, err := s.endpoint.ServiceLogs(r.Context(), requestUser(r), id, follow)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for {
		line, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			return
		}
		if _, err := io.WriteString(w, line.Line+"\n"); err != nil {
			return
		}
		if follow && flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleSchedulerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.endpoint.StatisticsScheduler()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("cannot encode response")
	}
}

func pathID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}
