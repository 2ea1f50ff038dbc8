package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"taskmux/internal/core"

	"github.com/go-chi/chi/v5"
)

type startTaskRequest struct {
	Command     string            `json:"command"`
	Args        []string          `json:"args"`
	WorkingDir  *string           `json:"working_dir"`
	Env         map[string]string `json:"env"`
	Name        *string           `json:"name"`
	MaxLogBytes int               `json:"max_log_bytes"`
}

type writeRequest struct {
	Data       string `json:"data"`
	AddNewline bool   `json:"add_newline"`
}

type signalRequest struct {
	Signal string `json:"signal"`
}

type stopRequest struct {
	TimeoutMs int `json:"timeout_ms"`
}

type waitRequest struct {
	TimeoutMs *int `json:"timeout_ms"`
}

type pruneRequest struct {
	IncludeRunning bool `json:"include_running"`
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	var req startTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "command is required")
		return
	}

	summary, err := s.registry.Start(core.StartSpec{
		Command:     req.Command,
		Args:        req.Args,
		WorkingDir:  req.WorkingDir,
		Env:         req.Env,
		Name:        req.Name,
		MaxLogBytes: req.MaxLogBytes,
	})
	if err != nil {
		if errors.Is(err, core.ErrLaunch) {
			writeError(w, http.StatusBadRequest, "launch_failed", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	summary, err := s.registry.Status(taskID)
	if err != nil {
		s.writeTaskError(w, taskID, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	var offset, tail *int
	if v := r.URL.Query().Get("offset"); v != "" {
		n := parseIntDefault(v, 0)
		offset = &n
	}
	if v := r.URL.Query().Get("tail"); v != "" {
		n := parseIntDefault(v, 0)
		tail = &n
	}
	includeTimestamps := true
	if v := r.URL.Query().Get("timestamps"); v != "" {
		includeTimestamps = v == "1" || strings.EqualFold(v, "true")
	}

	view, err := s.registry.Logs(taskID, offset, tail, includeTimestamps)
	if err != nil {
		s.writeTaskError(w, taskID, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	if err := s.registry.Write(taskID, req.Data, req.AddNewline); err != nil {
		s.writeTaskError(w, taskID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	result, err := s.registry.Signal(taskID, req.Signal)
	if err != nil {
		s.writeTaskError(w, taskID, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	req := stopRequest{}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
	}

	timeout := s.stopTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	summary, err := s.registry.Stop(taskID, timeout)
	if err != nil {
		s.writeTaskError(w, taskID, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleWait(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	req := waitRequest{}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
	}

	var timeout *time.Duration
	if req.TimeoutMs != nil {
		d := time.Duration(*req.TimeoutMs) * time.Millisecond
		timeout = &d
	}

	result, err := s.registry.Wait(taskID, timeout)
	if err != nil {
		s.writeTaskError(w, taskID, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	req := pruneRequest{}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
	}
	writeJSON(w, http.StatusOK, s.registry.Prune(req.IncludeRunning))
}

func (s *Server) writeTaskError(w http.ResponseWriter, taskID string, err error) {
	switch {
	case errors.Is(err, core.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "not_found", "task not found")
	case errors.Is(err, core.ErrNotRunning):
		writeError(w, http.StatusConflict, "not_running", "task is not running")
	default:
		s.logger.Error("task operation", "task_id", taskID, "err", err)
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	}
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
