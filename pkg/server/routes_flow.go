package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yesoreyeram/thaiyyal/backend/pkg/telemetry"
)

// flowRequest is the request body for creating or updating a stored flow.
type flowRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Data        json.RawMessage `json:"data"`
}

func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, s.store.List())
}

func (s *Server) handleCreateFlow(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.writeErrorResponse(w, "failed to read request body", http.StatusBadRequest, err)
		return
	}

	var req flowRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeErrorResponse(w, "invalid flow request", http.StatusBadRequest, err)
		return
	}

	id, err := s.store.Save(req.Name, req.Description, req.Data)
	if err != nil {
		s.writeErrorResponse(w, "failed to save flow", http.StatusBadRequest, err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, map[string]interface{}{"id": id})
}

func (s *Server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	flow, err := s.store.Load(id)
	if err != nil {
		s.writeErrorResponse(w, "flow not found", http.StatusNotFound, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, flow)
}

func (s *Server) handleUpdateFlow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body, err := s.readBody(w, r)
	if err != nil {
		s.writeErrorResponse(w, "failed to read request body", http.StatusBadRequest, err)
		return
	}

	var req flowRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeErrorResponse(w, "invalid flow request", http.StatusBadRequest, err)
		return
	}

	if err := s.store.Update(id, req.Name, req.Description, req.Data); err != nil {
		s.writeErrorResponse(w, "failed to update flow", http.StatusBadRequest, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"id": id})
}

func (s *Server) handleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Delete(id); err != nil {
		s.writeErrorResponse(w, "failed to delete flow", http.StatusNotFound, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"id": id})
}

// handleRun starts a flow run in the background and returns immediately,
// the Go equivalent of the source's `asyncio.create_task(process.run())`.
// Per spec §6, the request body IS the Flow payload to run; a
// `?flow_id=...` query parameter instead resolves to one already saved via
// /api/flow and takes precedence, so a client never needs to send a body
// just to replay a stored flow.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var payload json.RawMessage

	if flowID := r.URL.Query().Get("flow_id"); flowID != "" {
		stored, err := s.store.Load(flowID)
		if err != nil {
			s.writeErrorResponse(w, "flow not found", http.StatusNotFound, err)
			return
		}
		payload = stored.Data
		_ = s.store.RecordRun(flowID)
	} else {
		body, err := s.readBody(w, r)
		if err != nil {
			s.writeErrorResponse(w, "failed to read request body", http.StatusBadRequest, err)
			return
		}
		payload = body
	}
	if len(payload) == 0 {
		s.writeErrorResponse(w, "missing flow data", http.StatusBadRequest, errors.New("request body must contain a flow, or flow_id must reference a stored one"))
		return
	}

	observer := telemetry.NewTelemetryObserver(s.telemetryProvider)
	go func() {
		_, _ = s.driver.RunScript(context.Background(), payload, observer)
	}()

	s.writeJSONResponse(w, http.StatusAccepted, map[string]interface{}{"message": "Started process."})
}
