package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aegisai/aegis/pkg/types"
)

const maxRequestBody = 1 << 20 // requests are briefs, not uploads

func (s *Server) submitMission(w http.ResponseWriter, r *http.Request) {
	var req types.SubmitMissionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Priority != "" && req.Brief.Priority == "" {
		req.Brief.Priority = req.Priority
	}

	resp, err := s.orch.InitializeMission(req.Brief, req.DryRun)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) listMissions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.orch.ListMissions())
}

func (s *Server) getMission(w http.ResponseWriter, r *http.Request) {
	view, err := s.orch.GetMission(chi.URLParam(r, "missionID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) cancelMission(w http.ResponseWriter, r *http.Request) {
	var req types.CancelMissionRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
	}

	resp, err := s.orch.CancelMission(chi.URLParam(r, "missionID"), req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getSwarm(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.pool.View())
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, types.HealthResponse{
		Healthy:        true,
		Version:        s.version,
		UptimeSec:      int64(time.Since(s.startedAt).Seconds()),
		ActiveWorkers:  s.pool.CountActive(),
		TotalWorkers:   s.pool.TotalSlots(),
		ActiveMissions: s.orch.ActiveMissions(),
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return types.Wrap(types.KindInvalidParameter, err, "malformed request body")
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps a classified error onto an HTTP status. Unclassified
// errors are internal.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := types.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case types.KindInvalidBrief, types.KindInvalidPath, types.KindInvalidParameter:
		status = http.StatusBadRequest
	case types.KindNotFound, types.KindWorkspaceMissing:
		status = http.StatusNotFound
	case types.KindAlreadyExists, types.KindNotCancellable, types.KindAlreadyCancelled, types.KindSlotBusy:
		status = http.StatusConflict
	case types.KindFileTooLarge:
		status = http.StatusRequestEntityTooLarge
	case types.KindCapacityExceeded:
		status = http.StatusTooManyRequests
	case types.KindNoSlot:
		status = http.StatusServiceUnavailable
	}

	var typed *types.Error
	if !errors.As(err, &typed) {
		typed = &types.Error{Kind: types.KindIoFailure, Message: err.Error()}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	s.writeJSON(w, status, types.ErrorResponse{Error: types.ErrorBody{
		Kind:    typed.Kind,
		Message: typed.Message,
	}})
}
