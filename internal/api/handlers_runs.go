// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/latticelabs/znsim/internal/log"
	"github.com/latticelabs/znsim/internal/model"
	"github.com/latticelabs/znsim/internal/sim"
	"github.com/latticelabs/znsim/internal/store"
)

// createRunRequest carries optional overrides of the default run parameters.
// Absent fields keep the reference defaults.
type createRunRequest struct {
	LatticeSize   *int                `json:"lattice_size"`
	States        *int                `json:"states"`
	Field         *float64            `json:"field"`
	Sweeps        *int                `json:"sweeps"`
	Seed          *uint64             `json:"seed"`
	Schedule      *model.ScheduleSpec `json:"schedule"`
	MeasureEvery  *int                `json:"measure_every"`
	SnapshotEvery *int                `json:"snapshot_every"`
}

func (req createRunRequest) toParams() model.Params {
	p := model.DefaultParams()
	if req.LatticeSize != nil {
		p.LatticeSize = *req.LatticeSize
	}
	if req.States != nil {
		p.States = *req.States
	}
	if req.Field != nil {
		p.Field = *req.Field
	}
	if req.Sweeps != nil {
		p.Sweeps = *req.Sweeps
	}
	if req.Seed != nil {
		p.Seed = *req.Seed
	}
	if req.Schedule != nil {
		p.Schedule = *req.Schedule
	}
	if req.MeasureEvery != nil {
		p.MeasureEvery = *req.MeasureEvery
	}
	if req.SnapshotEvery != nil {
		p.SnapshotEvery = *req.SnapshotEvery
	}
	return p
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	idemKey := r.Header.Get("Idempotency-Key")

	run, created, err := s.manager.Submit(r.Context(), req.toParams(), idemKey)
	switch {
	case err == nil:
	case errors.Is(err, sim.ErrQueueFull):
		// Backpressure: the queue drains on worker cadence, so a short retry
		// hint is enough.
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusTooManyRequests, err)
		return
	case errors.Is(err, sim.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, err)
		return
	default:
		writeError(w, http.StatusBadRequest, err)
		return
	}

	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str("event", "api.run_created").
		Str("run_id", run.ID).
		Bool("created", created).
		Msg("run submission handled")

	code := http.StatusCreated
	if !created {
		code = http.StatusOK // idempotent replay
	}
	writeJSON(w, code, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.manager.List(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.manager.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if run == nil {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	err := s.manager.Cancel(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancel requested"})
	case errors.Is(err, store.ErrRunNotFound):
		writeNotFound(w)
	case errors.Is(err, sim.ErrAlreadyFinished):
		writeError(w, http.StatusConflict, err)
	default:
		writeInternalError(w, err)
	}
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	err := s.manager.Delete(r.Context(), id)
	switch {
	case err == nil:
		// Cached summaries key on the run revision and age out by TTL, so no
		// explicit invalidation is needed here.
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, store.ErrRunNotFound):
		writeNotFound(w)
	case errors.Is(err, sim.ErrRunActive):
		writeError(w, http.StatusConflict, err)
	default:
		writeInternalError(w, err)
	}
}
