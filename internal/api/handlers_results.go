// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/latticelabs/znsim/internal/model"
	"github.com/latticelabs/znsim/internal/observables"
	"github.com/latticelabs/znsim/internal/results"
)

const (
	defaultPageLimit = 500
	maxPageLimit     = 10_000
)

func (s *Server) handleMeasurements(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", defaultPageLimit)
	offset := queryInt(r, "offset", 0)
	if limit < 1 || limit > maxPageLimit {
		writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be in [1,%d]", maxPageLimit))
		return
	}
	if offset < 0 {
		writeError(w, http.StatusBadRequest, errors.New("offset must not be negative"))
		return
	}

	ms, total, err := s.results.Measurements(r.Context(), run.ID, limit, offset)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if ms == nil {
		ms = []observables.Measurement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":       run.ID,
		"measurements": ms,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	key := fmt.Sprintf("summary:%s:%d", run.ID, run.Revision)
	if data, hit := s.cache.Get(key); hit {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		_, _ = w.Write(data)
		return
	}

	// Collapse concurrent cache misses into a single computation.
	data, err, _ := s.flight.Do(key, func() (any, error) {
		series, err := s.results.Series(r.Context(), run.ID)
		if err != nil {
			return nil, err
		}
		sites, err := s.results.SiteCount(r.Context(), run.ID)
		if err != nil {
			return nil, err
		}
		summary := observables.Summarize(series, sites)
		payload, err := json.Marshal(map[string]any{
			"run_id":  run.ID,
			"state":   run.State,
			"summary": summary,
		})
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, payload, s.cfg.Cache.TTL)
		return payload, nil
	})
	if err != nil {
		writeInternalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "miss")
	_, _ = w.Write(data.([]byte))
}

// handleFit estimates a critical exponent by fitting a power law of the
// chosen observable against the reduced temperature |T−Tc|/Tc. The critical
// temperature is supplied by the caller; it is an input of the analysis, not
// an output.
func (s *Server) handleFit(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	observable := r.URL.Query().Get("observable")
	if observable == "" {
		observable = "susceptibility"
	}
	if observable != "susceptibility" && observable != "specific_heat" {
		writeError(w, http.StatusBadRequest,
			errors.New("observable must be susceptibility or specific_heat"))
		return
	}

	tc, err := strconv.ParseFloat(r.URL.Query().Get("tc"), 64)
	if err != nil || tc <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("tc must be a positive number"))
		return
	}
	window := queryInt(r, "window", 50)
	if window < 2 {
		writeError(w, http.StatusBadRequest, errors.New("window must be >= 2"))
		return
	}

	series, err := s.results.Series(r.Context(), run.ID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	sites, err := s.results.SiteCount(r.Context(), run.ID)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	xs, ys := fitSeries(series, sites, tc, window, observable)
	fit, err := observables.FitPowerLaw(xs, ys)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":     run.ID,
		"observable": observable,
		"tc":         tc,
		"window":     window,
		"fit":        fit,
	})
}

// fitSeries converts a measurement series into (reduced temperature,
// windowed estimator) pairs. The windowed estimator confines the variance to
// the recent bath so annealing series stay usable.
func fitSeries(series []observables.Measurement, sites int, tc float64, window int, observable string) (xs, ys []float64) {
	win := observables.NewWindow(sites, window)
	for _, m := range series {
		win.Add(m.Energy, m.Magnetization)
		if win.Len() < window {
			continue
		}

		var y float64
		if observable == "susceptibility" {
			y = win.Susceptibility(m.Temperature)
		} else {
			y = win.SpecificHeat(m.Temperature)
		}
		if math.IsNaN(y) || y <= 0 {
			continue
		}

		x := math.Abs(m.Temperature-tc) / tc
		if x <= 0 {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}
	return xs, ys
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	series, err := s.results.Series(r.Context(), run.ID)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", run.ID+".csv"))
	if err := results.WriteCSV(w, series); err != nil {
		logger := logFromRequest(r)
		logger.Error().
			Err(err).
			Str("event", "api.csv_write_error").
			Str("run_id", run.ID).
			Msg("failed streaming CSV export")
	}
}

// lookupRun resolves the runID path parameter, writing the error response on
// failure.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*model.Run, bool) {
	run, err := s.manager.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeInternalError(w, err)
		return nil, false
	}
	if run == nil {
		writeNotFound(w)
		return nil, false
	}
	return run, true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
