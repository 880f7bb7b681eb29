// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"

	"github.com/latticelabs/znsim/internal/lattice"
	"github.com/latticelabs/znsim/internal/render"
)

// handleAnimation streams the run's snapshot history as an animated GIF.
func (s *Server) handleAnimation(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	records, err := s.state.ListSnapshots(r.Context(), run.ID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, errors.New("no snapshots recorded for run"))
		return
	}

	opts := render.DefaultOptions()
	if v := queryInt(r, "scale", 0); v > 0 {
		opts.Scale = v
	}
	if v := queryInt(r, "fps", 0); v > 0 {
		opts.FPS = v
	}

	snaps := make([]lattice.Snapshot, len(records))
	for i, rec := range records {
		snaps[i] = rec.Snapshot
	}

	w.Header().Set("Content-Type", "image/gif")
	if err := render.Encode(w, snaps, opts); err != nil {
		logger := logFromRequest(r)
		logger.Error().
			Err(err).
			Str("event", "api.gif_encode_error").
			Str("run_id", run.ID).
			Msg("failed streaming animation")
	}
}
