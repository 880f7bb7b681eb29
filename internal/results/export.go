// SPDX-License-Identifier: MIT

package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/google/renameio/v2"

	"github.com/latticelabs/znsim/internal/observables"
)

var csvHeader = []string{"sweep", "temperature", "energy", "magnetization", "acceptance"}

// WriteCSV streams a measurement series as CSV.
func WriteCSV(w io.Writer, ms []observables.Measurement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	for _, m := range ms {
		rec := []string{
			strconv.Itoa(m.Sweep),
			strconv.FormatFloat(m.Temperature, 'g', -1, 64),
			strconv.FormatFloat(m.Energy, 'g', -1, 64),
			strconv.FormatFloat(m.Magnetization, 'g', -1, 64),
			strconv.FormatFloat(m.Acceptance, 'g', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write CSV row for sweep %d: %w", m.Sweep, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the series to path atomically: the file appears fully
// written or not at all, even across a crash.
func WriteCSVFile(path string, ms []observables.Measurement) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending CSV file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if err := WriteCSV(pending, ms); err != nil {
		return err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace CSV file: %w", err)
	}
	return nil
}
