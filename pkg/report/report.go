// Package report assembles the final coverage document written at the end of
// a collection run.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/perimetric/pagecov/pkg/coverage"
)

// Report is one collection run's output. Immutable once built; owned by the
// caller.
type Report struct {
	ID         string           `json:"id"`
	CapturedAt time.Time        `json:"captured_at"`
	Endpoint   string           `json:"endpoint,omitempty"`
	Scripts    []coverage.Entry `json:"scripts"`
	Styles     []coverage.Entry `json:"styles"`
}

// New builds a report around the collected entries. Nil slices are normalized
// so the document always serializes arrays.
func New(endpoint string, scripts, styles []coverage.Entry) *Report {
	if scripts == nil {
		scripts = []coverage.Entry{}
	}
	if styles == nil {
		styles = []coverage.Entry{}
	}
	return &Report{
		ID:         ulid.Make().String(),
		CapturedAt: time.Now().UTC(),
		Endpoint:   endpoint,
		Scripts:    scripts,
		Styles:     styles,
	}
}

// Write serializes the report as JSON to w.
func (r *Report) Write(w io.Writer, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

// WriteFile writes the report to path; "-" or empty means stdout.
func (r *Report) WriteFile(path string, pretty bool) error {
	if path == "" || path == "-" {
		return r.Write(os.Stdout, pretty)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	if err := r.Write(f, pretty); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
