// Package diag runs connectivity checks for the services taskclaw depends on.
package diag

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// Status is the outcome of one check.
type Status string

const (
	OK   Status = "OK"
	WARN Status = "WARN"
	FAIL Status = "FAIL"
	SKIP Status = "SKIP"
)

// Row is a single check result.
type Row struct {
	Component string `json:"component"`
	Target    string `json:"target"`
	Status    Status `json:"status"`
	Detail    string `json:"detail"`
	Hint      string `json:"hint,omitempty"`
}

// Report collects rows. It is safe for concurrent use.
type Report struct {
	mu   sync.Mutex
	Rows []Row `json:"rows"`
}

func (r *Report) add(row Row) {
	r.mu.Lock()
	r.Rows = append(r.Rows, row)
	r.mu.Unlock()
}

// Failed reports whether any check failed.
func (r *Report) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.Rows {
		if row.Status == FAIL {
			return true
		}
	}
	return false
}

// Print writes the report as aligned text.
func (r *Report) Print(w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.Rows {
		fmt.Fprintf(w, "%s %-8s %-28s %s\n", mark(row.Status), row.Component, row.Target, row.Detail)
		if row.Hint != "" {
			fmt.Fprintf(w, "         hint: %s\n", row.Hint)
		}
	}
}

func mark(s Status) string {
	switch s {
	case OK:
		return color.GreenString("✓")
	case WARN:
		return color.YellowString("!")
	case FAIL:
		return color.RedString("✗")
	default:
		return color.HiBlackString("-")
	}
}
