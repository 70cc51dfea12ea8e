package bench

import (
	"fmt"
	"io"
)

// WriteReport renders the run summary. A completed run prints exactly one of
// these; an aborted run prints none.
func WriteReport(w io.Writer, cfg Config, res Result) error {
	_, err := fmt.Fprintf(w,
		"Benchmarking: %s\n%d clients, running %d bytes, %d sec.\n\nError: %d\nSpeed: %.0f request/sec\n",
		cfg.Address, cfg.Connections, cfg.Length, cfg.DurationSeconds,
		res.TotalErrors, res.RequestsPerSec)
	return err
}
