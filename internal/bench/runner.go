// Package bench drives a fixed set of persistent TCP connections against an
// echo server for a fixed wall-clock duration and sums up what they achieved.
package bench

import (
	"fmt"
	"net"
	"time"
)

// Result is the run-wide sum of every worker's outcome.
type Result struct {
	TotalRequests  uint64
	TotalErrors    uint64
	RequestsPerSec float64
}

// Run executes one benchmark. All connections are dialed before any worker
// starts; a connection that cannot be established aborts the whole run with
// no partial result. Workers that hit an I/O error mid-run are counted in
// TotalErrors and do not abort anyone else.
func Run(cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	conns := make([]net.Conn, 0, cfg.Connections)
	for i := uint(0); i < cfg.Connections; i++ {
		conn, err := net.Dial("tcp", cfg.Address)
		if err != nil {
			for _, c := range conns {
				c.Close()
			}
			return Result{}, fmt.Errorf("connect %s: %w", cfg.Address, err)
		}
		conns = append(conns, conn)
	}

	var stop StopFlag
	outcomes := make(chan Outcome, len(conns))
	for i, conn := range conns {
		go func(id uint, conn net.Conn) {
			defer conn.Close()
			outcomes <- runWorker(id, conn, cfg.Length, &stop)
		}(uint(i), conn)
	}

	time.Sleep(time.Duration(cfg.DurationSeconds) * time.Second)
	stop.Trigger()

	collected := make([]Outcome, 0, len(conns))
	for range conns {
		collected = append(collected, <-outcomes)
	}
	return Reduce(collected, cfg.DurationSeconds), nil
}

// Reduce sums worker outcomes into one result. Summation commutes, so the
// order of the slice does not matter.
func Reduce(outcomes []Outcome, durationSeconds uint) Result {
	var res Result
	for _, o := range outcomes {
		res.TotalRequests += o.Requests
		if o.Failed {
			res.TotalErrors++
		}
	}
	// Requests over the configured duration, not elapsed wall time.
	res.RequestsPerSec = float64(res.TotalRequests) / float64(durationSeconds)
	return res
}
