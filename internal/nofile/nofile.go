// Package nofile raises the process's open-file-descriptor ceiling so a run
// can hold one socket per connection.
package nofile

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Three descriptors on top of the sockets: stdin, stdout, stderr.
const extra = 3

// Ensure raises the soft RLIMIT_NOFILE so at least n+3 descriptors can be
// open at once, bounded by the hard limit. It never lowers the soft limit,
// and it fails when even the hard limit is too low.
func Ensure(n uint) error {
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return fmt.Errorf("getrlimit: %w", err)
	}
	need := uint64(n) + extra
	if lim.Max < need {
		return fmt.Errorf("need %d file descriptors but the hard limit of this process is only %d", need, lim.Max)
	}
	if lim.Cur >= need {
		return nil
	}
	lim.Cur = need
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return fmt.Errorf("setrlimit: %w", err)
	}
	return nil
}
