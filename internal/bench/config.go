package bench

import (
	"errors"
	"fmt"
)

// Flag defaults. The address is the one the tool has always documented.
const (
	DefaultAddress     = "127.0.0.1:12345"
	DefaultLength      = 512
	DefaultDuration    = 60
	DefaultConnections = 50
)

// Config is the resolved input of one run. It is built once from the command
// line and only read afterwards.
type Config struct {
	Address         string
	Length          int
	DurationSeconds uint
	Connections     uint
}

// Validate rejects inputs the run cannot work with. The last payload byte is
// reserved for the newline terminator, so a length below 1 is invalid.
func (c Config) Validate() error {
	if c.Address == "" {
		return errors.New("address must not be empty")
	}
	if c.Length < 1 {
		return fmt.Errorf("message length must be at least 1, got %d", c.Length)
	}
	if c.DurationSeconds < 1 {
		return fmt.Errorf("duration must be at least 1 second, got %d", c.DurationSeconds)
	}
	if c.Connections < 1 {
		return fmt.Errorf("connection number must be at least 1, got %d", c.Connections)
	}
	return nil
}
