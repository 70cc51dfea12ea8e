package bench

import (
	"io"
	"log"
	"net"
)

// Outcome is what a single worker hands back when it terminates.
type Outcome struct {
	Requests uint64
	Failed   bool
}

// payload builds the message sent on every round trip: length bytes,
// zero-filled, ending in a newline. The echo protocol only cares about
// length and termination.
func payload(length int) []byte {
	buf := make([]byte, length)
	buf[length-1] = '\n'
	return buf
}

// runWorker drives one connection until the stop flag is set or an I/O error
// ends its participation. Every reply is read to completion; a short read is
// a failure, not a partial success. There are no retries and no per-operation
// timeouts.
func runWorker(id uint, conn net.Conn, length int, stop *StopFlag) Outcome {
	out := payload(length)
	in := make([]byte, length)

	var count uint64
	for !stop.Stopped() {
		if _, err := conn.Write(out); err != nil {
			log.Printf("worker %d write error: %v", id, err)
			return Outcome{Requests: count, Failed: true}
		}
		if _, err := io.ReadFull(conn, in); err != nil {
			log.Printf("worker %d read error: %v", id, err)
			return Outcome{Requests: count, Failed: true}
		}
		count++
	}
	return Outcome{Requests: count}
}
