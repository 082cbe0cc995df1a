package conn

import "time"

// Limits holds the size and timing caps the connection state machine
// enforces per request.
type Limits struct {
	Timeout         time.Duration
	MaxHeaderSize   int
	MaxHeaderCount  int
	MaxBodySize     int64
	MaxWSFrameSize  int64
	MaxReceiveQueue int64
}
