package accesslog

import (
	"fmt"
	"time"

	"github.com/pagi-dev/pagi/internal/conn"
)

// FormatLine renders one access-log record as
// `host method path status duration_ms correlation_id\n`, with a
// correlation-id field for cross-referencing application logs.
func FormatLine(rec conn.AccessRecord) string {
	return fmt.Sprintf("%s %s %s %d %dms %s\n",
		rec.RemoteHost,
		rec.Method,
		rec.Path,
		rec.Status,
		rec.Duration/time.Millisecond,
		rec.CorrelationID,
	)
}
