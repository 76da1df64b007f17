package sink

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"
)

// isStorageUnavailable reports whether err is the transient kind that
// flips the sink unhealthy: connection-level failures, shutdown states,
// resource exhaustion on the server, or a dead driver connection.
func isStorageUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", // connection exception
			"53", // insufficient resources
			"57", // operator intervention (shutdown)
			"58": // system error
			return true
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// isSchemaMissing reports whether err means the bulk entry point (or its
// target relation) does not exist, which triggers the one-shot fallback to
// the direct insert path.
func isSchemaMissing(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "42883", // undefined_function
		"42P01", // undefined_table
		"3F000": // invalid_schema_name
		return true
	}
	return false
}
