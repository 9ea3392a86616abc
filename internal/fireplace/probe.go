package fireplace

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// DefaultProbeTimeout bounds TestConnection.
const DefaultProbeTimeout = 5 * time.Second

// TestConnection dials the fireplace once and closes the socket. It is used
// to validate settings before a coordinator is started.
func TestConnection(ctx context.Context, host string, port int, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if port == 0 {
		port = DefaultPort
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	address := net.JoinHostPort(host, strconv.Itoa(port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(probeCtx, "tcp", address)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, address, err)
	}
	return conn.Close()
}
