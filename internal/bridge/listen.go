package bridge

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// ErrPipeUnsupported is returned for a pipe: address outside Windows.
var ErrPipeUnsupported = errors.New("named pipes are only supported on Windows")

// Listen opens the listener for addr: "host:port", "unix:/path/to.sock", or
// on Windows "pipe:\\.\pipe\name". A stale unix socket file is removed first.
func Listen(addr string) (net.Listener, error) {
	switch {
	case strings.HasPrefix(addr, "unix:"):
		path := strings.TrimPrefix(addr, "unix:")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing stale socket: %w", err)
		}
		ln, err := net.Listen("unix", path)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", addr, err)
		}
		return ln, nil
	case strings.HasPrefix(addr, "pipe:"):
		return listenPipe(strings.TrimPrefix(addr, "pipe:"))
	default:
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", addr, err)
		}
		return ln, nil
	}
}
