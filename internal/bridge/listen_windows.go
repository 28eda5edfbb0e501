//go:build windows

package bridge

import (
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
)

// listenPipe listens on a named pipe such as \\.\pipe\steamthing.
func listenPipe(name string) (net.Listener, error) {
	ln, err := winio.ListenPipe(name, nil)
	if err != nil {
		return nil, fmt.Errorf("listen pipe %s: %w", name, err)
	}
	return ln, nil
}
