//go:build !windows

package bridge

import "net"

func listenPipe(string) (net.Listener, error) {
	return nil, ErrPipeUnsupported
}
