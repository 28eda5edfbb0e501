//go:build windows

package main

import (
	"context"
	"os"
	"os/signal"
)

// shutdownContext is cancelled on Ctrl+C. Windows has no SIGTERM; the
// runtime delivers console close and CTRL_BREAK as os.Interrupt.
func shutdownContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}
