package controller

import (
	"context"
	"errors"

	"tools.zach/dev/steamthing/internal/config"
	"tools.zach/dev/steamthing/internal/logger"
	"tools.zach/dev/steamthing/internal/protocol"
)

// Dispatch runs one display command. ctx bounds the blocking commands
// (connect, requestPlayerSummary) and should outlive the request that
// carried the command.
func (c *Controller) Dispatch(ctx context.Context, cmd protocol.Command) {
	switch cmd := cmd.(type) {
	case protocol.Get:
		c.dispatchGet(cmd.Request)
	case protocol.Subscribe:
		c.Subscribe(cmd.Topic)
	case protocol.Unsubscribe:
		c.Unsubscribe(cmd.Topic)
	case protocol.Connect:
		c.Connect(ctx)
	case protocol.Disconnect:
		c.Disconnect()
	case protocol.ClearLogs:
		c.ClearLogs()
	case protocol.RequestPlayerSummary:
		c.RequestPlayerSummary(ctx)
	case protocol.ApplySettings:
		c.applySettingsBlob(ctx, cmd.Blob)
	case protocol.SetTrackedSteamID:
		c.SetTrackedID(cmd.SteamID)
	default:
		c.log.Warn("unhandled command", "type", cmd.CommandType())
	}
}

func (c *Controller) dispatchGet(request string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch request {
	case protocol.RequestStatus:
		c.emitStatus()
	case protocol.RequestLogs:
		c.emit(protocol.LogsEvent{Entries: c.ring.Entries()})
	case protocol.RequestGameSession:
		ev := protocol.GameSessionEvent{}
		if s, ok := c.sessions.Current(); ok {
			ev.Session = &s
		}
		c.emit(ev)
	default:
		c.log.Warn("unknown get request", "request", request)
	}
}

// applySettingsBlob normalizes a raw broadcast against the applied settings,
// echoes the result to the display, and applies it.
func (c *Controller) applySettingsBlob(ctx context.Context, blob []byte) {
	prev := c.Settings()
	s, err := config.NormalizeSettings(blob, prev)
	if errors.Is(err, config.ErrSettingsShape) {
		c.mu.Lock()
		c.addLog(logger.Warn, "No settings provided")
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.log.Warn("settings broadcast has unusable fields", "error", err)
	}

	c.mu.Lock()
	c.emit(protocol.SettingsEvent{Settings: s.Redacted()})
	c.mu.Unlock()

	c.UpdateSettings(ctx, s)
}
