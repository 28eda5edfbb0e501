package controller

import (
	"context"
	"strings"

	"tools.zach/dev/steamthing/internal/config"
	"tools.zach/dev/steamthing/internal/logger"
	"tools.zach/dev/steamthing/internal/protocol"
)

// ///////////////////////////////////////////////
// Settings
// ///////////////////////////////////////////////

// UpdateSettings applies a settings broadcast. The first call always
// applies; later calls are skipped when nothing changed. Changing the API
// key while connected reconnects after [KeyReconnectDelay]; changing the
// presence id reopens the feed.
func (c *Controller) UpdateSettings(ctx context.Context, s config.Settings) {
	s = s.Clamped()

	c.mu.Lock()
	if c.applied && s == c.settings {
		c.mu.Unlock()
		c.log.Debug("settings unchanged, skipping")
		return
	}
	prev, first := c.settings, !c.applied
	c.settings, c.applied = s, true
	c.ring.SetMax(s.MaxLogs)
	c.addLogf(logger.Info, "Settings updated - Auto-connect: %t", s.AutoConnect)

	// A probe in flight holds the old key, so connecting counts as active.
	active := c.status == protocol.StatusConnected || c.status == protocol.StatusConnecting
	keyChanged := !first && prev.APIKey != s.APIKey

	switch {
	case keyChanged && active:
		c.addLog(logger.Info, "API key changed while connected - reconnecting...")
		c.disconnectLocked()
		gen := c.gen
		c.keyRetry = c.clock.AfterFunc(KeyReconnectDelay, func() {
			c.mu.Lock()
			ok := gen == c.gen && c.status == protocol.StatusDisconnected
			if ok {
				c.keyRetry = nil
			}
			c.mu.Unlock()
			if ok {
				c.Connect(c.ctx)
			}
		})
	case prev.PresenceID != s.PresenceID && c.status == protocol.StatusConnected:
		if s.PresenceID == "" {
			c.closeFeedLocked()
		} else {
			c.addLog(logger.Info, "Discord ID changed - reconnecting Lanyard...")
			c.openFeedLocked()
		}
	}

	if prev.PollIntervalSeconds != s.PollIntervalSeconds && c.poller.Active() {
		c.startPollingLocked()
	}
	if prev.TrackedID != s.TrackedID {
		c.emitStatus()
	}

	start := !active && s.AutoConnect && s.APIKey != ""
	if start && first {
		c.addLog(logger.Info, "Initial connection with auto-connect enabled...")
	}
	c.mu.Unlock()

	if start {
		c.Start(ctx)
	}
}

// SetTrackedID replaces the Steam id whose profile is polled.
func (c *Controller) SetTrackedID(id string) {
	id = strings.TrimSpace(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.TrackedID = id
	c.addLog(logger.Info, "Tracking Steam ID: "+id)
	c.emitStatus()
}
