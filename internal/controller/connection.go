package controller

import (
	"context"

	"tools.zach/dev/steamthing/internal/logger"
	"tools.zach/dev/steamthing/internal/protocol"
	"tools.zach/dev/steamthing/internal/steam"
)

// ///////////////////////////////////////////////
// Lifecycle
// ///////////////////////////////////////////////

// Start connects when auto-connect is on, an API key is configured, and no
// connection is live or in progress. The start is logged once, even when the
// controller stays idle.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if !c.started {
		c.started = true
		c.addLog(logger.Info, "Steam controller started")
	}
	active := c.status == protocol.StatusConnected || c.status == protocol.StatusConnecting
	ok := !active && c.settings.AutoConnect && c.settings.APIKey != ""
	c.mu.Unlock()

	if ok {
		c.Connect(ctx)
	}
}

// Stop clears all subscriptions, disconnects, and cancels background work.
// The Controller is not reusable afterwards.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.addLog(logger.Info, "Steam controller stopped")
	clear(c.subs)
	c.stopPollingLocked()
	c.addLog(logger.Info, "Cleared all subscriptions")
	c.disconnectLocked()
	c.mu.Unlock()

	c.cancel()
}

// Connect probes the Steam API with the configured key and, on success,
// opens the presence feed and starts polling as needed. It blocks for the
// duration of the probe.
func (c *Controller) Connect(ctx context.Context) {
	c.mu.Lock()
	switch {
	case c.status == protocol.StatusConnecting:
		c.addLog(logger.Warn, "Already attempting to connect")
		c.mu.Unlock()
		return
	case c.status == protocol.StatusConnected:
		c.addLog(logger.Warn, "Already connected to Steam API")
		c.mu.Unlock()
		return
	case c.settings.APIKey == "":
		c.status = protocol.StatusError
		msg := "Missing API key"
		c.lastError = &msg
		c.addLog(logger.Error, "No Steam API key configured. Please add your Steam API key in settings")
		c.emitStatus()
		c.mu.Unlock()
		return
	}

	c.gen++
	gen := c.gen
	c.status = protocol.StatusConnecting
	c.emitStatus()
	c.addLog(logger.Info, "Initializing Steam API connection...")
	api := c.newAPI(c.settings.APIKey)
	c.mu.Unlock()

	err := api.Probe(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		c.log.Debug("dropping superseded probe result", "error", err)
		return
	}
	if err != nil {
		c.status = protocol.StatusError
		msg := err.Error()
		c.lastError = &msg
		c.addLog(logger.Error, "Failed to connect to Steam API: "+msg)
		c.emitStatus()
		return
	}

	c.api = api
	c.status = protocol.StatusConnected
	now := c.clock.Now().UnixMilli()
	c.lastConnected = &now
	c.lastError = nil
	c.addLog(logger.Success, "Connected to Steam API")
	c.emitStatus()

	if c.settings.PresenceID != "" {
		c.openFeedLocked()
	} else {
		c.addLog(logger.Warn, "No Discord User ID set - game tracking via Lanyard unavailable")
	}
	c.syncPollingLocked()
}

// Disconnect stops polling, closes the feed without reconnecting, cancels
// pending timers, and clears the game session. The display always receives
// a null gameSession.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectLocked()
}

func (c *Controller) disconnectLocked() {
	c.gen++
	c.stopPollingLocked()
	c.closeFeedLocked()
	stopTimer(&c.keyRetry)
	c.api = nil

	c.status = protocol.StatusDisconnected
	c.addLog(logger.Info, "Disconnected from Steam API")
	c.emitStatus()

	out := c.sessions.End(c.clock.Now())
	for _, l := range out.Logs {
		c.addLog(l.Level, l.Message)
	}
	c.emit(protocol.GameSessionEvent{})
}

// ///////////////////////////////////////////////
// Subscriptions and Polling
// ///////////////////////////////////////////////

// Subscribe adds topic to the subscription set. Only
// [protocol.TopicPlayerSummary] is accepted.
func (c *Controller) Subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if topic != protocol.TopicPlayerSummary {
		c.addLogf(logger.Warn, "Invalid subscription type: %q", topic)
		return
	}
	c.subs[topic] = struct{}{}
	c.addLogf(logger.Info, "Subscribed to %s data", topic)
	c.syncPollingLocked()
}

// Unsubscribe removes topic from the subscription set.
func (c *Controller) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if topic != protocol.TopicPlayerSummary {
		c.addLogf(logger.Warn, "Invalid unsubscription type: %q", topic)
		return
	}
	delete(c.subs, topic)
	c.addLogf(logger.Info, "Unsubscribed from %s data", topic)
	c.syncPollingLocked()
}

// syncPollingLocked arms the poller exactly when connected with at least one
// subscription.
func (c *Controller) syncPollingLocked() {
	want := c.status == protocol.StatusConnected && len(c.subs) > 0
	switch active := c.poller.Active(); {
	case want && !active:
		c.startPollingLocked()
	case !want && active:
		c.stopPollingLocked()
	}
}

func (c *Controller) startPollingLocked() {
	c.poller.Start(c.settings.PollInterval())
	c.addLogf(logger.Info, "Started polling Steam API for profile data every %ds", c.settings.PollIntervalSeconds)
}

func (c *Controller) stopPollingLocked() {
	if c.poller.Active() {
		c.poller.Stop()
		c.addLog(logger.Info, "Stopped polling Steam API")
	}
}

// poll is the poller tick.
func (c *Controller) poll(ctx context.Context) {
	c.requestPlayerSummary(ctx, false)
}

// ///////////////////////////////////////////////
// Player Summary
// ///////////////////////////////////////////////

// RequestPlayerSummary fetches and emits the tracked player's profile once.
func (c *Controller) RequestPlayerSummary(ctx context.Context) {
	c.requestPlayerSummary(ctx, true)
}

// requestPlayerSummary fetches the profile, inlines the avatar as a data URI,
// and emits it. Polling ticks pass explicit=false and skip silently when the
// controller is not ready.
func (c *Controller) requestPlayerSummary(ctx context.Context, explicit bool) {
	c.mu.Lock()
	api, steamID, gen := c.api, c.settings.TrackedID, c.gen
	if c.status != protocol.StatusConnected || api == nil || steamID == "" {
		if explicit {
			c.addLog(logger.Warn, "Cannot request player summary - not connected or no Steam ID")
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	player, err := api.PlayerSummary(ctx, steamID)
	if ctx.Err() != nil {
		// Polling stopped or restarted mid-fetch.
		return
	}
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen == c.gen {
			c.addLog(logger.Error, "Failed to request player summary: "+err.Error())
		}
		return
	}

	var avatarErr error
	if u := player.AvatarURL(); u != "" {
		data, mime, err := api.FetchImage(ctx, u)
		if err != nil {
			avatarErr = err
		} else {
			uri := steam.DataURI(mime, data)
			player.Avatar, player.AvatarMedium, player.AvatarFull = uri, uri, uri
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || ctx.Err() != nil {
		return
	}
	if avatarErr != nil {
		c.addLog(logger.Warn, "Failed to fetch avatar: "+avatarErr.Error())
	}
	c.summary = player
	c.emit(protocol.PlayerSummaryEvent{Summary: *player})
	c.addLog(logger.Info, "Player: "+player.PersonaName)
}
