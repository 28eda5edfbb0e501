package controller

import (
	"tools.zach/dev/steamthing/internal/artwork"
	"tools.zach/dev/steamthing/internal/lanyard"
	"tools.zach/dev/steamthing/internal/logger"
	"tools.zach/dev/steamthing/internal/protocol"
	"tools.zach/dev/steamthing/internal/session"
)

// ///////////////////////////////////////////////
// Presence Feed
// ///////////////////////////////////////////////

// openFeedLocked replaces any live feed with a new one for the configured
// presence id. The dial runs in the background.
func (c *Controller) openFeedLocked() {
	c.closeFeedLocked()
	c.feedGen++
	fg, id := c.feedGen, c.settings.PresenceID
	c.addLog(logger.Info, "Connecting to Lanyard WebSocket...")
	go c.runFeed(fg, id)
}

// closeFeedLocked tears the feed down on purpose: the generation advances so
// its close does not schedule a reconnect, and any pending reconnect is
// cancelled.
func (c *Controller) closeFeedLocked() {
	c.feedGen++
	stopTimer(&c.feedRetry)
	if c.feed == nil {
		return
	}
	conn := c.feed
	c.feed = nil
	c.addLog(logger.Info, "Disconnected from Lanyard WebSocket")
	go conn.Close()
}

// runFeed dials, then waits for the feed to end. An unexpected end while
// connected schedules one reconnect; dial failures count as ends.
func (c *Controller) runFeed(fg uint64, id string) {
	conn, err := c.dialFeed(c.ctx, id, func(p lanyard.Presence) { c.handlePresence(fg, p) })

	c.mu.Lock()
	if fg != c.feedGen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.addLog(logger.Error, "Failed to connect to Lanyard: "+err.Error())
		c.scheduleFeedRetryLocked(fg)
		c.mu.Unlock()
		return
	}
	c.feed = conn
	c.addLog(logger.Success, "Connected to Lanyard WebSocket")
	c.mu.Unlock()

	select {
	case <-conn.Done():
	case <-c.ctx.Done():
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if fg != c.feedGen {
		return
	}
	c.feed = nil
	c.addLog(logger.Warn, "Lanyard WebSocket closed")
	c.scheduleFeedRetryLocked(fg)
}

func (c *Controller) scheduleFeedRetryLocked(fg uint64) {
	if c.status != protocol.StatusConnected {
		return
	}
	stopTimer(&c.feedRetry)
	c.feedRetry = c.clock.AfterFunc(FeedReconnectDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if fg != c.feedGen || c.status != protocol.StatusConnected || c.settings.PresenceID == "" {
			return
		}
		c.feedRetry = nil
		c.addLog(logger.Info, "Attempting to reconnect to Lanyard...")
		c.openFeedLocked()
	})
}

// reconnectPending reports whether a feed reconnect is scheduled.
func (c *Controller) reconnectPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feedRetry != nil
}

// ///////////////////////////////////////////////
// Presence Handling
// ///////////////////////////////////////////////

// handlePresence runs on the feed's read goroutine.
func (c *Controller) handlePresence(fg uint64, p lanyard.Presence) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fg != c.feedGen {
		return
	}

	var act *session.Activity
	if g := p.GameActivity(); g != nil && !c.ignore(g.Name) {
		key := string(g.ApplicationID)
		if key == "" {
			key = g.Name
		}
		act = &session.Activity{
			Key:           key,
			Name:          g.Name,
			ApplicationID: string(g.ApplicationID),
			Platform:      g.Platform,
			Start:         g.Start(),
		}
	}
	c.publishLocked(c.sessions.Observe(act, c.clock.Now()))
}

func (c *Controller) publishLocked(out session.Outcome) {
	for _, l := range out.Logs {
		c.addLog(l.Level, l.Message)
	}
	if out.Emit {
		c.emit(protocol.GameSessionEvent{Session: out.Session})
	}
	if out.Art != nil {
		c.resolveArtLocked(*out.Art)
	}
}

// resolveArtLocked starts artwork resolution for req in the background.
func (c *Controller) resolveArtLocked(req session.ArtRequest) {
	var sc *artwork.SteamContext
	if c.status == protocol.StatusConnected && c.api != nil && c.settings.TrackedID != "" {
		sc = &artwork.SteamContext{API: c.api, SteamID: c.settings.TrackedID}
	}
	platform := req.Platform
	if platform == "" {
		platform = "Steam"
	}
	c.addLog(logger.Info, "Fetching game image for platform: "+platform)

	go func() {
		art := c.art.Resolve(c.ctx, req.Platform, sc)

		c.mu.Lock()
		defer c.mu.Unlock()
		if snap, ok := c.sessions.ApplyArt(req, art, c.clock.Now()); ok {
			c.emit(protocol.GameSessionEvent{Session: &snap})
		}
	}()
}
