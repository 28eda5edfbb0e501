package controller

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"tools.zach/dev/steamthing/internal/lanyard"
	"tools.zach/dev/steamthing/internal/steam"
)

// NewSteamAPI returns a [Options.NewProfileAPI] that builds Steam clients
// from base, substituting the API key.
func NewSteamAPI(base steam.Config) func(apiKey string) ProfileAPI {
	return func(apiKey string) ProfileAPI {
		cfg := base
		cfg.APIKey = apiKey
		return steam.NewClient(cfg)
	}
}

// NewLanyardDialer returns a [FeedDialer] over the Lanyard socket at url.
func NewLanyardDialer(url string, clock clockwork.Clock, log *slog.Logger) FeedDialer {
	return func(ctx context.Context, userID string, onPresence func(lanyard.Presence)) (FeedConn, error) {
		sock, err := lanyard.Dial(ctx, lanyard.Config{
			URL:     url,
			UserIDs: []string{userID},
			Clock:   clock,
			Logger:  log,
		}, onPresence)
		if err != nil {
			return nil, err
		}
		return sock, nil
	}
}
