// Package steam is a small Steam Web API client covering the calls the
// presence controller needs: player summaries, recently played games, and
// image downloads from the Steam CDN.
//
// Requests go through a shared retryablehttp client. Retries default to zero
// because the controller already repeats on its own polling cadence; a
// config value can raise it for flaky networks.
package steam

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ProbeSteamID is a long-lived public profile used to check that an API key
// is accepted.
const ProbeSteamID = "76561197960435530"

// Default endpoints.
const (
	DefaultBaseURL = "https://api.steampowered.com"
	DefaultCDNURL  = "https://media.steampowered.com/steamcommunity/public/images/apps"
)

const (
	maxResponseBytes = 2 << 20 // 2 MiB of JSON
	maxImageBytes    = 8 << 20 // 8 MiB per image
)

var (
	// ErrUnauthorized is returned when Steam rejects the API key.
	ErrUnauthorized = errors.New("steam: api key rejected")
	// ErrNotFound is returned when a lookup yields no player.
	ErrNotFound = errors.New("steam: player not found")
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// PlayerSummary is a Steam profile snapshot as returned by
// ISteamUser/GetPlayerSummaries. Field names follow the Steam API.
type PlayerSummary struct {
	SteamID                  string `json:"steamid"`
	CommunityVisibilityState int    `json:"communityvisibilitystate"`
	ProfileState             int    `json:"profilestate,omitempty"`
	PersonaName              string `json:"personaname"`
	ProfileURL               string `json:"profileurl"`
	Avatar                   string `json:"avatar"`
	AvatarMedium             string `json:"avatarmedium"`
	AvatarFull               string `json:"avatarfull"`
	AvatarHash               string `json:"avatarhash,omitempty"`
	LastLogoff               int64  `json:"lastlogoff,omitempty"`
	PersonaState             int    `json:"personastate"`
	RealName                 string `json:"realname,omitempty"`
	PrimaryClanID            string `json:"primaryclanid,omitempty"`
	TimeCreated              int64  `json:"timecreated,omitempty"`
	PersonaStateFlags        int    `json:"personastateflags,omitempty"`
	LocCountryCode           string `json:"loccountrycode,omitempty"`
	LocStateCode             string `json:"locstatecode,omitempty"`
	LocCityID                int    `json:"loccityid,omitempty"`
	GameExtraInfo            string `json:"gameextrainfo,omitempty"`
	GameID                   string `json:"gameid,omitempty"`
	CommentPermission        int    `json:"commentpermission,omitempty"`
}

// AvatarURL returns the largest avatar URL present, or "".
func (p *PlayerSummary) AvatarURL() string {
	for _, u := range []string{p.AvatarFull, p.AvatarMedium, p.Avatar} {
		if u != "" {
			return u
		}
	}
	return ""
}

// RecentGame is one entry of IPlayerService/GetRecentlyPlayedGames.
type RecentGame struct {
	AppID                  int    `json:"appid"`
	Name                   string `json:"name"`
	Playtime2Weeks         int    `json:"playtime_2weeks"`
	PlaytimeForever        int    `json:"playtime_forever"`
	ImgIconURL             string `json:"img_icon_url"`
	PlaytimeWindowsForever int    `json:"playtime_windows_forever"`
	PlaytimeMacForever     int    `json:"playtime_mac_forever"`
	PlaytimeLinuxForever   int    `json:"playtime_linux_forever"`
	PlaytimeDeckForever    int    `json:"playtime_deck_forever"`
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Config configures a [Client].
type Config struct {
	APIKey   string
	BaseURL  string        // defaults to DefaultBaseURL
	CDNURL   string        // defaults to DefaultCDNURL
	RetryMax int           // HTTP retries per request
	Timeout  time.Duration // per-request timeout; defaults to 10s
}

// Client calls the Steam Web API with a single API key. It is safe for
// concurrent use.
type Client struct {
	http *retryablehttp.Client
	key  string
	base string
	cdn  string
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) *Client {
	hc := retryablehttp.NewClient()
	hc.RetryMax = max(cfg.RetryMax, 0)
	hc.HTTPClient.Timeout = cfg.Timeout
	if hc.HTTPClient.Timeout <= 0 {
		hc.HTTPClient.Timeout = 10 * time.Second
	}
	hc.Logger = nil // suppress retryablehttp's default logging
	// Hand the final response back so status codes map onto sentinels.
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	cdn := strings.TrimRight(cfg.CDNURL, "/")
	if cdn == "" {
		cdn = DefaultCDNURL
	}
	return &Client{http: hc, key: cfg.APIKey, base: base, cdn: cdn}
}

// Probe checks that the API key is accepted by looking up [ProbeSteamID].
// An empty player list still counts as success.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.summaries(ctx, ProbeSteamID)
	return err
}

// PlayerSummary fetches the profile for steamID.
func (c *Client) PlayerSummary(ctx context.Context, steamID string) (*PlayerSummary, error) {
	players, err := c.summaries(ctx, steamID)
	if err != nil {
		return nil, err
	}
	if len(players) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, steamID)
	}
	return &players[0], nil
}

// RecentlyPlayedGames returns up to count games played in the last two weeks.
func (c *Client) RecentlyPlayedGames(ctx context.Context, steamID string, count int) ([]RecentGame, error) {
	q := url.Values{}
	q.Set("steamid", steamID)
	q.Set("count", strconv.Itoa(count))

	var body struct {
		Response struct {
			Games []RecentGame `json:"games"`
		} `json:"response"`
	}
	if err := c.getJSON(ctx, "/IPlayerService/GetRecentlyPlayedGames/v1/", q, &body); err != nil {
		return nil, err
	}
	return body.Response.Games, nil
}

// IconURL returns the CDN URL of a game icon.
func (c *Client) IconURL(appID int, iconHash string) string {
	return fmt.Sprintf("%s/%d/%s.jpg", c.cdn, appID, iconHash)
}

// FetchImage downloads rawURL and returns its bytes with the media type,
// taken from the response header when it names an image, else sniffed.
func (c *Client) FetchImage(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build image request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("GET image: %w", unwrapURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("GET image: HTTP %d", resp.StatusCode)
	}
	data, err := readLimited(resp.Body, maxImageBytes)
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	return data, ImageMIME(data, resp.Header.Get("Content-Type")), nil
}

func (c *Client) summaries(ctx context.Context, steamID string) ([]PlayerSummary, error) {
	q := url.Values{}
	q.Set("steamids", steamID)

	var body struct {
		Response struct {
			Players []PlayerSummary `json:"players"`
		} `json:"response"`
	}
	if err := c.getJSON(ctx, "/ISteamUser/GetPlayerSummaries/v2/", q, &body); err != nil {
		return nil, err
	}
	return body.Response.Players, nil
}

// getJSON performs an authenticated GET and decodes the JSON body into out.
// Errors name the endpoint, never the full URL, so the key stays out of logs.
func (c *Client) getJSON(ctx context.Context, endpoint string, q url.Values, out any) error {
	q.Set("key", c.key)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.base+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", endpoint, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", endpoint, unwrapURLError(err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("GET %s: %w (HTTP %d)", endpoint, ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("GET %s: HTTP %d", endpoint, resp.StatusCode)
	}

	body, err := readLimited(resp.Body, maxResponseBytes)
	if err != nil {
		return fmt.Errorf("reading %s: %w", endpoint, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing %s: %w", endpoint, err)
	}
	return nil
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// ImageMIME returns header when it is an image media type, otherwise the
// sniffed type when that is an image, otherwise image/jpeg.
func ImageMIME(data []byte, header string) string {
	mt, _, _ := strings.Cut(header, ";")
	if mt = strings.TrimSpace(strings.ToLower(mt)); strings.HasPrefix(mt, "image/") {
		return mt
	}
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return "image/jpeg"
}

// DataURI encodes data as a base64 data URI of the given media type.
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response exceeds %d bytes", limit)
	}
	return data, nil
}

// unwrapURLError drops the *url.Error wrapper, whose message carries the
// request URL and therefore the API key.
func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
