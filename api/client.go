package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"

	"bandaid/debug"
	"bandaid/settings"
)

// UserHeader names the account a request acts for
const UserHeader = "X-BandAid-User"

// Client is the settings.Persistence of the backend's /chords routes
type Client struct {
	base string
	user string
	http *http.Client
}

// NewClient talks to the backend at baseURL on behalf of user
func NewClient(baseURL, user string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		user: user,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Load fetches the last saved document. A missing document loads as the
// defaults.
func (c *Client) Load(ctx context.Context) (settings.Settings, error) {
	var doc Document
	err := c.do(ctx, http.MethodGet, "/chords/last", nil, &doc)
	if IsNotFound(err) {
		return settings.Default(), nil
	}
	if err != nil {
		return settings.Settings{}, err
	}
	return doc.Settings(), nil
}

func (c *Client) Save(ctx context.Context, s settings.Settings) error {
	return c.do(ctx, http.MethodPost, "/chords/save", FromSettings(s), nil)
}

func (c *Client) Reset(ctx context.Context) (settings.Settings, error) {
	var res SaveResult
	if err := c.do(ctx, http.MethodPost, "/chords/reset", nil, &res); err != nil {
		return settings.Settings{}, err
	}
	return res.Settings.Settings(), nil
}

// SaveResult is the body of a successful save or reset
type SaveResult struct {
	Success  bool     `json:"success"`
	Settings Document `json:"settings"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fault.Wrap(err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fault.Wrap(err, fmsg.WithDesc("build request", "Bad server address"))
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.Header.Set(UserHeader, c.user)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fault.Wrap(err, fmsg.WithDesc(method+" "+path, "Server unreachable"))
	}
	defer resp.Body.Close()
	debug.Log("api", "%s %s -> %d in %s", method, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode/100 != 2 {
		return ReadError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fault.Wrap(err, fmsg.WithDesc("decode "+path, "Unexpected server response"))
	}
	return nil
}
