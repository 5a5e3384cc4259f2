package collab

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/google/uuid"

	"bandaid/api"
	"bandaid/debug"
	"bandaid/settings"
)

// outboxSize bounds the patches waiting to be posted; beyond it new
// patches are dropped
const outboxSize = 64

// Client joins collaboration sessions on the backend. It implements
// settings.Relay: patches sent while a session is joined are posted in
// order, sends never block.
type Client struct {
	base   string
	peerID string
	http   *http.Client
	stream *http.Client

	// OnRemotePatch receives every patch and snapshot from other peers
	OnRemotePatch func(settings.Patch)
	// OnEvent receives join and leave notices
	OnEvent func(Message)
	// OnError reports a stream that ended without Leave, or a failed post
	OnError func(error)

	mu      sync.Mutex
	session string
	outbox  chan settings.Patch
	cancel  context.CancelFunc
	done    sync.WaitGroup
}

func NewClient(baseURL string) *Client {
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		peerID: uuid.NewString(),
		http:   &http.Client{Timeout: 10 * time.Second},
		stream: &http.Client{},
	}
}

// PeerID identifies this client to the hub
func (c *Client) PeerID() string {
	return c.peerID
}

// Session returns the joined session id, "" when not joined
func (c *Client) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// StartSession asks the backend for a new session id
func (c *Client) StartSession(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/collaboration/start", nil)
	if err != nil {
		return "", fault.Wrap(err, fmsg.WithDesc("build request", "Bad server address"))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fault.Wrap(err, fmsg.WithDesc("start session", "Failed to start collaboration"))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fault.Wrap(api.ReadError(resp), fmsg.WithDesc("start session", "Failed to start collaboration"))
	}
	var body StartResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.CollaborationID == "" {
		return "", fault.New("no collaboration id", fmsg.WithDesc("start session", "Failed to start collaboration"))
	}
	return body.CollaborationID, nil
}

// Join opens the event stream of a session. It returns once the hub has
// accepted the peer; events are delivered from a goroutine until Leave.
// Joining another session leaves the current one first.
func (c *Client) Join(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fault.New("empty session id", fmsg.WithDesc("join", "Enter a collaboration ID"))
	}
	if cur := c.Session(); cur != "" {
		c.Leave(cur)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	u := c.base + "/collaboration/" + url.PathEscape(id) + "/events?peer=" + url.QueryEscape(c.peerID)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, u, nil)
	if err != nil {
		cancel()
		return fault.Wrap(err, fmsg.WithDesc("build request", "Bad server address"))
	}
	req.Header.Set("Accept", "text/event-stream")

	type result struct {
		resp *http.Response
		err  error
	}
	got := make(chan result, 1)
	go func() {
		resp, err := c.stream.Do(req)
		got <- result{resp, err}
	}()
	var res result
	select {
	case <-ctx.Done():
		cancel()
		return fault.Wrap(ctx.Err(), fmsg.WithDesc("join", "Failed to join collaboration"))
	case res = <-got:
	}
	if res.err != nil {
		cancel()
		return fault.Wrap(res.err, fmsg.WithDesc("join "+id, "Failed to join collaboration"))
	}
	if res.resp.StatusCode != http.StatusOK {
		defer res.resp.Body.Close()
		cancel()
		return fault.Wrap(api.ReadError(res.resp), fmsg.WithDesc("join "+id, "Failed to join collaboration"))
	}

	outbox := make(chan settings.Patch, outboxSize)
	c.mu.Lock()
	c.session = id
	c.outbox = outbox
	c.cancel = cancel
	c.mu.Unlock()

	c.done.Add(2)
	go func() {
		defer c.done.Done()
		c.read(streamCtx, id, res.resp)
	}()
	go func() {
		defer c.done.Done()
		c.post(streamCtx, id, outbox)
	}()
	debug.Log("collab", "joined %s as %s", id, c.peerID)
	return nil
}

// Leave closes the stream of session id. Leaving a session that is not
// joined does nothing.
func (c *Client) Leave(id string) {
	c.mu.Lock()
	if c.session == "" || c.session != id {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	c.session = ""
	c.outbox = nil
	c.cancel = nil
	c.mu.Unlock()

	cancel()
	c.done.Wait()
	debug.Log("collab", "left %s", id)
}

// SendPatch queues p for the joined session. Without a session it does
// nothing.
func (c *Client) SendPatch(p settings.Patch) {
	c.mu.Lock()
	out := c.outbox
	c.mu.Unlock()
	if out == nil || p.Empty() {
		return
	}
	select {
	case out <- p:
	default:
		debug.Log("collab", "outbox full, dropped patch")
	}
}

func (c *Client) read(ctx context.Context, id string, resp *http.Response) {
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	var data bytes.Buffer
	for sc.Scan() {
		line := sc.Bytes()
		switch {
		case len(line) == 0:
			if data.Len() > 0 {
				c.dispatch(data.Bytes())
				data.Reset()
			}
		case bytes.HasPrefix(line, []byte("data:")):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.Write(bytes.TrimPrefix(bytes.TrimPrefix(line, []byte("data:")), []byte(" ")))
		}
		// comments and other fields are ignored
	}

	if ctx.Err() != nil {
		return
	}
	err := sc.Err()
	if err == nil {
		err = fault.New("stream closed by server")
	}
	c.report(fault.Wrap(err, fmsg.WithDesc("stream "+id, "Collaboration connection lost")))

	c.mu.Lock()
	if c.session == id {
		c.cancel()
		c.session = ""
		c.outbox = nil
		c.cancel = nil
	}
	c.mu.Unlock()
}

func (c *Client) dispatch(data []byte) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		debug.Log("collab", "bad event: %v", err)
		return
	}
	switch m.Type {
	case Snapshot, Update:
		if m.PeerID == c.peerID || m.Patch == nil {
			return
		}
		if c.OnRemotePatch != nil {
			c.OnRemotePatch(*m.Patch)
		}
	case Join, Leave:
		if c.OnEvent != nil {
			c.OnEvent(m)
		}
	}
}

// post sends queued patches one at a time so they arrive in order
func (c *Client) post(ctx context.Context, id string, outbox <-chan settings.Patch) {
	u := c.base + "/collaboration/" + url.PathEscape(id) + "/patch?peer=" + url.QueryEscape(c.peerID)
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-outbox:
			if err := c.send(ctx, u, p); err != nil && ctx.Err() == nil {
				c.report(err)
			}
		}
	}
}

func (c *Client) send(ctx context.Context, u string, p settings.Patch) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fault.Wrap(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return fault.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fault.Wrap(err, fmsg.WithDesc("post patch", "Failed to share change"))
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fault.Wrap(api.ReadError(resp), fmsg.WithDesc("post patch", "Failed to share change"))
	}
	return nil
}

func (c *Client) report(err error) {
	debug.Log("collab", "%v", err)
	if c.OnError != nil {
		c.OnError(err)
	}
}
