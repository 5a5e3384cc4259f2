package collab

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"bandaid/settings"
)

func decode(t *testing.T, b []byte) Message {
	t.Helper()
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func next(t *testing.T, p *Peer) Message {
	t.Helper()
	select {
	case b := <-p.Messages:
		return decode(t, b)
	case <-time.After(time.Second):
		t.Fatal("no message")
	}
	return Message{}
}

func empty(t *testing.T, p *Peer) {
	t.Helper()
	select {
	case b := <-p.Messages:
		t.Fatalf("unexpected message %s", b)
	default:
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	h := NewHub()
	id := h.Start()
	a := h.AddPeer(id, "a")
	b := h.AddPeer(id, "b")
	if m := next(t, a); m.Type != Join || m.PeerID != "b" {
		t.Fatalf("a got %+v", m)
	}

	h.Publish(id, "a", settings.Patch{BPM: settings.Ptr(90)})
	m := next(t, b)
	if m.Type != Update || m.PeerID != "a" || *m.Patch.BPM != 90 {
		t.Fatalf("b got %+v", m)
	}
	empty(t, a)
}

func TestLateJoinerGetsUnion(t *testing.T) {
	h := NewHub()
	id := h.Start()
	h.AddPeer(id, "a")
	h.Publish(id, "a", settings.Patch{BPM: settings.Ptr(90)})
	h.Publish(id, "a", settings.Patch{Scale: settings.Ptr("D")})
	h.Publish(id, "a", settings.Patch{BPM: settings.Ptr(100)})

	c := h.AddPeer(id, "c")
	m := next(t, c)
	if m.Type != Snapshot {
		t.Fatalf("first message %+v", m)
	}
	if *m.Patch.BPM != 100 || *m.Patch.Scale != "D" || m.Patch.Transpose != nil {
		t.Fatalf("snapshot = %+v", m.Patch)
	}
}

func TestFreshSessionHasNoSnapshot(t *testing.T) {
	h := NewHub()
	p := h.AddPeer(h.Start(), "a")
	empty(t, p)
}

func TestReplacedPeerSurvivesOldRemove(t *testing.T) {
	h := NewHub()
	id := h.Start()
	old := h.AddPeer(id, "a")
	fresh := h.AddPeer(id, "a")
	if _, ok := <-old.Messages; ok {
		t.Fatal("old stream not closed")
	}
	h.RemovePeer(old)
	if peers := h.Peers(id); len(peers) != 1 {
		t.Fatalf("peers = %v", peers)
	}
	h.RemovePeer(fresh)
	if peers := h.Peers(id); len(peers) != 0 {
		t.Fatalf("peers = %v", peers)
	}
}

func TestSweep(t *testing.T) {
	h := NewHub()
	now := time.Unix(1000, 0)
	h.now = func() time.Time { return now }

	live := h.Start()
	stale := h.Start()
	p := h.AddPeer(stale, "idle")
	h.AddPeer(live, "busy")

	now = now.Add(30 * time.Second)
	h.Sweep()
	if len(h.Peers(stale)) != 1 {
		t.Fatal("peer swept too early")
	}

	now = now.Add(31 * time.Second)
	h.AddPeer(live, "busy") // reconnect refreshes
	peers, sessions := h.Sweep()
	if peers != 1 || sessions != 0 {
		t.Fatalf("swept %d peers %d sessions", peers, sessions)
	}
	if _, ok := <-p.Messages; ok {
		t.Fatal("stale stream not closed")
	}

	now = now.Add(61 * time.Second)
	h.AddPeer(live, "busy")
	if _, sessions := h.Sweep(); sessions != 1 {
		t.Fatalf("swept %d sessions, want the empty one", sessions)
	}
	if _, ok := h.State(stale); ok {
		t.Fatal("empty session kept")
	}
	if _, ok := h.State(live); !ok {
		t.Fatal("live session swept")
	}
}

// remote collects patches delivered to a client
type remote struct {
	mu      sync.Mutex
	patches []settings.Patch
	got     chan struct{}
}

func newRemote() *remote {
	return &remote{got: make(chan struct{}, 16)}
}

func (r *remote) add(p settings.Patch) {
	r.mu.Lock()
	r.patches = append(r.patches, p)
	r.mu.Unlock()
	r.got <- struct{}{}
}

func (r *remote) wait(t *testing.T) settings.Patch {
	t.Helper()
	select {
	case <-r.got:
	case <-time.After(2 * time.Second):
		t.Fatal("no patch delivered")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.patches[len(r.patches)-1]
}

func server(t *testing.T) (*Hub, string) {
	t.Helper()
	h := NewHub()
	r := mux.NewRouter()
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return h, srv.URL
}

func TestClientsShareSettings(t *testing.T) {
	_, url := server(t)
	ctx := context.Background()

	a := NewClient(url)
	id, err := a.StartSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	storeA := settings.NewStore(settings.Default())
	storeA.SetRelay(a)
	gotA := newRemote()
	a.OnRemotePatch = func(p settings.Patch) {
		storeA.ApplyRemote(p)
		gotA.add(p)
	}
	if err := a.Join(ctx, id); err != nil {
		t.Fatal(err)
	}
	defer a.Leave(id)

	b := NewClient(url)
	storeB := settings.NewStore(settings.Default())
	storeB.SetRelay(b)
	gotB := newRemote()
	b.OnRemotePatch = func(p settings.Patch) {
		storeB.ApplyRemote(p)
		gotB.add(p)
	}
	if err := b.Join(ctx, id); err != nil {
		t.Fatal(err)
	}
	defer b.Leave(id)

	storeA.SetBPM(150)
	if p := gotB.wait(t); p.BPM == nil || *p.BPM != 150 {
		t.Fatalf("b got %+v", p)
	}
	if storeB.Snapshot().BPM != 150 {
		t.Fatalf("b bpm = %d", storeB.Snapshot().BPM)
	}

	// The remote patch is applied on b without being sent back to a
	storeB.Transpose(2)
	if p := gotA.wait(t); p.Transpose == nil || *p.Transpose != 2 || p.BPM != nil {
		t.Fatalf("a got %+v", p)
	}
	select {
	case <-gotA.got:
		t.Fatal("a received an echo")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLateClientReceivesSnapshot(t *testing.T) {
	h, url := server(t)
	ctx := context.Background()
	id := h.Start()
	h.Publish(id, "someone", settings.Patch{Scale: settings.Ptr("E"), EnableBeats: settings.Ptr(true)})

	c := NewClient(url)
	got := newRemote()
	c.OnRemotePatch = got.add
	if err := c.Join(ctx, id); err != nil {
		t.Fatal(err)
	}
	defer c.Leave(id)

	p := got.wait(t)
	if p.Scale == nil || *p.Scale != "E" || p.EnableBeats == nil || !*p.EnableBeats {
		t.Fatalf("snapshot = %+v", p)
	}
}

func TestLeaveStopsRelay(t *testing.T) {
	h, url := server(t)
	ctx := context.Background()
	c := NewClient(url)
	id, _ := c.StartSession(ctx)
	if err := c.Join(ctx, id); err != nil {
		t.Fatal(err)
	}
	c.Leave(id)
	if c.Session() != "" {
		t.Fatal("still joined")
	}
	c.SendPatch(settings.Patch{BPM: settings.Ptr(99)})
	time.Sleep(50 * time.Millisecond)
	if st, _ := h.State(id); st.BPM != nil {
		t.Fatal("patch sent after leave")
	}
}

func TestJoinRequiresID(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	if err := c.Join(context.Background(), "  "); err == nil {
		t.Fatal("joined an empty id")
	}
}
