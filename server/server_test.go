package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bandaid/api"
	"bandaid/collab"
	"bandaid/settings"
	"bandaid/store"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(store.NewDocuments(t.TempDir()), collab.NewHub()))
	t.Cleanup(srv.Close)
	return srv
}

func TestSaveThenLoad(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	c := api.NewClient(srv.URL, "ana")

	s := settings.Default()
	s.BPM = 140
	s.Scale = "G"
	s.EnableBeats = true
	s.BeatMode = settings.TwoLoops
	s.ActiveInstruments = settings.Instruments{"flute": {Gain: 1, Octave: settings.OctaveHigher, Style: "block"}}
	if err := c.Save(ctx, s); err != nil {
		t.Fatal(err)
	}

	got, err := c.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.BPM != 140 || got.Scale != "G" || !got.EnableBeats || got.BeatMode != settings.TwoLoops {
		t.Fatalf("loaded %+v", got)
	}
	if cfg, ok := got.ActiveInstruments["flute"]; !ok || cfg.Octave != settings.OctaveHigher {
		t.Fatalf("instruments = %+v", got.ActiveInstruments)
	}

	// other accounts are untouched
	other, err := api.NewClient(srv.URL, "bo").Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if other.BPM != 120 {
		t.Fatalf("other account bpm = %d", other.BPM)
	}
}

func TestResetReturnsDefaults(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	c := api.NewClient(srv.URL, "ana")
	s := settings.Default()
	s.BPM = 60
	c.Save(ctx, s)

	got, err := c.Reset(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.BPM != 120 || len(got.ActiveInstruments) != 0 {
		t.Fatalf("reset = %+v", got)
	}
	if again, _ := c.Load(ctx); again.BPM != 120 {
		t.Fatalf("bpm after reset = %d", again.BPM)
	}
}

func TestLegacyDocument(t *testing.T) {
	srv := newServer(t)
	body := `{"tempo": 100, "scale": "D", "instruments": {"violin": true, "piano": true}}`
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/chords/save", strings.NewReader(body))
	req.Header.Set(api.UserHeader, "ana")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	s, err := api.NewClient(srv.URL, "ana").Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	cfg, ok := s.ActiveInstruments["violin"]
	if s.BPM != 100 || !ok || cfg.Gain != 1.5 || len(s.ActiveInstruments) != 1 {
		t.Fatalf("loaded %+v", s)
	}
}

func TestBadDocumentIsRejected(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Post(srv.URL+"/chords/save", "application/json", strings.NewReader("{tempo"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if err := api.ReadError(resp); !strings.Contains(err.Error(), "400") {
		t.Fatalf("error = %v", err)
	}
}

func TestHealthAndStart(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}

	id, err := collab.NewClient(srv.URL).StartSession(context.Background())
	if err != nil || len(id) != 36 {
		t.Fatalf("session id %q, err %v", id, err)
	}
}

func TestEventsNeedPeer(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Get(srv.URL + "/collaboration/abc/events")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
}
