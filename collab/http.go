package collab

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/gorilla/mux"

	"bandaid/api"
	"bandaid/settings"
)

// KeepAlive is the comment interval on idle event streams
var KeepAlive = 15 * time.Second

const maxPatchBytes = 64 << 10

// StartResponse is the body of POST /collaboration/start
type StartResponse struct {
	CollaborationID string `json:"collaborationId"`
}

// Routes mounts the collaboration endpoints on r
func (h *Hub) Routes(r *mux.Router) {
	r.HandleFunc("/collaboration/start", h.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/collaboration/{id}/events", h.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/collaboration/{id}/patch", h.handlePatch).Methods(http.MethodPost)
}

func (h *Hub) handleStart(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, StartResponse{CollaborationID: h.Start()})
}

// handleEvents streams a session to one peer as server-sent events
func (h *Hub) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	peerID := r.URL.Query().Get("peer")
	if peerID == "" {
		api.WriteError(w, fault.New("missing peer", ftag.With(ftag.InvalidArgument),
			fmsg.WithDesc("peer query parameter required", "peer query parameter required")))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		api.WriteError(w, fault.New("response writer cannot flush", fmsg.WithDesc("no flusher", "SSE not supported")))
		return
	}

	peer := h.AddPeer(sessionID, peerID)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(KeepAlive)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.RemovePeer(peer)
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
			peer.touch(h.now())
		case msg, ok := <-peer.Messages:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
			peer.touch(h.now())
		}
	}
}

func (h *Hub) handlePatch(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	peerID := r.URL.Query().Get("peer")

	var p settings.Patch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPatchBytes)).Decode(&p); err != nil {
		api.WriteError(w, fault.Wrap(err, ftag.With(ftag.InvalidArgument), fmsg.WithDesc("decode patch", "Invalid patch")))
		return
	}
	h.Publish(sessionID, peerID, p)
	w.WriteHeader(http.StatusAccepted)
}
