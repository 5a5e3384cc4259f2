// Package server is the backend HTTP API: the per-account settings
// document under /chords and the collaboration relay.
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/gorilla/mux"

	"bandaid/api"
	"bandaid/collab"
	"bandaid/store"
)

const maxDocumentBytes = 256 << 10

// Server routes requests to the document store and the hub
type Server struct {
	docs   *store.Documents
	hub    *collab.Hub
	router *mux.Router
}

func New(docs *store.Documents, hub *collab.Hub) *Server {
	s := &Server{docs: docs, hub: hub, router: mux.NewRouter()}
	s.router.Use(logRequests, allowCORS)

	chords := s.router.PathPrefix("/chords").Subrouter()
	chords.HandleFunc("/last", s.handleLast).Methods(http.MethodGet)
	chords.HandleFunc("/save", s.handleSave).Methods(http.MethodPost)
	chords.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)

	hub.Routes(s.router)
	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func user(r *http.Request) string {
	if u := r.Header.Get(api.UserHeader); u != "" {
		return u
	}
	return store.DefaultUser
}

// handleLast returns the stored document. Accounts that never saved get
// an empty document, which reads back as the defaults.
func (s *Server) handleLast(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docs.Get(r.Context(), user(r))
	if api.IsNotFound(err) {
		api.WriteJSON(w, http.StatusOK, api.Document{})
		return
	}
	if err != nil {
		log.Printf("Get settings error: %v", err)
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, doc)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var doc api.Document
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDocumentBytes)).Decode(&doc); err != nil {
		api.WriteError(w, fault.Wrap(err, ftag.With(ftag.InvalidArgument), fmsg.WithDesc("decode document", "Invalid settings document")))
		return
	}
	// store what the engine would read back, so bad values never persist
	doc = api.FromSettings(doc.Settings())
	if err := s.docs.Put(r.Context(), user(r), doc); err != nil {
		log.Printf("Save settings error: %v", err)
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, api.SaveResult{Success: true, Settings: doc})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docs.Reset(r.Context(), user(r))
	if err != nil {
		log.Printf("Reset settings error: %v", err)
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, api.SaveResult{Success: true, Settings: doc})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+api.UserHeader)
		next.ServeHTTP(w, r)
	})
}
