// Package server exposes the analysis pipeline over HTTP. One endpoint
// accepts the same JSON request as stdin mode and runs it synchronously.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/mfreitag/socialosint/internal/agent"
	"github.com/mfreitag/socialosint/internal/platforms"
)

// Server is the HTTP front end over the agent.
type Server struct {
	agent *agent.Agent
	mux   *http.ServeMux
}

// New creates a new Server.
func New(a *agent.Agent) *Server {
	s := &Server{agent: a, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/analyze", s.handleAnalyze)
	s.mux.HandleFunc("/platforms", s.handlePlatforms)
	s.mux.HandleFunc("/healthz", s.handleHealth)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	available := platforms.Available(s.agent.Deps, true)
	req, err := agent.ParseRequest(r.Body, available)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	result := s.agent.Analyze(r.Context(), req, r.URL.Query().Get("force_refresh") == "true")

	switch r.URL.Query().Get("format") {
	case "html":
		html, err := agent.RenderHTML(result.Report)
		if err != nil {
			http.Error(w, "rendering failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if result.Error {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}
		fmt.Fprint(w, html)
	default:
		status := http.StatusOK
		if result.Error {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, result)
	}
}

func (s *Server) handlePlatforms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"available": platforms.Available(s.agent.Deps, true),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// Serve starts the HTTP server on the given port.
func Serve(a *agent.Agent, port int) error {
	srv := New(a)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
