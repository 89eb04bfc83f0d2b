// Package http exposes a read-only introspection API over a running engine.
package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/corvid-labs/strand/internal/presentation/graph"
	"github.com/corvid-labs/strand/internal/runtime"
	"github.com/corvid-labs/strand/pkg/domain"
)

// Engine defines the read surface of the FSM runtime.
type Engine interface {
	Status() runtime.Status
	Snapshot() (string, map[string]domain.Value)
	Automaton() *domain.Automaton
}

// Server serves the introspection endpoints.
type Server struct {
	Engine Engine
	RunID  string
}

// NewHandler creates the HTTP handler for the engine. A non-nil metrics
// handler is mounted at /metrics.
func NewHandler(engine Engine, runID string, metrics http.Handler) http.Handler {
	server := &Server{Engine: engine, RunID: runID}
	r := chi.NewRouter()

	r.Get("/status", server.GetStatus)
	r.Get("/variables", server.GetVariables)
	r.Get("/graph", server.GetGraph)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	return r
}

// StatusResponse is the GET /status body.
type StatusResponse struct {
	RunID     string `json:"run_id"`
	Automaton string `json:"automaton"`
	Status    string `json:"status"`
	State     string `json:"state,omitempty"`
}

// VariableResponse is one entry of the GET /variables body.
type VariableResponse struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// GetStatus handles the GET /status request.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	state, _ := s.Engine.Snapshot()
	writeJSON(w, StatusResponse{
		RunID:     s.RunID,
		Automaton: s.Engine.Automaton().Name,
		Status:    string(s.Engine.Status()),
		State:     state,
	})
}

// GetVariables handles the GET /variables request. Entries follow the
// declaration order of the automaton.
func (s *Server) GetVariables(w http.ResponseWriter, r *http.Request) {
	_, vars := s.Engine.Snapshot()
	auto := s.Engine.Automaton()

	out := make([]VariableResponse, 0, len(vars))
	for _, decl := range auto.Variables {
		v, ok := vars[decl.Name]
		if !ok {
			continue
		}
		out = append(out, VariableResponse{
			Name:  decl.Name,
			Type:  string(decl.Type),
			Value: v.Interface(),
		})
	}
	writeJSON(w, out)
}

// GetGraph handles the GET /graph request, rendering the automaton as a
// Mermaid diagram with the current state highlighted.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	state, _ := s.Engine.Snapshot()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, graph.GenerateMermaid(s.Engine.Automaton(), &graph.Overlay{CurrentState: state}))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("encode error: %v", err), http.StatusInternalServerError)
	}
}
