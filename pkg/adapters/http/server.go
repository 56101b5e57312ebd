// Package http exposes the Grove engine as a JSON API: family inspection,
// reaction generation and rate estimation, plus the Prometheus metrics
// endpoint.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veldtlab/grove/pkg/domain"
	"github.com/veldtlab/grove/pkg/observability"
)

// Engine defines the interface for the Grove kinetics core.
type Engine interface {
	Families() []string
	Tree(family string) ([]*domain.Entry, error)
	ParseSpecies(label string, texts ...string) (*domain.Species, error)
	Generate(ctx context.Context, family string, reactants []*domain.Species, products ...*domain.Species) ([]*domain.Reaction, error)
	React(ctx context.Context, reactants ...*domain.Species) ([]*domain.Reaction, error)
	Estimate(ctx context.Context, family string, template []string, degeneracy int) (*domain.RateRule, error)
	EstimateReaction(ctx context.Context, rxn *domain.Reaction) error
}

// Server holds the engine behind the HTTP handlers.
type Server struct {
	Engine Engine
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine) http.Handler {
	server := &Server{Engine: engine}

	r := chi.NewRouter()
	r.Get("/healthz", server.Health)
	r.Get("/metrics", observability.Handler().ServeHTTP)
	r.Route("/api", func(r chi.Router) {
		r.Get("/info", server.Info)
		r.Get("/families", server.Families)
		r.Get("/families/{family}/tree", server.Tree)
		r.Post("/families/{family}/generate", server.GenerateFamily)
		r.Post("/generate", server.GenerateAll)
		r.Post("/estimate", server.Estimate)
	})
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SpeciesInput is one reactant in a generation request. Adjacency holds one
// or more adjacency-list texts, one per resonance variant.
type SpeciesInput struct {
	Label     string   `json:"label"`
	Adjacency []string `json:"adjacency"`
}

// GenerateRequest is the body of the generation endpoints.
type GenerateRequest struct {
	Reactants []SpeciesInput `json:"reactants"`
	Estimate  bool           `json:"estimate,omitempty"`
}

// ReactionResponse is the caller-facing form of one generated reaction.
type ReactionResponse struct {
	Equation   string           `json:"equation"`
	Family     string           `json:"family"`
	Reactants  []string         `json:"reactants"`
	Products   []string         `json:"products"`
	Degeneracy int              `json:"degeneracy"`
	Reversible bool             `json:"reversible"`
	Duplicate  bool             `json:"duplicate,omitempty"`
	Template   []string         `json:"template"`
	Pairs      []domain.Pair    `json:"pairs"`
	Kinetics   *domain.RateRule `json:"kinetics"`
}

// EstimateRequest is the body of POST /api/estimate.
type EstimateRequest struct {
	Family     string   `json:"family"`
	Template   []string `json:"template"`
	Degeneracy int      `json:"degeneracy,omitempty"`
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Info handles GET /api/info.
func (s *Server) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"families": s.Engine.Families(),
	})
}

// Families handles GET /api/families.
func (s *Server) Families(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine.Families())
}

// Tree handles GET /api/families/{family}/tree, returning the hierarchy in
// its persistence form.
func (s *Server) Tree(w http.ResponseWriter, r *http.Request) {
	family := chi.URLParam(r, "family")
	entries, err := s.Engine.Tree(family)
	if err != nil {
		writeError(w, err)
		return
	}
	records := make([]domain.Record, len(entries))
	for i, e := range entries {
		records[i] = e.ToRecord()
	}
	writeJSON(w, http.StatusOK, records)
}

// GenerateFamily handles POST /api/families/{family}/generate.
func (s *Server) GenerateFamily(w http.ResponseWriter, r *http.Request) {
	s.generate(w, r, chi.URLParam(r, "family"))
}

// GenerateAll handles POST /api/generate, running every loaded family.
func (s *Server) GenerateAll(w http.ResponseWriter, r *http.Request) {
	s.generate(w, r, "")
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request, family string) {
	var body GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		slog.Warn("Generate: Invalid request body", "error", err)
		return
	}
	if len(body.Reactants) == 0 {
		http.Error(w, "At least one reactant is required", http.StatusBadRequest)
		return
	}

	species := make([]*domain.Species, len(body.Reactants))
	for i, in := range body.Reactants {
		sp, err := s.Engine.ParseSpecies(in.Label, in.Adjacency...)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid species: %v", err), http.StatusBadRequest)
			return
		}
		species[i] = sp
	}

	var (
		rxns []*domain.Reaction
		err  error
	)
	if family != "" {
		rxns, err = s.Engine.Generate(r.Context(), family, species)
	} else {
		rxns, err = s.Engine.React(r.Context(), species...)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]ReactionResponse, len(rxns))
	for i, rxn := range rxns {
		if body.Estimate {
			if err := s.Engine.EstimateReaction(r.Context(), rxn); err != nil {
				// The reaction is still returned, kinetics left null.
				var uk *domain.UndeterminableKineticsError
				if !errors.As(err, &uk) {
					writeError(w, err)
					return
				}
			}
		}
		out[i] = toResponse(rxn)
	}
	writeJSON(w, http.StatusOK, out)
}

// Estimate handles POST /api/estimate.
func (s *Server) Estimate(w http.ResponseWriter, r *http.Request) {
	var body EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		slog.Warn("Estimate: Invalid request body", "error", err)
		return
	}
	if body.Family == "" || len(body.Template) == 0 {
		http.Error(w, "family and template are required", http.StatusBadRequest)
		return
	}

	rule, err := s.Engine.Estimate(r.Context(), body.Family, body.Template, body.Degeneracy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func toResponse(rxn *domain.Reaction) ReactionResponse {
	labels := func(list []*domain.Species) []string {
		out := make([]string, len(list))
		for i, sp := range list {
			out[i] = sp.Label
		}
		return out
	}
	return ReactionResponse{
		Equation:   rxn.String(),
		Family:     rxn.Family,
		Reactants:  labels(rxn.Reactants),
		Products:   labels(rxn.Products),
		Degeneracy: rxn.Degeneracy,
		Reversible: rxn.Reversible,
		Duplicate:  rxn.Duplicate,
		Template:   rxn.Template,
		Pairs:      rxn.Pairs,
		Kinetics:   rxn.Kinetics,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps domain errors onto HTTP statuses: unknown families and
// labels are 404, missing kinetics is 422, anything else 500.
func writeError(w http.ResponseWriter, err error) {
	var uk *domain.UndeterminableKineticsError
	switch {
	case errors.Is(err, domain.ErrFamilyNotFound), errors.Is(err, domain.ErrEntryNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &uk):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		slog.Error("Request failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
