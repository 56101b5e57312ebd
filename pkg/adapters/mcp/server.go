// Package mcp exposes the Grove engine as a Model Context Protocol server,
// so agents can generate reactions and estimate rate rules as tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/veldtlab/grove"
	"github.com/veldtlab/grove/pkg/domain"
)

// SpeciesInput is one reactant in a generate_reactions call.
type SpeciesInput struct {
	Label     string   `json:"label"`
	Adjacency []string `json:"adjacency"`
}

// ReactionSummary is the structured output form of one generated reaction.
type ReactionSummary struct {
	Equation   string           `json:"equation" jsonschema_description:"Reaction equation"`
	Family     string           `json:"family" jsonschema_description:"Family that produced the reaction"`
	Degeneracy int              `json:"degeneracy" jsonschema_description:"Reaction path degeneracy"`
	Reversible bool             `json:"reversible"`
	Template   []string         `json:"template" jsonschema_description:"Tree node labels, one per reactant slot"`
	Kinetics   *domain.RateRule `json:"kinetics,omitempty"`
}

// GenerateResponse wraps the reactions of one generate_reactions call.
type GenerateResponse struct {
	Reactions []ReactionSummary `json:"reactions"`
}

// EstimateResponse is the structured output of estimate_rate.
type EstimateResponse struct {
	Rule *domain.RateRule `json:"rule"`
}

// Engine defines the interface required by the MCP server to interact with
// Grove.
type Engine interface {
	Families() []string
	Tree(family string) ([]*domain.Entry, error)
	ParseSpecies(label string, texts ...string) (*domain.Species, error)
	Generate(ctx context.Context, family string, reactants []*domain.Species, products ...*domain.Species) ([]*domain.Reaction, error)
	React(ctx context.Context, reactants ...*domain.Species) ([]*domain.Reaction, error)
	Estimate(ctx context.Context, family string, template []string, degeneracy int) (*domain.RateRule, error)
	EstimateReaction(ctx context.Context, rxn *domain.Reaction) error
}

// Server wraps the Grove Engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("grove-mcp", strings.TrimSpace(grove.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)

	go func() {
		slog.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		fmt.Println("\nShutdown signal received, shutting down server...")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: generate_reactions
	generateTool := mcp.NewTool("generate_reactions",
		mcp.WithDescription("Generate every valid reaction for the given reactant species. If family is omitted, every loaded family is tried."),
		mcp.WithString("reactants", mcp.Required(), mcp.Description(`JSON array of species, e.g. [{"label":"CH4","adjacency":["..."]}]`)),
		mcp.WithString("family", mcp.Description("Restrict generation to one family (optional)")),
		mcp.WithBoolean("estimate", mcp.Description("Also estimate kinetics for each reaction")),
		mcp.WithOutputSchema[GenerateResponse](),
	)
	s.mcpServer.AddTool(generateTool, mcp.NewStructuredToolHandler(s.handleGenerate))

	// TOOL: estimate_rate
	estimateTool := mcp.NewTool("estimate_rate",
		mcp.WithDescription("Estimate a rate rule for a template path (one tree node label per reactant slot)."),
		mcp.WithString("family", mcp.Required(), mcp.Description("Family name")),
		mcp.WithString("template", mcp.Required(), mcp.Description("Comma-separated tree node labels")),
		mcp.WithNumber("degeneracy", mcp.Description("Reaction path degeneracy multiplying the A factor (default 1)")),
		mcp.WithOutputSchema[EstimateResponse](),
	)
	s.mcpServer.AddTool(estimateTool, mcp.NewStructuredToolHandler(s.handleEstimate))

	// TOOL: get_family_tree
	s.mcpServer.AddTool(mcp.NewTool("get_family_tree",
		mcp.WithDescription("Get a family's pattern hierarchy in its persistence form."),
		mcp.WithString("family", mcp.Required(), mcp.Description("Family name")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		family, err := request.RequireString("family")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		entries, err := s.engine.Tree(family)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("tree lookup failed: %v", err)), nil
		}
		records := make([]domain.Record, len(entries))
		for i, e := range entries {
			records[i] = e.ToRecord()
		}
		jsonBytes, _ := json.Marshal(records)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

// Handler methods for structured tools

func (s *Server) handleGenerate(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (GenerateResponse, error) {
	reactantsJSON, _ := args["reactants"].(string)
	family, _ := args["family"].(string)
	estimate, _ := args["estimate"].(bool)

	var inputs []SpeciesInput
	if err := json.Unmarshal([]byte(reactantsJSON), &inputs); err != nil {
		return GenerateResponse{}, fmt.Errorf("invalid reactants: %w", err)
	}
	if len(inputs) == 0 {
		return GenerateResponse{}, fmt.Errorf("at least one reactant is required")
	}

	species := make([]*domain.Species, len(inputs))
	for i, in := range inputs {
		sp, err := s.engine.ParseSpecies(in.Label, in.Adjacency...)
		if err != nil {
			return GenerateResponse{}, err
		}
		species[i] = sp
	}

	var (
		rxns []*domain.Reaction
		err  error
	)
	if family != "" {
		rxns, err = s.engine.Generate(ctx, family, species)
	} else {
		rxns, err = s.engine.React(ctx, species...)
	}
	if err != nil {
		return GenerateResponse{}, fmt.Errorf("generation failed: %w", err)
	}

	out := GenerateResponse{Reactions: make([]ReactionSummary, len(rxns))}
	for i, rxn := range rxns {
		if estimate {
			if err := s.engine.EstimateReaction(ctx, rxn); err != nil {
				slog.Warn("MCP Generate: kinetics unavailable", "reaction", rxn.String(), "error", err)
			}
		}
		out.Reactions[i] = ReactionSummary{
			Equation:   rxn.String(),
			Family:     rxn.Family,
			Degeneracy: rxn.Degeneracy,
			Reversible: rxn.Reversible,
			Template:   rxn.Template,
			Kinetics:   rxn.Kinetics,
		}
	}
	return out, nil
}

func (s *Server) handleEstimate(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (EstimateResponse, error) {
	family, _ := args["family"].(string)
	templateCSV, _ := args["template"].(string)
	degeneracy := 1
	if n, ok := args["degeneracy"].(float64); ok && n >= 1 {
		degeneracy = int(n)
	}

	var template []string
	for _, part := range strings.Split(templateCSV, ",") {
		if part = strings.TrimSpace(part); part != "" {
			template = append(template, part)
		}
	}
	if family == "" || len(template) == 0 {
		return EstimateResponse{}, fmt.Errorf("family and template are required")
	}

	rule, err := s.engine.Estimate(ctx, family, template, degeneracy)
	if err != nil {
		return EstimateResponse{}, fmt.Errorf("estimation failed: %w", err)
	}
	return EstimateResponse{Rule: rule}, nil
}

func (s *Server) registerResources() {
	// EXPOSE: grove://families
	s.mcpServer.AddResource(mcp.NewResource("grove://families", "Loaded Reaction Families",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, _ := json.Marshal(s.engine.Families())

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "grove://families",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
