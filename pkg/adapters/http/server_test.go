package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpAdapter "github.com/veldtlab/grove/pkg/adapters/http"
	"github.com/veldtlab/grove/pkg/domain"
)

// fakeEngine is a canned-answer engine for handler tests.
type fakeEngine struct {
	estimateErr error
}

func (f *fakeEngine) Families() []string { return []string{"h_abstraction"} }

func (f *fakeEngine) Tree(family string) ([]*domain.Entry, error) {
	if family != "h_abstraction" {
		return nil, fmt.Errorf("%w: %q", domain.ErrFamilyNotFound, family)
	}
	return []*domain.Entry{
		{Index: 1, Label: "X_H", Children: []string{"C_H"}},
		{Index: 2, Label: "C_H", Parent: "X_H"},
	}, nil
}

func (f *fakeEngine) ParseSpecies(label string, texts ...string) (*domain.Species, error) {
	if len(texts) == 0 || strings.TrimSpace(texts[0]) == "" {
		return nil, fmt.Errorf("species %q: empty adjacency", label)
	}
	return domain.NewSpecies(label), nil
}

func (f *fakeEngine) Generate(ctx context.Context, family string, reactants []*domain.Species, products ...*domain.Species) ([]*domain.Reaction, error) {
	if family != "h_abstraction" {
		return nil, fmt.Errorf("%w: %q", domain.ErrFamilyNotFound, family)
	}
	return []*domain.Reaction{{
		Reactants:  reactants,
		Products:   []*domain.Species{domain.NewSpecies("CH3"), domain.NewSpecies("H2O")},
		Degeneracy: 4,
		Reversible: true,
		Template:   []string{"C_H", "O_rad"},
		Pairs:      []domain.Pair{{Reactant: 0, Product: 0}, {Reactant: 1, Product: 1}},
		Family:     family,
		IsForward:  true,
	}}, nil
}

func (f *fakeEngine) React(ctx context.Context, reactants ...*domain.Species) ([]*domain.Reaction, error) {
	return f.Generate(ctx, "h_abstraction", reactants)
}

func (f *fakeEngine) Estimate(ctx context.Context, family string, template []string, degeneracy int) (*domain.RateRule, error) {
	if f.estimateErr != nil {
		return nil, f.estimateErr
	}
	return &domain.RateRule{
		Kinetics: &domain.Arrhenius{A: 1e8, Ea: 40000, Units: "m^3/(mol*s)"},
		Comment:  "Exact match found for rate rule [C_H;O_rad]",
	}, nil
}

func (f *fakeEngine) EstimateReaction(ctx context.Context, rxn *domain.Reaction) error {
	rule, err := f.Estimate(ctx, rxn.Family, rxn.Template, rxn.Degeneracy)
	if err != nil {
		return err
	}
	rxn.Kinetics = rule
	return nil
}

func newServer(t *testing.T) (*fakeEngine, *httptest.Server) {
	t.Helper()
	eng := &fakeEngine{}
	srv := httptest.NewServer(httpAdapter.NewHandler(eng))
	t.Cleanup(srv.Close)
	return eng, srv
}

func TestHealth(t *testing.T) {
	_, srv := newServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFamilies(t *testing.T) {
	_, srv := newServer(t)
	resp, err := http.Get(srv.URL + "/api/families")
	require.NoError(t, err)
	defer resp.Body.Close()

	var families []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&families))
	assert.Equal(t, []string{"h_abstraction"}, families)
}

func TestTree(t *testing.T) {
	_, srv := newServer(t)
	resp, err := http.Get(srv.URL + "/api/families/h_abstraction/tree")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []domain.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 2)
	assert.Equal(t, "X_H", records[0].Label)
	assert.Equal(t, []string{"C_H"}, records[0].Children)
}

func TestTreeUnknownFamilyIs404(t *testing.T) {
	_, srv := newServer(t)
	resp, err := http.Get(srv.URL + "/api/families/nope/tree")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGenerate(t *testing.T) {
	_, srv := newServer(t)
	body := `{"reactants":[{"label":"CH4","adjacency":["1 C u0"]},{"label":"OH","adjacency":["1 O u1"]}],"estimate":true}`
	resp, err := http.Post(srv.URL+"/api/families/h_abstraction/generate", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rxns []httpAdapter.ReactionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rxns))
	require.Len(t, rxns, 1)
	assert.Equal(t, 4, rxns[0].Degeneracy)
	assert.Equal(t, []string{"C_H", "O_rad"}, rxns[0].Template)
	assert.Equal(t, []string{"CH4", "OH"}, rxns[0].Reactants)
	require.NotNil(t, rxns[0].Kinetics)
}

func TestGenerateUndeterminableKineticsKeepsReaction(t *testing.T) {
	eng, srv := newServer(t)
	eng.estimateErr = &domain.UndeterminableKineticsError{
		Family:   "h_abstraction",
		Template: []string{"C_H", "O_rad"},
		Reason:   "no rate data reachable from the template",
	}

	body := `{"reactants":[{"label":"CH4","adjacency":["1 C u0"]}],"estimate":true}`
	resp, err := http.Post(srv.URL+"/api/generate", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rxns []httpAdapter.ReactionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rxns))
	require.Len(t, rxns, 1)
	assert.Nil(t, rxns[0].Kinetics, "reaction survives with null kinetics")
}

func TestGenerateRejectsEmptyBody(t *testing.T) {
	_, srv := newServer(t)
	resp, err := http.Post(srv.URL+"/api/generate", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEstimate(t *testing.T) {
	_, srv := newServer(t)
	body := `{"family":"h_abstraction","template":["C_H","O_rad"],"degeneracy":2}`
	resp, err := http.Post(srv.URL+"/api/estimate", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rule domain.RateRule
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rule))
	require.NotNil(t, rule.Kinetics)
	assert.InEpsilon(t, 1e8, rule.Kinetics.A, 1e-12)
}

func TestEstimateUndeterminableIs422(t *testing.T) {
	eng, srv := newServer(t)
	eng.estimateErr = &domain.UndeterminableKineticsError{Family: "h_abstraction"}

	body := `{"family":"h_abstraction","template":["O_H","C_rad"]}`
	resp, err := http.Post(srv.URL+"/api/estimate", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	_, srv := newServer(t)
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/families", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := newServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
