package ports

import "github.com/veldtlab/grove/pkg/domain"

// Matcher is the subgraph-isomorphism boundary of the molecular-graph
// subsystem. Implementations must treat matching atom labels as pinned:
// whenever pattern and target both carry label `*n`, the corresponding sites
// are fixed to each other before the search starts.
type Matcher interface {
	// Match returns every embedding of pattern into target as a mapping from
	// pattern site indices to target site indices. An empty slice means the
	// pattern does not apply.
	Match(pattern, target domain.Structure) []domain.Mapping

	// Matches reports whether at least one embedding exists.
	Matches(pattern, target domain.Structure) bool

	// Isomorphic reports whole-structure equivalence. Labels do not
	// participate; only the underlying graphs are compared.
	Isomorphic(a, b domain.Structure) bool

	// Refines reports whether the child pattern matches a subset of what the
	// parent pattern matches. Tree validation leans on it.
	Refines(child, parent domain.Structure) bool
}
