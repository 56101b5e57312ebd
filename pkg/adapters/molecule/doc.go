/*
Package molecule is the reference implementation of the molecular-graph
boundary consumed by the Grove engine.

It provides concrete molecules (Molecule), structural patterns (Pattern), a
line-oriented adjacency text codec shared by both, and a backtracking
subgraph matcher satisfying ports.Matcher. Patterns additionally implement
the refinement enumeration and narrowing hooks used by tree induction.

The engine itself depends only on domain.Structure and ports.Matcher; any
other graph subsystem can be swapped in behind those interfaces.
*/
package molecule
