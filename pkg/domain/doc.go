/*
Package domain contains the core domain models for the Grove engine.

It defines the entities exchanged between the recipe engine, the reaction
generator, the tree inducer and the rate-rule estimator. This package is kept
pure and free of external dependencies like I/O or persistence, following
Hexagonal Architecture principles.

# Key Entities

  - Entry: a node of a family's pattern hierarchy (a pattern or a logical OR).
  - Template: the ordered reactant-slot patterns of a reaction family.
  - Recipe: the ordered bond/electron actions that transform reactants into
    products, addressed by stable atom labels.
  - Reaction: an ephemeral generation result (reactants, products,
    degeneracy, template path, pairs, kinetics).
  - RateRule: a rate model attached to a tree node, with uncertainty and
    provenance.
  - Structure: the boundary interface to the molecular-graph subsystem.
*/
package domain
