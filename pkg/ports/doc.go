/*
Package ports defines the driven ports (interfaces) for the Grove engine.

These interfaces decouple the core logic from external implementations,
allowing the engine to work with any molecular-graph subsystem, thermodynamic
property source, and rule persistence backend.

# Key Interfaces

  - Matcher: the subgraph-isomorphism primitive consumed by generation and
    tree induction.
  - ThermoSource: thermodynamic properties for equilibrium-based reverse
    rates.
  - RuleStore: persistence of pattern hierarchies and their rate rules
    (memory, Redis, Loam).
*/
package ports
