// Package matrix implements the combination-resolution engine at the heart
// of fwmatrix: declarative build axes, sparse pairwise exclusion rules,
// deterministic cartesian-product resolution, and the flattening of resolved
// configurations into compiler-facing feature sets.
//
// The model is three declarative pieces:
//
//   - Registry: the selectable axes (MCU family, network backend, logging
//     backend) and, per axis member, the derived attributes (target triple,
//     toolchain variant, optional bootloader variant).
//   - Constraints: symmetric, irreflexive exclusion pairs. Exclusions are
//     sparse relative to the full product, so a rule-based filter scales with
//     the rule count instead of the combination count.
//   - Tolerance: the soft-fail allowlist for hardware families that are
//     attempted and reported but must not gate the overall run.
//
// Registry and Constraints are read-only after initialization and safe for
// unsynchronized concurrent reads. Configurations are ephemeral resolver
// output; they are never persisted by this package.
package matrix
