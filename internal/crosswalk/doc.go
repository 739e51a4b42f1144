// Package crosswalk resolves municipality identity changes between two
// dates. It is a pure, single-threaded computation over records that have
// already been loaded: Filter drops records outside the requested scope,
// BuildCascade chains single-hop mutations into maximal temporal chains,
// Collapse reduces every chain to its first and last identity and
// MergeRoster adds municipalities that did not change. Resolve runs the
// whole pipeline.
package crosswalk
