// Package builtin holds the cleaning steps that turn bronze trips into
// silver ones. Each step filters or rewrites a []trip.Draft and reports a
// stable Name used to attribute dropped rows.
//
// Filtering steps reuse the input backing array (out := in[:0]); callers
// must not keep references to the input slice after Apply.
package builtin
