// Package synth produces candidate actions for one advisor run.
//
// Three generators run independently: deterministic live-reading rules,
// a fixed deviation → action table, and optional suggestions from the
// completion service. Merge combines their outputs by stable identity so
// that re-running it over its own output changes nothing.
package synth
