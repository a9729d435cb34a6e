// Package completion provides the single-fire completion primitive used by
// every blocking wait in agenthook.
//
// A Future is resolved or rejected exactly once; whichever of a callback, a
// deadline timer or a context cancellation gets there first wins and every
// later attempt is a no-op. Closer runs cleanup functions exactly once, no
// matter how many exit paths call it.
package completion
