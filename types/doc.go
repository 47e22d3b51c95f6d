// Package types provides unified type definitions for the MemFlow pipeline.
//
// The package carries the shared vocabulary of the memory-routing core:
// fact records, verdict and mode tags, intent classes and evaluation
// results. It depends only on the standard library so that every other
// package can import it freely.
package types
