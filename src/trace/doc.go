// Package trace records the progress of iteration engines, one Record per
// iteration, for later inspection. Traces are write-only from the point of
// view of an engine: nothing here is ever used to resume a run.
package trace
