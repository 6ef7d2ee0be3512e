// Package handoff provides a single-assignment cell that hands one result,
// or one failure, from a producer goroutine to a waiting consumer.
package handoff
