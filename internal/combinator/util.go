package combinator

import "math"

// fTerminal returns the non-finite sentinel value that progress.Apply
// recognizes as "snap straight to done" (spec.md's terminal update).
func fTerminal() float64 { return math.Inf(1) }
