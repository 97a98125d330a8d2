// Package nrstats accumulates per-iteration interpolation error statistics.
package nrstats

import (
	"fmt"
	"math"
	"strings"
)

// Iteration summarizes the absolute interpolation errors of one verified
// iteration together with the number of missing-value mismatches.
type Iteration struct {
	Count      int
	Min        float64
	Max        float64
	Sum        float64
	Mismatches int

	comp float64 // Kahan compensation for Sum
}

// NewIteration returns an empty accumulator. Min starts at +Inf and Max at
// -Inf so that the first accepted error sets both.
func NewIteration() Iteration {
	return Iteration{Min: math.Inf(1), Max: math.Inf(-1)}
}

// Accept records one absolute error.
func (s *Iteration) Accept(err float64) {
	s.Count++
	s.Min = math.Min(s.Min, err)
	s.Max = math.Max(s.Max, err)
	y := err - s.comp
	t := s.Sum + y
	s.comp = (t - s.Sum) - y
	s.Sum = t
}

// Mismatch records one missing-value mismatch.
func (s *Iteration) Mismatch() { s.Mismatches++ }

// Mean returns Sum/Count, or 0 when nothing was accepted.
func (s Iteration) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

// Equal reports whether two iterations have the same mismatch count and a
// bit-identical maximum error.
func (s Iteration) Equal(o Iteration) bool {
	return s.Mismatches == o.Mismatches && math.Float64bits(s.Max) == math.Float64bits(o.Max)
}

// Report holds one Iteration per verified iteration of a run.
type Report struct {
	Iterations []Iteration
}

// NewReport returns a report with n empty iterations.
func NewReport(n int) *Report {
	r := &Report{Iterations: make([]Iteration, n)}
	for i := range r.Iterations {
		r.Iterations[i] = NewIteration()
	}
	return r
}

// Success reports whether the first strict iterations are free of mismatches.
// Mismatches in later iterations are expected: the trajectories have diverged
// from the decimal reference by then.
func (r *Report) Success(strict int) bool {
	first := r.FirstMismatch()
	return first < 0 || first >= strict
}

// FirstMismatch returns the index of the first iteration with a mismatch, or -1.
func (r *Report) FirstMismatch() int {
	for i, it := range r.Iterations {
		if it.Mismatches != 0 {
			return i
		}
	}
	return -1
}

// TotalMismatches sums the mismatches of the first n iterations.
func (r *Report) TotalMismatches(n int) int {
	total := 0
	for i := 0; i < n && i < len(r.Iterations); i++ {
		total += r.Iterations[i].Mismatches
	}
	return total
}

// Equal reports whether every iteration of r equals the same iteration of o.
func (r *Report) Equal(o *Report) bool {
	return len(r.Diff(o)) == 0
}

// Diff describes every iteration where r and o disagree.
func (r *Report) Diff(o *Report) []string {
	var out []string
	if len(r.Iterations) != len(o.Iterations) {
		return []string{fmt.Sprintf("iteration count %d != %d", len(r.Iterations), len(o.Iterations))}
	}
	for i := range r.Iterations {
		a, b := r.Iterations[i], o.Iterations[i]
		if a.Equal(b) {
			continue
		}
		var parts []string
		if a.Mismatches != b.Mismatches {
			parts = append(parts, fmt.Sprintf("mismatches %d != %d", a.Mismatches, b.Mismatches))
		}
		if math.Float64bits(a.Max) != math.Float64bits(b.Max) {
			parts = append(parts, fmt.Sprintf("max %#016x != %#016x", math.Float64bits(a.Max), math.Float64bits(b.Max)))
		}
		out = append(out, fmt.Sprintf("iteration %d: %s", i, strings.Join(parts, ", ")))
	}
	return out
}
