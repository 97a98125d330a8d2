package nrverify

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/lattice-substrate/nanraster/nrstats"
)

// Verdict lines printed after the tables.
const (
	SuccessLine = "Success (mismatches in the last iterations are normal)."
	FailureLine = "TEST FAILURE."
)

// PrintReport renders the per-iteration statistics of one lane.
func PrintReport(w io.Writer, lane string, r *nrstats.Report) {
	fmt.Fprintf(w, "%s\n", lane)
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"Iteration", "Count", "Minimum", "Average", "Maximum", "Mismatches"})
	t.SetAlignment(tablewriter.ALIGN_RIGHT)
	t.SetBorder(false)
	for i, it := range r.Iterations {
		t.Append([]string{
			strconv.Itoa(i),
			strconv.Itoa(it.Count),
			fmt.Sprintf("%.4f", it.Min),
			fmt.Sprintf("%.4f", it.Mean()),
			fmt.Sprintf("%.4f", it.Max),
			strconv.Itoa(it.Mismatches),
		})
	}
	t.Render()
}

// PrintResult prints the last repetition of every lane that diverged from
// the reference or, when all lanes agree, the NaN big-endian lane alone.
// The findings and the verdict follow.
func PrintResult(w io.Writer, res *Result) {
	shown := res.Diverging()
	if len(shown) == 0 && len(res.Lanes) > 2 {
		shown = res.Lanes[2:3]
	}
	for _, l := range shown {
		PrintReport(w, l.Lane.String(), l.Last())
	}
	for _, f := range res.Findings {
		fmt.Fprintln(w, f.String())
	}
	if res.Success() {
		fmt.Fprintln(w, SuccessLine)
	} else {
		fmt.Fprintln(w, FailureLine)
	}
}
