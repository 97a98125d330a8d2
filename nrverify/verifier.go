// Package nrverify runs the trajectory driver over every lane of a fixture
// set, repeatedly, and checks that each lane tracks the exact reference and
// that all lanes produce bit-identical statistics.
package nrverify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lattice-substrate/nanraster/nrconfig"
	"github.com/lattice-substrate/nanraster/nrerr"
	"github.com/lattice-substrate/nanraster/nrfixture"
	"github.com/lattice-substrate/nanraster/nrinterp"
	"github.com/lattice-substrate/nanraster/nrlog"
	"github.com/lattice-substrate/nanraster/nrstats"
	"github.com/lattice-substrate/nanraster/nrtrace"
)

// Finding is a soft failure: the run went to completion but one lane did
// not behave.
type Finding struct {
	Class      nrerr.FailureClass `json:"class"`
	Repetition int                `json:"repetition"`
	Lane       string             `json:"lane"`
	Message    string             `json:"message"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s repetition %d %s: %s", f.Class, f.Repetition, f.Lane, f.Message)
}

// LaneResult holds one report per repetition.
type LaneResult struct {
	Lane    nrfixture.Lane
	Reports []*nrstats.Report
}

// Last returns the report of the final repetition.
func (l LaneResult) Last() *nrstats.Report {
	if len(l.Reports) == 0 {
		return nil
	}
	return l.Reports[len(l.Reports)-1]
}

// Result is the outcome of a verification. Lanes are in nrfixture.Lanes
// order, so Lanes[0] is the reference.
type Result struct {
	Lanes    []LaneResult
	Findings []Finding
}

// Success reports whether no finding was recorded.
func (r *Result) Success() bool { return len(r.Findings) == 0 }

// Err summarizes the findings as an error carrying the class of the first
// one, or returns nil on success.
func (r *Result) Err() error {
	if r.Success() {
		return nil
	}
	msgs := make([]string, len(r.Findings))
	for i, f := range r.Findings {
		msgs[i] = f.String()
	}
	return nrerr.Newf(r.Findings[0].Class, -1, "%d finding(s): %s", len(r.Findings), strings.Join(msgs, "; "))
}

// Diverging returns the lanes whose last report differs from the reference.
func (r *Result) Diverging() []LaneResult {
	var out []LaneResult
	if len(r.Lanes) == 0 {
		return nil
	}
	ref := r.Lanes[0].Last()
	for _, l := range r.Lanes[1:] {
		if !ref.Equal(l.Last()) {
			out = append(out, l)
		}
	}
	return out
}

// Verifier checks a fixture set below Config.DataDir.
type Verifier struct {
	Config nrconfig.Config
	Kernel nrinterp.Kernel
	Logger *zap.Logger
}

// Run performs Config.Repetitions rounds over the four lanes. Fatal errors
// (unreadable fixtures, out-of-bounds positions, cancellation) end the run;
// classification and divergence problems are collected in Result.Findings.
func (v *Verifier) Run(ctx context.Context) (*Result, error) {
	cfg := v.Config
	log := nrlog.OrNop(v.Logger)
	kernel := v.Kernel
	if kernel == nil {
		k, err := cfg.KernelFunc()
		if err != nil {
			return nil, err
		}
		kernel = k
	}
	layout := nrfixture.Layout{Dir: cfg.DataDir}
	lanes := nrfixture.Lanes()
	rasters := make([]nrinterp.Raster, len(lanes))
	for i, lane := range lanes {
		samples, err := nrfixture.LoadRaster(layout.Raster(lane), lane.Order, cfg.Width*cfg.Height)
		if err != nil {
			return nil, err
		}
		if rasters[i], err = nrinterp.NewRaster(cfg.Width, cfg.Height, samples); err != nil {
			return nil, err
		}
	}

	res := &Result{Lanes: make([]LaneResult, len(lanes))}
	for i, lane := range lanes {
		res.Lanes[i] = LaneResult{Lane: lane, Reports: make([]*nrstats.Report, 0, cfg.Repetitions)}
	}
	start := time.Now()
	for rep := 0; rep < cfg.Repetitions; rep++ {
		reports := make([]*nrstats.Report, len(lanes))
		run := func(i int) error {
			lane := lanes[i]
			d := &nrtrace.Driver{
				Config:   cfg,
				Encoding: lane.Encoding,
				Kernel:   kernel,
				Logger:   log.With(zap.Stringer("lane", lane), zap.Int("repetition", rep)),
			}
			r, err := runLane(d, layout, lane, rasters[i], cfg.Points)
			if err != nil {
				return err
			}
			reports[i] = r
			return nil
		}
		if cfg.Parallel {
			g, gctx := errgroup.WithContext(ctx)
			for i := range lanes {
				g.Go(func() error {
					if err := gctx.Err(); err != nil {
						return cancelled(err)
					}
					return run(i)
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}
		} else {
			for i := range lanes {
				if err := ctx.Err(); err != nil {
					return nil, cancelled(err)
				}
				if err := run(i); err != nil {
					return nil, err
				}
			}
		}
		for i, r := range reports {
			res.Lanes[i].Reports = append(res.Lanes[i].Reports, r)
		}
		res.Findings = append(res.Findings, check(rep, lanes, reports, cfg.StrictIterations)...)
	}
	log.Info("verification finished",
		zap.Int("repetitions", cfg.Repetitions),
		zap.Int("findings", len(res.Findings)),
		zap.Bool("success", res.Success()),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func cancelled(err error) error {
	return nrerr.Wrap(nrerr.InternalError, -1, "verification cancelled", err)
}

func runLane(d *nrtrace.Driver, layout nrfixture.Layout, lane nrfixture.Lane, raster nrinterp.Raster, points int) (*nrstats.Report, error) {
	coords, err := nrfixture.LoadCoordinates(layout.Coordinates(lane.Encoding), points)
	if err != nil {
		return nil, err
	}
	exp, err := nrfixture.OpenExpected(layout.Expected(lane.Encoding))
	if err != nil {
		return nil, err
	}
	defer func() { _ = exp.Close() }()
	return d.Run(raster, coords, exp)
}

// check derives the findings of one repetition.
func check(rep int, lanes []nrfixture.Lane, reports []*nrstats.Report, strict int) []Finding {
	var out []Finding
	for i, r := range reports {
		if !r.Success(strict) {
			first := r.FirstMismatch()
			out = append(out, Finding{
				Class:      nrerr.ClassificationMismatch,
				Repetition: rep,
				Lane:       lanes[i].String(),
				Message: fmt.Sprintf("%d mismatch(es) in iteration %d, before iteration %d",
					r.Iterations[first].Mismatches, first, strict),
			})
		}
		if i == 0 {
			continue
		}
		if diff := reports[0].Diff(r); len(diff) > 0 {
			out = append(out, Finding{
				Class:      nrerr.StatisticalDivergence,
				Repetition: rep,
				Lane:       lanes[i].String(),
				Message:    "differs from " + lanes[0].String() + ": " + strings.Join(diff, "; "),
			})
		}
	}
	return out
}
