package nrverify

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"

	"github.com/lattice-substrate/nanraster/nrconfig"
	"github.com/lattice-substrate/nanraster/nrerr"
	"github.com/lattice-substrate/nanraster/nrfixture"
	"github.com/lattice-substrate/nanraster/nrstats"
)

// EvidenceSchemaVersion identifies the evidence layout.
const EvidenceSchemaVersion = "nanraster.evidence.v1"

// Evidence is the machine-readable record of a verification. It is written
// as canonical JSON (RFC 8785), so two runs with identical outcomes produce
// identical files apart from the timestamp.
type Evidence struct {
	SchemaVersion    string         `json:"schema_version"`
	GeneratedAtUTC   string         `json:"generated_at_utc"`
	Fingerprint      string         `json:"fingerprint"`
	ManifestDigest   string         `json:"manifest_set_xxhash64"`
	Kernel           string         `json:"kernel"`
	Repetitions      int            `json:"repetitions"`
	StrictIterations int            `json:"strict_iterations"`
	Lanes            []LaneEvidence `json:"lanes"`
	Findings         []Finding      `json:"findings"`
	Success          bool           `json:"success"`
}

// LaneEvidence is one lane in one repetition.
type LaneEvidence struct {
	Lane       string              `json:"lane"`
	Repetition int                 `json:"repetition"`
	Iterations []IterationEvidence `json:"iterations"`
}

// IterationEvidence records the statistics of one verified iteration.
// Extremes are stored as IEEE-754 bit patterns: they are compared bit for
// bit, and an empty iteration has infinite extremes that JSON cannot carry.
type IterationEvidence struct {
	Count      int     `json:"count"`
	Mean       float64 `json:"mean"`
	MinBits    string  `json:"min_bits"`
	MaxBits    string  `json:"max_bits"`
	Mismatches int     `json:"mismatches"`
}

func bitsHex(f float64) string { return fmt.Sprintf("%016x", math.Float64bits(f)) }

// NewEvidence captures res. manifest may be nil when no manifest was read.
func NewEvidence(cfg nrconfig.Config, manifest *nrfixture.Manifest, res *Result) *Evidence {
	e := &Evidence{
		SchemaVersion:    EvidenceSchemaVersion,
		GeneratedAtUTC:   time.Now().UTC().Format(time.RFC3339),
		Fingerprint:      cfg.Fingerprint(),
		Kernel:           cfg.Kernel,
		Repetitions:      cfg.Repetitions,
		StrictIterations: cfg.StrictIterations,
		Findings:         append([]Finding{}, res.Findings...),
		Success:          res.Success(),
	}
	if manifest != nil {
		e.ManifestDigest = manifest.SetDigest
	}
	for _, l := range res.Lanes {
		for rep, r := range l.Reports {
			e.Lanes = append(e.Lanes, LaneEvidence{Lane: l.Lane.String(), Repetition: rep, Iterations: iterationEvidence(r)})
		}
	}
	return e
}

func iterationEvidence(r *nrstats.Report) []IterationEvidence {
	out := make([]IterationEvidence, len(r.Iterations))
	for i, it := range r.Iterations {
		out[i] = IterationEvidence{
			Count:      it.Count,
			Mean:       it.Mean(),
			MinBits:    bitsHex(it.Min),
			MaxBits:    bitsHex(it.Max),
			Mismatches: it.Mismatches,
		}
	}
	return out
}

// WriteEvidence stores e as canonical JSON followed by a newline.
func WriteEvidence(path string, e *Evidence) error {
	if e == nil {
		return nrerr.New(nrerr.InternalError, -1, "evidence is nil")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nrerr.Wrap(nrerr.InternalError, -1, "marshal evidence", err)
	}
	canon, err := jsoncanonicalizer.Transform(data)
	if err != nil {
		return nrerr.Wrap(nrerr.InternalError, -1, "canonicalize evidence", err)
	}
	if err := os.WriteFile(path, append(canon, '\n'), 0o644); err != nil {
		return nrerr.Wrap(nrerr.IOError, -1, "write evidence", errors.Wrapf(err, "%s", path))
	}
	return nil
}

// LoadEvidence reads an evidence file.
func LoadEvidence(path string) (*Evidence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nrerr.Wrap(nrerr.IOError, -1, "read evidence", errors.Wrapf(err, "%s", path))
	}
	var e Evidence
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, nrerr.Wrap(nrerr.IOError, -1, "decode evidence", err)
	}
	return &e, nil
}

// ValidateEvidence re-checks an evidence file against the rules of Run: every
// lane succeeded within the strict iterations and matched the reference lane
// of the same repetition bit for bit. The recorded verdict must agree.
func ValidateEvidence(e *Evidence) error {
	if e == nil {
		return nrerr.New(nrerr.InternalError, -1, "evidence is nil")
	}
	if e.SchemaVersion != EvidenceSchemaVersion {
		return nrerr.Newf(nrerr.IOError, -1, "unsupported schema_version %q", e.SchemaVersion)
	}
	if len(e.Lanes) == 0 {
		return nrerr.New(nrerr.IOError, -1, "evidence has no lanes")
	}
	lanes := nrfixture.Lanes()
	reference := lanes[0].String()
	known := make(map[string]bool, len(lanes))
	for _, l := range lanes {
		known[l.String()] = true
	}
	baseline := map[int]LaneEvidence{}
	for _, l := range e.Lanes {
		if !known[l.Lane] {
			return nrerr.Newf(nrerr.IOError, -1, "evidence references unknown lane %q", l.Lane)
		}
		if l.Lane == reference {
			baseline[l.Repetition] = l
		}
	}

	var problems []error
	for _, l := range e.Lanes {
		for i, it := range l.Iterations {
			if i < e.StrictIterations && it.Mismatches != 0 {
				problems = append(problems, nrerr.Newf(nrerr.ClassificationMismatch, i,
					"%s repetition %d has %d mismatch(es)", l.Lane, l.Repetition, it.Mismatches))
				break
			}
		}
		base, ok := baseline[l.Repetition]
		if !ok {
			return nrerr.Newf(nrerr.IOError, -1, "repetition %d has no %s baseline", l.Repetition, reference)
		}
		if len(base.Iterations) != len(l.Iterations) {
			problems = append(problems, nrerr.Newf(nrerr.StatisticalDivergence, -1,
				"%s repetition %d has %d iterations, baseline %d", l.Lane, l.Repetition, len(l.Iterations), len(base.Iterations)))
			continue
		}
		for i := range l.Iterations {
			a, b := base.Iterations[i], l.Iterations[i]
			if a.MaxBits != b.MaxBits || a.Mismatches != b.Mismatches {
				problems = append(problems, nrerr.Newf(nrerr.StatisticalDivergence, i,
					"%s repetition %d drifts from %s", l.Lane, l.Repetition, reference))
				break
			}
		}
	}
	if ok := len(problems) == 0; ok != e.Success {
		return nrerr.Newf(nrerr.IOError, -1, "recorded success=%t but lanes say %t", e.Success, ok)
	}
	var err error
	for _, p := range problems {
		err = errors.CombineErrors(err, p)
	}
	return err
}
