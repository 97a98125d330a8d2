package nrfixture

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"

	"github.com/lattice-substrate/nanraster/nrerr"
)

// ManifestVersion identifies the manifest layout.
const ManifestVersion = "nanraster.fixtures.v1"

// Manifest pins the content of a fixture set. It is written after every
// data file, so its presence means generation completed.
type Manifest struct {
	Version      string            `json:"version"`
	CreatedAtUTC string            `json:"created_at_utc"`
	Fingerprint  string            `json:"fingerprint"`
	Files        []string          `json:"files"`
	Sizes        map[string]int64  `json:"sizes"`
	Digests      map[string]string `json:"xxhash64"`
	SetDigest    string            `json:"set_xxhash64"`
}

// Matches reports whether the fixture set was generated from a config with
// the given fingerprint.
func (m *Manifest) Matches(fingerprint string) bool {
	return m != nil && m.Fingerprint == fingerprint
}

// TotalSize is the sum of all file sizes.
func (m *Manifest) TotalSize() int64 {
	var n int64
	for _, s := range m.Sizes {
		n += s
	}
	return n
}

// BuildManifest hashes every file of layout.
func BuildManifest(layout Layout, fingerprint string) (*Manifest, error) {
	m := &Manifest{
		Version:      ManifestVersion,
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Fingerprint:  fingerprint,
		Files:        layout.Files(),
		Sizes:        map[string]int64{},
		Digests:      map[string]string{},
	}
	for _, rel := range m.Files {
		digest, size, err := hashFile(filepath.Join(layout.Dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, err
		}
		m.Digests[rel] = digest
		m.Sizes[rel] = size
	}
	m.SetDigest = setDigest(m.Files, m.Digests)
	return m, nil
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, ioErr("hash fixture", errors.Wrapf(err, "%s", path))
	}
	defer func() { _ = f.Close() }()
	h := xxhash.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, ioErr("hash fixture", errors.Wrapf(err, "%s", path))
	}
	return fmt.Sprintf("%016x", h.Sum64()), n, nil
}

func setDigest(files []string, digests map[string]string) string {
	lines := make([]string, 0, len(files))
	for _, f := range files {
		lines = append(lines, f+":"+digests[f])
	}
	sort.Strings(lines)
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.Join(lines, "\n")))
}

// WriteManifest stores m at layout.Manifest().
func WriteManifest(layout Layout, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nrerr.Wrap(nrerr.InternalError, -1, "marshal manifest", err)
	}
	return writeFile(layout.Manifest(), append(data, '\n'))
}

// ReadManifest loads the manifest of layout. When the file does not exist,
// errors.Is(err, fs.ErrNotExist) holds for the returned error.
func ReadManifest(layout Layout) (*Manifest, error) {
	data, err := os.ReadFile(layout.Manifest())
	if err != nil {
		return nil, ioErr("read manifest", err)
	}
	return decodeManifest(data)
}

func decodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, ioErr("decode manifest", err)
	}
	if m.Version != ManifestVersion {
		return nil, nrerr.Newf(nrerr.IOError, -1, "manifest version %q, want %q", m.Version, ManifestVersion)
	}
	if len(m.Files) == 0 {
		return nil, nrerr.New(nrerr.IOError, -1, "manifest lists no files")
	}
	for _, f := range m.Files {
		if m.Digests[f] == "" {
			return nil, nrerr.Newf(nrerr.IOError, -1, "manifest missing digest for %s", f)
		}
	}
	return &m, nil
}

// VerifyManifest re-hashes every file listed in the manifest and fails with
// IO_ERROR when any digest or size has drifted.
func VerifyManifest(layout Layout) (*Manifest, error) {
	m, err := ReadManifest(layout)
	if err != nil {
		return nil, err
	}
	var drift []string
	for _, rel := range m.Files {
		digest, size, err := hashFile(filepath.Join(layout.Dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, err
		}
		if digest != m.Digests[rel] || size != m.Sizes[rel] {
			drift = append(drift, fmt.Sprintf("%s: xxhash64 %s != %s", rel, digest, m.Digests[rel]))
		}
	}
	if got := setDigest(m.Files, m.Digests); got != m.SetDigest {
		drift = append(drift, fmt.Sprintf("set digest %s != %s", got, m.SetDigest))
	}
	if len(drift) > 0 {
		return nil, nrerr.New(nrerr.IOError, -1, "fixture drift: "+strings.Join(drift, "; "))
	}
	return m, nil
}
