package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-substrate/nanraster/nrerr"
	"github.com/lattice-substrate/nanraster/nrfixture"
	"github.com/lattice-substrate/nanraster/nrverify"
)

type cli struct {
	t       *testing.T
	cfgPath string
	dataDir string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	c := &cli{t: t, cfgPath: filepath.Join(dir, "nanraster.yaml"), dataDir: filepath.Join(dir, "data")}
	body := fmt.Sprintf(`width: 24
height: 16
points: 120
verified_iterations: 3
total_iterations: 4
strict_iterations: 1
repetitions: 2
data_dir: %s
log_level: warn
`, c.dataDir)
	require.NoError(t, os.WriteFile(c.cfgPath, []byte(body), 0o644))
	return c
}

func (c *cli) run(args ...string) (int, string, string) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"--config", c.cfgPath}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestNoCommandIsUsageError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{}, &stdout, &stderr)
	assert.Equal(t, nrerr.CLIUsage.ExitCode(), code)
	assert.Contains(t, stderr.String(), "missing command")
}

func TestUnknownCommandIsUsageError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"bogus"}, &stdout, &stderr)
	assert.Equal(t, nrerr.CLIUsage.ExitCode(), code)
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	c := newCLI(t)
	code, _, stderr := c.run("verify", "--no-such-flag")
	assert.Equal(t, nrerr.CLIUsage.ExitCode(), code)
	assert.Contains(t, stderr, "no-such-flag")
}

func TestExtraArgumentIsUsageError(t *testing.T) {
	c := newCLI(t)
	code, _, _ := c.run("generate", "extra")
	assert.Equal(t, nrerr.CLIUsage.ExitCode(), code)
}

func TestInvalidConfigExitCode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("width: 1\n"), 0o644))
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--config", path, "config"}, &stdout, &stderr)
	assert.Equal(t, nrerr.InvalidConfig.ExitCode(), code)
}

func TestUnknownKernelFlag(t *testing.T) {
	c := newCLI(t)
	code, _, _ := c.run("verify", "--kernel", "cubic")
	assert.Equal(t, nrerr.InvalidConfig.ExitCode(), code)
}

func TestConfigPrintsEffectiveValues(t *testing.T) {
	c := newCLI(t)
	override := filepath.Join(t.TempDir(), "elsewhere")
	code, stdout, _ := c.run("--data-dir", override, "config")
	require.Equal(t, exitSuccess, code)
	assert.Contains(t, stdout, "width: 24")
	assert.Contains(t, stdout, "data_dir: "+override)
}

func TestVerifyWithoutFixturesIsFatal(t *testing.T) {
	c := newCLI(t)
	code, _, _ := c.run("verify")
	assert.Equal(t, nrerr.IOError.ExitCode(), code)
}

func TestRunGeneratesThenVerifies(t *testing.T) {
	c := newCLI(t)
	evidence := filepath.Join(t.TempDir(), "evidence.json")
	code, stdout, stderr := c.run("run", "--evidence", evidence)
	require.Equal(t, exitSuccess, code, stderr)
	assert.Contains(t, stdout, "generated")
	assert.Contains(t, stdout, "nan/big-endian")
	assert.Contains(t, stdout, nrverify.SuccessLine)

	_, err := nrfixture.ReadManifest(nrfixture.Layout{Dir: c.dataDir})
	require.NoError(t, err)

	// Fixtures are current now, so a second run only verifies.
	code, stdout, stderr = c.run("run", "--parallel")
	require.Equal(t, exitSuccess, code, stderr)
	assert.NotContains(t, stdout, "generated")

	code, stdout, stderr = c.run("check-evidence", evidence)
	require.Equal(t, exitSuccess, code, stderr)
	assert.Contains(t, stdout, "consistent")
}

func TestVerifyReportsDivergence(t *testing.T) {
	c := newCLI(t)
	code, _, stderr := c.run("generate")
	require.Equal(t, exitSuccess, code, stderr)

	layout := nrfixture.Layout{Dir: c.dataDir}
	lane := nrfixture.Lanes()[1]
	samples, err := nrfixture.LoadRaster(layout.Raster(lane), lane.Order, 24*16)
	require.NoError(t, err)
	for i, v := range samples {
		if !lane.Encoding.Classify(v).Missing() {
			samples[i] = v + 1
		}
	}
	require.NoError(t, nrfixture.WriteRaster(layout.Raster(lane), samples, lane.Order))

	code, stdout, stderr := c.run("verify", "--repetitions", "1")
	assert.Equal(t, 1, code, stderr)
	assert.Contains(t, stdout, lane.String())
	assert.Contains(t, stdout, nrverify.FailureLine)
}

func TestPackUnpackRoundTrip(t *testing.T) {
	c := newCLI(t)
	code, _, stderr := c.run("generate")
	require.Equal(t, exitSuccess, code, stderr)

	bundle := filepath.Join(t.TempDir(), "fixtures.tar.zst")
	code, stdout, stderr := c.run("pack", bundle)
	require.Equal(t, exitSuccess, code, stderr)
	assert.True(t, strings.HasPrefix(stdout, "packed 8 files"), stdout)

	restored := filepath.Join(t.TempDir(), "restored")
	code, _, stderr = c.run("--data-dir", restored, "unpack", bundle)
	require.Equal(t, exitSuccess, code, stderr)

	code, _, stderr = c.run("--data-dir", restored, "verify")
	assert.Equal(t, exitSuccess, code, stderr)
}

func TestPackRequiresBundlePath(t *testing.T) {
	c := newCLI(t)
	code, _, _ := c.run("pack")
	assert.Equal(t, nrerr.CLIUsage.ExitCode(), code)
}
