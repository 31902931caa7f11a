package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dcerrors "github.com/sbl8/dualc/errors"
	"github.com/sbl8/dualc/value"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	if app != nil {
		_ = app.close()
		app = nil
	}
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const rotateYAML = `
name: rotate
namespace: demo
version: "1"
runtime:
  x: state
ops:
  - op: R
    args: [x]
`

func TestCompileInspectRun(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "rotate.yaml", rotateYAML)

	out, err := execute(t, "compile", src)
	require.NoError(t, err)
	planPath := filepath.Join(dir, "rotate"+PlanExt)
	assert.Contains(t, out, planPath)
	assert.Contains(t, out, "C1, fast backend, 1 ops")
	require.FileExists(t, planPath)

	out, err = execute(t, "inspect", planPath)
	require.NoError(t, err)
	assert.Contains(t, out, "demo/rotate@1")
	assert.Contains(t, out, "x:state")
	assert.Contains(t, out, "R")

	out, err = execute(t, "run", planPath, "--in", "x=21")
	require.NoError(t, err)
	assert.Contains(t, out, "state 45")
	assert.Contains(t, out, "backend=fast")
}

func TestCompileExplicitOutput(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "rotate.yaml", rotateYAML)
	target := filepath.Join(dir, "out", "custom"+PlanExt)
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))

	_, err := execute(t, "compile", src, "-o", target)
	require.NoError(t, err)
	assert.FileExists(t, target)
}

func TestRunDescriptorFallsBack(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "scaled.dc", "name scaled\nprefer fast\nruntime u element\nop R u\nop project $\n")

	// 2 * e5·s2 is state 21 scaled; fast entry rejects it.
	out, err := execute(t, "run", src, "--in", "u=element 5:0:2:2")
	require.NoError(t, err)
	assert.Contains(t, out, "state 45")
	assert.Contains(t, out, "fell back")
	assert.Contains(t, out, "backend=general")
}

func TestRunFallbackDisabled(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "scaled.dc", "name scaled\nprefer fast\nruntime u element\nop R u\nop project $\n")
	t.Setenv("DUALC_FALLBACK", "false")

	_, err := execute(t, "run", src, "--in", "u=element 5:0:2:2")
	assert.ErrorIs(t, err, dcerrors.ErrNotRank1)
}

func TestRunBatch(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "mirror.dc", "name mirror\nruntime x state\nop M x\n")
	batch := writeFile(t, dir, "batch.yaml", "- {x: \"0\"}\n- {x: \"1\"}\n- {x: \"95\"}\n")

	out, err := execute(t, "run", src, "--batch", batch)
	require.NoError(t, err)
	assert.Contains(t, out, "[0] state")
	assert.Contains(t, out, "[2] state")
}

func TestRunStrictOverflow(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "wrap.dc", "name wrap\nruntime x state\nop add x 90 overflow=track\n")

	out, err := execute(t, "run", src, "--in", "x=10")
	require.NoError(t, err)
	assert.Contains(t, out, "state 4")
	assert.Contains(t, out, "overflow: step 0 add carry 1")

	_, err = execute(t, "run", src, "--in", "x=10", "--strict-overflow")
	assert.ErrorIs(t, err, dcerrors.ErrOverflow)
}

func TestRunMissingBinding(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "rotate.yaml", rotateYAML)

	_, err := execute(t, "run", src)
	assert.ErrorIs(t, err, dcerrors.ErrMissingBinding)
}

func TestVerify(t *testing.T) {
	out, err := execute(t, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "ok: 3 checks over 96 states")
}

func TestConfigStore(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "dualc.yaml", "store:\n  path: "+filepath.Join(dir, "plans")+"\ncompiler:\n  cache_size: 4\n  max_passes: 16\n")
	src := writeFile(t, dir, "rotate.yaml", rotateYAML)

	_, err := execute(t, "--config", cfg, "compile", src)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(dir, "plans"))

	_, err = execute(t, "--config", filepath.Join(dir, "missing.yaml"), "verify")
	assert.Error(t, err)
}

func TestParseBindings(t *testing.T) {
	inputs, err := parseBindings([]string{"x=21", "u=element 1,2:1:0:0.5 :0:0:1"})
	require.NoError(t, err)
	assert.True(t, value.Equal(value.Of(21), inputs["x"]))
	_, ok := value.AsElement(inputs["u"])
	assert.True(t, ok)

	for _, bad := range []string{"x", "=3", "x=", "x=abc", "x=200", "u=element", "u=element 1:0:0"} {
		_, err := parseBindings([]string{bad})
		assert.Error(t, err, bad)
	}
}
