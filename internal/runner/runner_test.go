package runner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/exgate/internal/discovery"
)

// writeGenerator writes an executable shell script standing in for the generator.
func writeGenerator(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script generator requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "gen.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func testExample(t *testing.T, name string) discovery.Example {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	return discovery.Example{Name: name, Path: dir, DescriptorPath: filepath.Join(dir, "pom.xml")}
}

func TestRun_Success(t *testing.T) {
	gen := writeGenerator(t, `echo "generating for $1"`)
	ex := testExample(t, "example-a")
	scratch := t.TempDir()

	res, err := New(Config{Command: []string{gen}}).Run(context.Background(), ex, scratch)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "example-a", res.ExampleName)
	assert.Equal(t, filepath.Join(scratch, "example-a.log"), res.LogPath)

	log, err := ReadLog(res)
	require.NoError(t, err)
	assert.Equal(t, "generating for "+ex.Path+"\n", log)
}

func TestRun_FailureEmbedsNameAndLog(t *testing.T) {
	gen := writeGenerator(t, `echo "template not found" >&2; exit 1`)
	ex := testExample(t, "example-c")

	res, err := New(Config{Command: []string{gen}}).Run(context.Background(), ex, t.TempDir())
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, 1, res.ExitCode)

	raw, err := os.ReadFile(res.LogPath)
	require.NoError(t, err)

	msg, err := FailureMessage(res)
	require.NoError(t, err)
	assert.Contains(t, msg, "example-c")
	assert.Contains(t, msg, "template not found")
	assert.Contains(t, msg, string(raw))
}

func TestRun_CombinesStreamsInOrder(t *testing.T) {
	gen := writeGenerator(t, `echo one; echo two >&2; echo three`)
	ex := testExample(t, "example-order")

	res, err := New(Config{Command: []string{gen}}).Run(context.Background(), ex, t.TempDir())
	require.NoError(t, err)

	log, err := ReadLog(res)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", log)
}

func TestRun_ExamplePathIsLastArgument(t *testing.T) {
	gen := writeGenerator(t, `echo "$#:$1:$2"`)
	ex := testExample(t, "example-args")

	r := New(Config{Command: []string{gen, "--flag"}})
	assert.Equal(t, []string{gen, "--flag", ex.Path}, r.CommandLine(ex))

	res, err := r.Run(context.Background(), ex, t.TempDir())
	require.NoError(t, err)
	log, err := ReadLog(res)
	require.NoError(t, err)
	assert.Equal(t, "2:--flag:"+ex.Path+"\n", log)
}

func TestRun_WorkingDirDefaultsToScratch(t *testing.T) {
	gen := writeGenerator(t, `pwd`)
	ex := testExample(t, "example-cwd")
	scratch := t.TempDir()

	res, err := New(Config{Command: []string{gen}}).Run(context.Background(), ex, scratch)
	require.NoError(t, err)
	log, err := ReadLog(res)
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(scratch)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(strings.TrimSpace(log))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRun_ConfiguredDirAndEnv(t *testing.T) {
	gen := writeGenerator(t, `pwd; echo "mock=$EXGATE_RUNNER_MOCK"`)
	ex := testExample(t, "example-env")
	workDir := t.TempDir()

	r := New(Config{Command: []string{gen}, Dir: workDir, Env: []string{"EXGATE_RUNNER_MOCK=1"}})
	res, err := r.Run(context.Background(), ex, t.TempDir())
	require.NoError(t, err)

	log, err := ReadLog(res)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(log), "\n")
	require.Len(t, lines, 2)

	want, err := filepath.EvalSymlinks(workDir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(lines[0])
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "mock=1", lines[1])
}

func TestRun_DoesNotTouchExampleDir(t *testing.T) {
	gen := writeGenerator(t, `echo ok`)
	ex := testExample(t, "example-ro")

	_, err := New(Config{Command: []string{gen}}).Run(context.Background(), ex, t.TempDir())
	require.NoError(t, err)

	entries, err := os.ReadDir(ex.Path)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_LogCollisionIsError(t *testing.T) {
	gen := writeGenerator(t, `echo ok`)
	ex := testExample(t, "example-dup")
	scratch := t.TempDir()
	r := New(Config{Command: []string{gen}})

	_, err := r.Run(context.Background(), ex, scratch)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), ex, scratch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create log")
}

func TestRun_GeneratorNotFound(t *testing.T) {
	ex := testExample(t, "example-missing")
	missing := filepath.Join(t.TempDir(), "no-such-generator")

	_, err := New(Config{Command: []string{missing}}).Run(context.Background(), ex, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start")
}

func TestNew_DefaultCommand(t *testing.T) {
	r := New(Config{})
	assert.Equal(t, DefaultCommand, r.Config().Command)
}

func TestFormatFailure(t *testing.T) {
	msg := FormatFailure("spring-boot-web", 2, "boom\n")
	assert.True(t, strings.HasPrefix(msg, "✗ spring-boot-web failed (exit 2)\n"))
	assert.True(t, strings.HasSuffix(msg, "---- LOG ----\nboom\n"))
}
