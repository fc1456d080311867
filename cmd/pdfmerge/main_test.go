package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfmerge/config"
	"github.com/wudi/pdfmerge/internal/testpdf"
	"github.com/wudi/pdfmerge/merge"
	"github.com/wudi/pdfmerge/observability"
	"github.com/wudi/pdfmerge/session"
)

func writePDF(t *testing.T, dir, name, prefix string, pages int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, testpdf.New(prefix, pages), 0o644))
	return path
}

func TestParseFlagsOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pdfmerge.yml"),
		[]byte("failurePolicy: skip\ncompress: true\noutput: from-file.pdf\n"), 0o644))

	opts, err := parseFlags([]string{"-config", dir, "-compress=false", "-o", "flag.pdf", "a.pdf", "b.pdf"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, opts.inputs)
	assert.False(t, opts.cfg.Compress)
	assert.Equal(t, "flag.pdf", opts.cfg.Output)
	assert.Equal(t, merge.SkipFailed, opts.cfg.Policy())

	opts, err = parseFlags([]string{"-config", filepath.Join(dir, "pdfmerge.yml"), "-skip-failed=false", "a.pdf", "b.pdf"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, merge.StopOnFirstFailure, opts.cfg.Policy())
	assert.True(t, opts.cfg.Compress)
}

func TestParseFlagsUsage(t *testing.T) {
	dir := t.TempDir()
	var stderr bytes.Buffer
	_, err := parseFlags([]string{"-config", dir, "only.pdf"}, &stderr)
	assert.Error(t, err)
	assert.Contains(t, stderr.String(), "Usage: pdfmerge")

	// Interactive runs may start empty.
	opts, err := parseFlags([]string{"-config", dir, "-inbox", dir}, io.Discard)
	require.NoError(t, err)
	assert.True(t, opts.interactive())

	_, err = parseFlags([]string{"-config", filepath.Join(dir, "missing.yml"), "a.pdf", "b.pdf"}, io.Discard)
	assert.Error(t, err)
}

func TestRunBatchMerge(t *testing.T) {
	dir := t.TempDir()
	a := writePDF(t, dir, "a.pdf", "A", 2)
	b := writePDF(t, dir, "b.pdf", "B", 1)
	out := filepath.Join(dir, "out", "merged.pdf")

	var stdout, stderr bytes.Buffer
	opts := options{inputs: []string{b, a}, cfg: config.Config{Output: out, Verify: true}}
	require.NoError(t, run(context.Background(), opts, strings.NewReader(""), &stdout, &stderr))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	markers, err := testpdf.PageMarkers(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, []string{"B-P1", "A-P1", "A-P2"}, markers)
	assert.Contains(t, stdout.String(), "Processing b.pdf (1/2)...")
	assert.Contains(t, stdout.String(), "Total pages: 3")
}

func TestRunBatchRejectsNonPDF(t *testing.T) {
	dir := t.TempDir()
	a := writePDF(t, dir, "a.pdf", "A", 1)
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("plain text"), 0o644))

	var stdout bytes.Buffer
	opts := options{inputs: []string{a, txt}, cfg: config.Config{Output: filepath.Join(dir, "m.pdf")}}
	err := run(context.Background(), opts, strings.NewReader(""), &stdout, io.Discard)
	require.Error(t, err)
	assert.True(t, session.IsUserError(err))
	assert.Contains(t, stdout.String(), `"notes.txt" is not a valid PDF file and was skipped.`)
	assert.NoFileExists(t, filepath.Join(dir, "m.pdf"))
}

func TestRunBatchMissingInput(t *testing.T) {
	opts := options{inputs: []string{"nope-1.pdf", "nope-2.pdf"}}
	err := run(context.Background(), opts, strings.NewReader(""), io.Discard, io.Discard)
	assert.ErrorIs(t, err, errUsage)
}

func TestShellDrivesSession(t *testing.T) {
	dir := t.TempDir()
	a := writePDF(t, dir, "a.pdf", "A", 1)
	b := writePDF(t, dir, "b.pdf", "B", 1)
	c := writePDF(t, dir, "c.pdf", "C", 1)

	var out bytes.Buffer
	pres := newPresenter(&out, nil)
	sess := newSession(config.Config{}, observability.NopLogger{}, pres)
	candidates, err := fileCandidates([]string{a, b, c})
	require.NoError(t, err)
	require.Equal(t, 3, sess.AddFiles(context.Background(), candidates...))

	shell := &commandShell{sess: sess, pres: pres, out: &out}
	target := filepath.Join(dir, "merged.pdf")
	script := strings.Join([]string{
		"save",
		"down 1",
		"rm 3",
		"rm 9",
		"bogus",
		"merge",
		"save " + target,
		"preview",
		"quit",
		"list",
	}, "\n")
	require.NoError(t, shell.loop(context.Background(), strings.NewReader(script)))

	text := out.String()
	assert.Contains(t, text, "No merged PDF available. Please merge PDFs first.")
	assert.Contains(t, text, "No file 9.")
	assert.Contains(t, text, `Unknown command "bogus"`)
	assert.Contains(t, text, "Saved "+target)
	assert.Contains(t, text, "Start with -preview")

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	markers, err := testpdf.PageMarkers(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, []string{"B-P1", "A-P1"}, markers)
	assert.Equal(t, 2, sess.Files().Count(), "commands after quit are not run")
}

func TestShellClearDropsArtifact(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	pres := newPresenter(&out, nil)
	sess := newSession(config.Config{}, observability.NopLogger{}, pres)
	candidates, err := fileCandidates([]string{
		writePDF(t, dir, "a.pdf", "A", 1),
		writePDF(t, dir, "b.pdf", "B", 1),
	})
	require.NoError(t, err)
	sess.AddFiles(context.Background(), candidates...)

	shell := &commandShell{sess: sess, pres: pres, out: &out}
	require.NoError(t, shell.loop(context.Background(), strings.NewReader("merge\nclear\nmerge\n")))
	assert.Nil(t, sess.Artifacts().Current())
	assert.Contains(t, out.String(), "Please select at least 2 PDF files to merge.")
}

func TestRunInteractiveWithPreview(t *testing.T) {
	dir := t.TempDir()
	opts := options{
		inputs: []string{writePDF(t, dir, "a.pdf", "A", 1), writePDF(t, dir, "b.pdf", "B", 1)},
		cfg:    config.Config{Preview: config.Preview{Listen: "127.0.0.1:0"}, PreviewTTL: time.Minute},
	}
	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), opts, strings.NewReader("merge\npreview\nquit\n"), &stdout, io.Discard))
	assert.Contains(t, stdout.String(), "Preview server at http://127.0.0.1:")
	assert.Regexp(t, `http://127\.0\.0\.1:\d+/artifacts/[0-9a-f-]{36}`, stdout.String())
}
