package cmd

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gostage/pkg/output"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

// decodeRecords splits JSONL output into envelopes.
func decodeRecords(t *testing.T, out string) []output.Record {
	t.Helper()
	var recs []output.Record
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var rec output.Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec), sc.Text())
		recs = append(recs, rec)
	}
	require.NoError(t, sc.Err())
	return recs
}

func recordsOfType[T any](t *testing.T, recs []output.Record, typ string) []T {
	t.Helper()
	var out []T
	for _, rec := range recs {
		if rec.Type != typ {
			continue
		}
		var v T
		require.NoError(t, json.Unmarshal(rec.Data, &v))
		out = append(out, v)
	}
	return out
}

func TestList_RecursiveExcludeDirs(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.txt":     "aaa",
		"sub/b.txt": "bb",
		"sub/c.csv": "c",
	})

	out, err := runCLI(t, "list", "--log-level", "error", "-r", "--exclude-dirs", root+"/")
	require.NoError(t, err)

	recs := decodeRecords(t, out)
	for _, rec := range recs {
		assert.Equal(t, "file", rec.Provider)
		assert.NotEmpty(t, rec.JobID)
	}

	resources := recordsOfType[output.ResourceRecord](t, recs, output.TypeResource)
	var rels []string
	for _, r := range resources {
		assert.False(t, r.IsDirectory)
		rels = append(rels, r.RelativePath)
	}
	assert.ElementsMatch(t, []string{"a.txt", "sub/b.txt", "sub/c.csv"}, rels)

	sums := recordsOfType[output.SummaryRecord](t, recs, output.TypeSummary)
	require.Len(t, sums, 1)
	assert.Equal(t, "list", sums[0].Command)
	assert.Equal(t, int64(3), sums[0].Files)
	assert.Equal(t, int64(0), sums[0].Directories)
	assert.Equal(t, int64(6), sums[0].BytesTotal)
}

func TestList_NonRecursiveRelativeIsBareName(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.txt":     "a",
		"b.txt":     "b",
		"sub/c.txt": "c",
	})

	out, err := runCLI(t, "list", "--log-level", "error", root)
	require.NoError(t, err)

	resources := recordsOfType[output.ResourceRecord](t, decodeRecords(t, out), output.TypeResource)
	require.Len(t, resources, 3)
	for _, r := range resources {
		assert.Equal(t, r.Filename, strings.TrimSuffix(r.RelativePath, "/"))
	}
}

func TestList_Selection(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"keep.csv":         "1234",
		"small.csv":        "1",
		"skip.txt":         "1234",
		"nested/deep.csv":  "5678",
		".hidden/note.csv": "1234",
	})

	out, err := runCLI(t, "list", "--log-level", "error", "--format", "text",
		"-r", "--exclude-dirs", "--include", "**/*.csv", "--min-size", "2B", root)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.ElementsMatch(t, []string{
		"file://" + filepath.ToSlash(root) + "/keep.csv",
		"file://" + filepath.ToSlash(root) + "/nested/deep.csv",
	}, lines[:2])
	assert.True(t, strings.HasPrefix(lines[2], "list: 2 files, 0 directories, 8 bytes, 0 errors in "), lines[2])
}

func TestList_MissingLocation(t *testing.T) {
	root := t.TempDir()

	out, err := runCLI(t, "list", "--log-level", "error", filepath.Join(root, "absent"))
	require.Error(t, err)
	assert.Equal(t, foundry.ExitFileNotFound, exitCode(err))

	recs := decodeRecords(t, out)
	errs := recordsOfType[output.ErrorRecord](t, recs, output.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, output.ErrCodeNotFound, errs[0].Code)
	assert.Equal(t, "file://"+filepath.ToSlash(root)+"/absent", errs[0].URL)

	sums := recordsOfType[output.SummaryRecord](t, recs, output.TypeSummary)
	require.Len(t, sums, 1)
	assert.Equal(t, int64(1), sums[0].Errors)
}

func TestList_PlainFileIsNotADirectory(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.txt": "a"})

	out, err := runCLI(t, "list", "--log-level", "error", filepath.Join(root, "a.txt"))
	require.Error(t, err)
	assert.Equal(t, foundry.ExitInvalidArgument, exitCode(err))

	errs := recordsOfType[output.ErrorRecord](t, decodeRecords(t, out), output.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, output.ErrCodeNotDirectory, errs[0].Code)
}

func TestList_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"mixed endpoints", []string{"ftp://a/x", "ftp://b/x"}},
		{"bad include", []string{"--include", "[", "/tmp"}},
		{"bad size", []string{"--min-size", "lots", "/tmp"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, append([]string{"list", "--log-level", "error"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, foundry.ExitInvalidArgument, exitCode(err))
		})
	}
}
