package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gostage/pkg/output"
	"github.com/3leaps/gostage/pkg/provider"
	"github.com/3leaps/gostage/pkg/provider/factory"
	"github.com/3leaps/gostage/pkg/resource"
)

// fakeProvider serves a fixed listing and records copies.
type fakeProvider struct {
	typ    provider.Type
	items  []resource.Resource
	failOn string
	copied []string
	closed bool
}

func (p *fakeProvider) List(context.Context, resource.Resource, provider.ListOptions) ([]resource.Resource, error) {
	return p.items, nil
}

func (p *fakeProvider) CopyFromRemote(_ context.Context, dir, remote resource.Resource) (resource.Resource, error) {
	if remote.Filename() == p.failOn {
		return resource.Resource{}, resource.NewCollectionError("CopyFromRemote", remote, resource.ErrNotFound)
	}
	p.copied = append(p.copied, remote.URL())
	return dir.Join(remote.Filename()), nil
}

func (p *fakeProvider) CopyToRemote(_ context.Context, dir, local resource.Resource) (resource.Resource, error) {
	p.copied = append(p.copied, local.URL())
	return dir.Join(local.Filename()), nil
}

func (p *fakeProvider) GetResource(raw string) (resource.Resource, error) { return resource.Parse(raw) }
func (p *fakeProvider) Type() provider.Type                               { return p.typ }

func (p *fakeProvider) Close() error {
	p.closed = true
	return nil
}

func useFakeProvider(t *testing.T, fp *fakeProvider) *factory.Config {
	t.Helper()
	var got factory.Config
	orig := newProvider
	newProvider = func(_ context.Context, cfg factory.Config) (provider.ResourceProvider, error) {
		got = cfg
		return fp, nil
	}
	t.Cleanup(func() { newProvider = orig })
	return &got
}

func TestPull_FileBackend(t *testing.T) {
	src := t.TempDir()
	work := t.TempDir()
	writeFiles(t, src, map[string]string{
		"a.txt":     "alpha",
		"b.txt":     "beta",
		"sub/c.txt": "gamma",
	})
	writeFiles(t, work, map[string]string{"a.txt": "stale content that is longer"})

	out, err := runCLI(t, "pull", "--log-level", "error", src+"/", "--dest", work)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(work, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
	data, err = os.ReadFile(filepath.Join(work, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(data))
	_, err = os.Stat(filepath.Join(work, "c.txt"))
	assert.True(t, os.IsNotExist(err), "non-recursive pull must not descend")

	recs := decodeRecords(t, out)
	copies := recordsOfType[output.CopyRecord](t, recs, output.TypeCopy)
	require.Len(t, copies, 2)
	for _, c := range copies {
		assert.Equal(t, output.DirectionPull, c.Direction)
		require.NotNil(t, c.Bytes)
	}
	sums := recordsOfType[output.SummaryRecord](t, recs, output.TypeSummary)
	require.Len(t, sums, 1)
	assert.Equal(t, int64(2), sums[0].Files)
	assert.Equal(t, int64(9), sums[0].BytesTotal)
}

func TestPull_RecursiveWithInclude(t *testing.T) {
	src := t.TempDir()
	work := t.TempDir()
	writeFiles(t, src, map[string]string{
		"a.txt":        "a",
		"skip.csv":     "s",
		"deep/x/c.txt": "c",
	})

	_, err := runCLI(t, "pull", "--log-level", "error", "-r", "--include", "**/*.txt", src+"/", "--dest", work)
	require.NoError(t, err)

	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"a.txt", "c.txt"}, names)
}

func TestPull_RemotePartialFailure(t *testing.T) {
	fp := &fakeProvider{
		typ: provider.TypeFTP,
		items: []resource.Resource{
			resource.MustParse("ftp://ftp.example.org/in/a.txt"),
			resource.MustParse("ftp://ftp.example.org/in/gone.txt"),
			resource.MustParse("ftp://ftp.example.org/in/b.txt"),
		},
		failOn: "gone.txt",
	}
	got := useFakeProvider(t, fp)
	work := t.TempDir()

	out, err := runCLI(t, "pull", "--log-level", "error", "ftp://ftp.example.org/in/", "--dest", work)
	require.Error(t, err)
	assert.Equal(t, foundry.ExitFileWriteError, exitCode(err))

	assert.Equal(t, provider.TypeFTP, got.Type)
	assert.Equal(t, "ftp.example.org", got.FTP.Host)
	assert.Equal(t, 64, got.MaxDepth)
	assert.True(t, fp.closed)
	assert.Equal(t, []string{"ftp://ftp.example.org/in/a.txt", "ftp://ftp.example.org/in/b.txt"}, fp.copied)

	recs := decodeRecords(t, out)
	for _, rec := range recs {
		assert.Equal(t, "ftp", rec.Provider)
	}
	errs := recordsOfType[output.ErrorRecord](t, recs, output.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, output.ErrCodeNotFound, errs[0].Code)
	assert.Equal(t, "ftp://ftp.example.org/in/gone.txt", errs[0].URL)

	copies := recordsOfType[output.CopyRecord](t, recs, output.TypeCopy)
	require.Len(t, copies, 2)
	assert.Equal(t, "file://"+filepath.ToSlash(work)+"/a.txt", copies[0].Destination)
}

func TestPull_SingleFile(t *testing.T) {
	fp := &fakeProvider{typ: provider.TypeS3}
	got := useFakeProvider(t, fp)
	work := t.TempDir()

	_, err := runCLI(t, "pull", "--log-level", "error", "s3://staging/study/meta_study.txt", "--dest", work)
	require.NoError(t, err)
	assert.Equal(t, "staging", got.S3.Bucket)
	assert.Equal(t, []string{"s3://staging/study/meta_study.txt"}, fp.copied)
}

func TestPull_RemoteDestinationRejected(t *testing.T) {
	_, err := runCLI(t, "pull", "--log-level", "error", "ftp://ftp.example.org/in/a.txt", "--dest", "ftp://ftp.example.org/out/")
	require.Error(t, err)
	assert.Equal(t, foundry.ExitInvalidArgument, exitCode(err))
	assert.True(t, resource.IsWrongScheme(err))
}

func TestPush_GlobToFileBackend(t *testing.T) {
	local := t.TempDir()
	pub := t.TempDir()
	writeFiles(t, local, map[string]string{
		"one.csv":    "1",
		"two.csv":    "22",
		"notes.txt":  "n",
		"nested/x.y": "x",
	})

	out, err := runCLI(t, "push", "--log-level", "error", "--format", "text", local+"/*.csv", "--dest", pub+"/")
	require.NoError(t, err)

	for name, want := range map[string]string{"one.csv": "1", "two.csv": "22"} {
		data, err := os.ReadFile(filepath.Join(pub, name))
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
	_, err = os.Stat(filepath.Join(pub, "notes.txt"))
	assert.True(t, os.IsNotExist(err))
	assert.Contains(t, out, "push: 2 files, 0 directories, 3 bytes, 0 errors in ")
}

func TestPush_RemoteDestination(t *testing.T) {
	fp := &fakeProvider{typ: provider.TypeSFTP}
	got := useFakeProvider(t, fp)
	local := t.TempDir()
	writeFiles(t, local, map[string]string{"report.csv": "r"})

	_, err := runCLI(t, "push", "--log-level", "error", filepath.Join(local, "report.csv"), "--dest", "sftp://sftp.example.org/incoming/")
	require.NoError(t, err)
	assert.Equal(t, "sftp.example.org", got.SFTP.Host)
	assert.Equal(t, []string{"file://" + filepath.ToSlash(local) + "/report.csv"}, fp.copied)
}

func TestPush_NoMatches(t *testing.T) {
	local := t.TempDir()
	_, err := runCLI(t, "push", "--log-level", "error", local+"/*.csv", "--dest", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, foundry.ExitInvalidArgument, exitCode(err))
}
