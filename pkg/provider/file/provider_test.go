package file

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gostage/pkg/provider"
	"github.com/3leaps/gostage/pkg/resource"
	"github.com/3leaps/gostage/pkg/resourceutil"
)

func newTestProvider(t *testing.T, files map[string]string) (*Provider, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fsys, name, []byte(content), 0o644))
	}
	p, err := New(resourceutil.New(resourceutil.WithFs(fsys)))
	require.NoError(t, err)
	return p, fsys
}

func urlsOf(rs []resource.Resource) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.URL()
	}
	return out
}

func TestNew_RequiresUtils(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestList_Scenario(t *testing.T) {
	p, fsys := newTestProvider(t, map[string]string{
		"/scandir/file1.txt":      "one",
		"/scandir/dir/nested.txt": "nested",
	})
	require.NoError(t, fsys.MkdirAll("/scandir/dir", 0o755))
	scan := resource.MustParse("file:/scandir/")
	ctx := context.Background()

	got, err := p.List(ctx, scan, provider.ListOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"file:///scandir/file1.txt", "file:///scandir/dir"}, urlsOf(got))
	for _, r := range got {
		assert.Equal(t, r.Filename(), resource.RelativePath(scan, r))
		assert.Equal(t, r.Filename() == "dir", r.IsDirectory())
	}

	got, err = p.List(ctx, scan, provider.ListOptions{ExcludeDirectories: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"file:///scandir/file1.txt"}, urlsOf(got))
}

func TestList_RecursiveExcludeDirectories(t *testing.T) {
	p, _ := newTestProvider(t, map[string]string{
		"/in/a.txt":             "a",
		"/in/sub/b.txt":         "b",
		"/in/sub/deeper/c.csv":  "c",
		"/in/sub/deeper/d.json": "d",
	})
	scan := resource.MustParse("/in")

	got, err := p.List(context.Background(), scan, provider.ListOptions{Recursive: true, ExcludeDirectories: true})
	require.NoError(t, err)

	rels := make([]string, 0, len(got))
	for _, r := range got {
		assert.False(t, r.IsDirectory())
		rels = append(rels, resource.RelativePath(scan, r))
	}
	assert.ElementsMatch(t, []string{"a.txt", "sub/b.txt", "sub/deeper/c.csv", "sub/deeper/d.json"}, rels)

	got, err = p.List(context.Background(), scan, provider.ListOptions{Recursive: true})
	require.NoError(t, err)
	assert.Len(t, got, 6, "4 files + 2 directories, root excluded")
}

func TestList_GlobCharactersInRoot(t *testing.T) {
	p, _ := newTestProvider(t, map[string]string{
		"/data/[raw]/a.csv": "a",
		"/data/r/b.csv":     "b",
	})

	got, err := p.List(context.Background(), resource.MustParse("/data/[raw]"), provider.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"file:///data/[raw]/a.csv"}, urlsOf(got))
}

func TestList_Preconditions(t *testing.T) {
	p, _ := newTestProvider(t, map[string]string{"/in/a.txt": "a"})
	ctx := context.Background()

	_, err := p.List(ctx, resource.MustParse("/nowhere"), provider.ListOptions{})
	assert.ErrorIs(t, err, resource.ErrScanLocationNotFound)
	assert.True(t, resource.IsCollection(err))

	_, err = p.List(ctx, resource.MustParse("/in/a.txt"), provider.ListOptions{})
	assert.ErrorIs(t, err, resource.ErrNotDirectory)

	_, err = p.List(ctx, resource.MustParse("ftp://host/in"), provider.ListOptions{})
	assert.True(t, resource.IsWrongScheme(err))
}

func TestCopy_RoundTripAndOverwrite(t *testing.T) {
	p, fsys := newTestProvider(t, map[string]string{"/src/report.txt": "a long first version"})
	ctx := context.Background()
	dest := resource.MustParse("/dest/run")

	items, err := p.List(ctx, resource.MustParse("/src"), provider.ListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 1)

	copied, err := p.CopyFromRemote(ctx, dest, items[0])
	require.NoError(t, err)
	assert.Equal(t, "file:///dest/run/report.txt", copied.URL())

	listed, err := p.List(ctx, dest, provider.ListOptions{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, items[0].Filename(), listed[0].Filename())

	require.NoError(t, afero.WriteFile(fsys, "/src/report.txt", []byte("v2"), 0o644))
	_, err = p.CopyToRemote(ctx, dest, items[0])
	require.NoError(t, err)

	data, err := afero.ReadFile(fsys, "/dest/run/report.txt")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestCopy_Errors(t *testing.T) {
	p, fsys := newTestProvider(t, map[string]string{"/src/a.txt": "a"})
	require.NoError(t, fsys.MkdirAll("/src/dir", 0o755))
	ctx := context.Background()

	_, err := p.CopyFromRemote(ctx, resource.MustParse("/dest"), resource.MustParse("s3://bucket/a.txt"))
	assert.True(t, resource.IsWrongScheme(err))

	_, err = p.CopyToRemote(ctx, resource.MustParse("ftp://host/dest"), resource.MustParse("/src/a.txt"))
	assert.True(t, resource.IsWrongScheme(err))

	dir := resource.New(resource.SchemeFile, "", "/src/dir", resource.WithDirectory(true))
	_, err = p.CopyFromRemote(ctx, resource.MustParse("/dest"), dir)
	assert.ErrorIs(t, err, resourceutil.ErrIsDirectory)

	_, err = p.CopyFromRemote(ctx, resource.MustParse("/dest"), resource.MustParse("/src/missing.txt"))
	assert.True(t, resource.IsNotFound(err))
}

func TestGetResource(t *testing.T) {
	p, _ := newTestProvider(t, nil)

	r, err := p.GetResource("file:///a//b.txt")
	require.NoError(t, err)
	assert.Equal(t, "file:///a/b.txt", r.URL())

	_, err = p.GetResource("ftp://host/a")
	assert.True(t, resource.IsWrongScheme(err))

	assert.Equal(t, provider.TypeFile, p.Type())
	assert.NoError(t, p.Close())
}

func TestList_KeepsUserPartialFiles(t *testing.T) {
	p, _ := newTestProvider(t, map[string]string{
		"/scan/.upload.partial": "user",
		"/scan/a.txt":           "a",
	})
	scan := resource.MustParse("file:///scan")

	got, err := p.List(context.Background(), scan, provider.ListOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"file:///scan/.upload.partial", "file:///scan/a.txt"}, urlsOf(got))
}
