package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoint_RemotePath(t *testing.T) {
	ep := NewEndpoint("FTP", "Host")

	t.Run("matching host", func(t *testing.T) {
		p, err := ep.RemotePath(MustParse("ftp://host/root_dir/file1.txt"))
		require.NoError(t, err)
		assert.Equal(t, "/root_dir/file1.txt", p)
	})

	t.Run("different host", func(t *testing.T) {
		_, err := ep.RemotePath(MustParse("ftp://other/root_dir/file1.txt"))
		require.Error(t, err)

		var hostErr *InvalidHostError
		require.ErrorAs(t, err, &hostErr)
		assert.Equal(t, "host", hostErr.Expected)
		assert.Equal(t, "other", hostErr.Got)
		assert.True(t, IsInvalidHost(err))
		assert.False(t, IsWrongScheme(err))
	})

	t.Run("wrong scheme", func(t *testing.T) {
		_, err := ep.RemotePath(MustParse("file:///root_dir/file1.txt"))
		require.Error(t, err)

		var schemeErr *WrongSchemeError
		require.ErrorAs(t, err, &schemeErr)
		assert.Equal(t, "ftp", schemeErr.Expected)
		assert.Equal(t, "file", schemeErr.Got)
		assert.True(t, IsWrongScheme(err))
	})

	t.Run("scheme checked before host", func(t *testing.T) {
		_, err := ep.RemotePath(MustParse("sftp://other/x"))
		assert.True(t, IsWrongScheme(err))
	})
}

func TestEndpoint_BuildRemoteURL(t *testing.T) {
	ep := NewEndpoint(SchemeFTP, "host")

	tests := []struct {
		dir      string
		filename string
		want     string
	}{
		{"/root_dir/", "file1.txt", "ftp://host/root_dir/file1.txt"},
		{"/root_dir", "file1.txt", "ftp://host/root_dir/file1.txt"},
		{"//root_dir//", "/dir", "ftp://host/root_dir/dir"},
		{"/", "top.txt", "ftp://host/top.txt"},
		{"", "top.txt", "ftp://host/top.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.dir+"+"+tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, ep.BuildRemoteURL(tt.dir, tt.filename))
		})
	}
}

func TestEndpoint_String(t *testing.T) {
	assert.Equal(t, "s3://bucket", NewEndpoint("S3", "bucket").String())
	assert.Equal(t, "file://", FileEndpoint.String())
}

func TestRelativePath(t *testing.T) {
	tests := []struct {
		name string
		root string
		item string
		want string
	}{
		{"file directly under root", "file:/scandir/", "file:///scandir/file1.txt", "file1.txt"},
		{"nested file", "file:///scandir", "/scandir/dir/nested.txt", "dir/nested.txt"},
		{"object-store directory", "s3://bucket/scan.location/", "s3://bucket/scan.location/study/", "study"},
		{"object-store key", "s3://bucket/scan.location", "s3://bucket/scan.location/study/meta_study.txt", "study/meta_study.txt"},
		{"root itself", "ftp://host/test", "ftp://host/test", ""},
		{"item outside root", "ftp://host/test", "ftp://host/root_dir/file1.txt", "/root_dir/file1.txt"},
		{"shared name prefix is not containment", "file:///data", "file:///database/x", "/database/x"},
		{"different host", "ftp://a/test", "ftp://b/test/x", "/test/x"},
		{"root slash", "ftp://host/", "ftp://host/a/b", "a/b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RelativePath(MustParse(tt.root), MustParse(tt.item))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBareName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"scan.location/study/meta_study.txt", "meta_study.txt"},
		{"meta_study.txt", "meta_study.txt"},
		{"/meta_study.txt", "meta_study.txt"},
		{"scan.location/study/", "study"},
		{"", ""},
		{"/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, BareName(tt.input))
		})
	}
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "/a/b/c", JoinPath("/a/", "/b", "c"))
	assert.Equal(t, "a/b/", JoinPath("a", "", "b/"))
	assert.Equal(t, "", JoinPath())
}
