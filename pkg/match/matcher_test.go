package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsToAll(t *testing.T) {
	m, err := New(Config{})
	require.NoError(t, err)

	assert.Equal(t, []string{"**"}, m.IncludePatterns())
	assert.Empty(t, m.ExcludePatterns())
	assert.True(t, m.Match("file1.txt"))
	assert.True(t, m.Match("dir/nested/file.txt"))
	assert.True(t, m.Match(".hidden"))
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New(Config{Includes: []string{"data/[unclosed"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	var pe *PatternError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "data/[unclosed", pe.Pattern)
	assert.Contains(t, err.Error(), "pattern data/[unclosed")

	_, err = New(Config{Excludes: []string{"{a,b"}})
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		rel      string
		expected bool
	}{
		{"include extension", Config{Includes: []string{"**/*.txt"}}, "study/meta_study.txt", true},
		{"include extension at root", Config{Includes: []string{"**/*.txt"}}, "file1.txt", true},
		{"include miss", Config{Includes: []string{"**/*.txt"}}, "study/data.csv", false},
		{"exclude wins", Config{Includes: []string{"**"}, Excludes: []string{"tmp/**"}}, "tmp/a.txt", false},
		{"exclude does not touch siblings", Config{Excludes: []string{"tmp/**"}}, "data/a.txt", true},
		{"hidden excluded", Config{ExcludeHidden: true}, "dir/.file1.txt.partial", false},
		{"hidden allowed", Config{}, "dir/.file1.txt.partial", true},
		{"trailing separator ignored", Config{Includes: []string{"study"}}, "study/", true},
		{"windows separators", Config{Includes: []string{`study\meta.txt`}}, "study/meta.txt", true},
		{"escaped meta literal", Config{Includes: []string{`data/file\*.txt`}}, "data/file*.txt", true},
		{"escaped meta not a wildcard", Config{Includes: []string{`data/file\*.txt`}}, "data/file1.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, m.Match(tt.rel))
		})
	}
}

func TestMatcher_PatternsAreCopies(t *testing.T) {
	m, err := New(Config{Includes: []string{"a/**"}, Excludes: []string{"b/**"}})
	require.NoError(t, err)

	inc := m.IncludePatterns()
	inc[0] = "mutated"
	exc := m.ExcludePatterns()
	exc[0] = "mutated"

	assert.Equal(t, []string{"a/**"}, m.IncludePatterns())
	assert.Equal(t, []string{"b/**"}, m.ExcludePatterns())
}
