package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetPath(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		value any
		check string
		want  any
	}{
		{"top level", "title", "Roadmap", "title", "Roadmap"},
		{"nested maps", "meta.owner.name", "ada", "meta.owner.name", "ada"},
		{"slice element", "blocks.2.text", "hello", "blocks.2.text", "hello"},
		{"numeric key stays under map root", "42", true, "42", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := StateDoc{}
			require.NoError(t, doc.SetPath(tt.path, tt.value))
			got, ok := doc.GetPath(tt.check)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetPathEmpty(t *testing.T) {
	doc := StateDoc{}
	assert.ErrorIs(t, doc.SetPath("", 1), ErrEmptyPath)
}

func TestSetPathOverwritesSameKey(t *testing.T) {
	doc := StateDoc{}
	require.NoError(t, doc.SetPath("title", "first"))
	require.NoError(t, doc.SetPath("title", "second"))
	got, _ := doc.GetPath("title")
	assert.Equal(t, "second", got)
}

func TestSetPathDisjointKeysBothSurvive(t *testing.T) {
	doc := StateDoc{}
	require.NoError(t, doc.SetPath("a.x", 1))
	require.NoError(t, doc.SetPath("b.y", 2))

	x, ok := doc.GetPath("a.x")
	require.True(t, ok)
	assert.Equal(t, 1, x)
	y, ok := doc.GetPath("b.y")
	require.True(t, ok)
	assert.Equal(t, 2, y)
}

func TestSetPathReplacesScalarIntermediate(t *testing.T) {
	doc := StateDoc{"meta": "just a string"}
	require.NoError(t, doc.SetPath("meta.owner", "ada"))
	got, ok := doc.GetPath("meta.owner")
	require.True(t, ok)
	assert.Equal(t, "ada", got)
}

func TestSetPathGrowsSlice(t *testing.T) {
	doc := StateDoc{}
	require.NoError(t, doc.SetPath("items.0", "a"))
	require.NoError(t, doc.SetPath("items.3", "d"))

	first, ok := doc.GetPath("items.0")
	require.True(t, ok)
	assert.Equal(t, "a", first)
	last, ok := doc.GetPath("items.3")
	require.True(t, ok)
	assert.Equal(t, "d", last)
	_, ok = doc.GetPath("items.4")
	assert.False(t, ok)
}

func TestGetPathMissing(t *testing.T) {
	doc := StateDoc{"a": map[string]any{"b": 1}}

	_, ok := doc.GetPath("a.z")
	assert.False(t, ok)
	_, ok = doc.GetPath("a.b.c")
	assert.False(t, ok)
	_, ok = doc.GetPath("")
	assert.False(t, ok)
}

func TestCloneIndependence(t *testing.T) {
	doc := StateDoc{}
	require.NoError(t, doc.SetPath("meta.owner", "ada"))
	require.NoError(t, doc.SetPath("blocks.0", "intro"))

	clone := doc.Clone()
	require.NoError(t, clone.SetPath("meta.owner", "lin"))
	require.NoError(t, clone.SetPath("blocks.0", "changed"))

	owner, _ := doc.GetPath("meta.owner")
	assert.Equal(t, "ada", owner)
	block, _ := doc.GetPath("blocks.0")
	assert.Equal(t, "intro", block)
}
