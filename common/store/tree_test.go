package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPath(t *testing.T) {
	valid := map[string][]string{
		"/":        nil,
		"/a":       {"a"},
		"/a/b c/d": {"a", "b c", "d"},
		"/%20":     {"%20"},
	}
	for path, want := range valid {
		names, err := splitPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, names, path)
		assert.True(t, ValidPath(path), path)
	}

	for _, path := range []string{"", "a", "a/b", "/a/", "//", "/a//b"} {
		_, err := splitPath(path)
		assert.ErrorIs(t, err, ErrInvalidPath, path)
		assert.False(t, ValidPath(path), path)
	}

	assert.Equal(t, "/a", JoinPath(RootPath, "a"))
	assert.Equal(t, "/a/b", JoinPath("/a", "b"))
}

func TestTreePutCreatesAncestors(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Put("/a/b/c", "k", Entry{Value: []byte("v")}))

	for _, path := range []string{"/", "/a", "/a/b", "/a/b/c"} {
		assert.True(t, tree.NodeExists(path), path)
	}

	children, ok := tree.Children("/a")
	require.True(t, ok)
	assert.Equal(t, []string{"b"}, children)

	e, ok := tree.Get("/a/b/c", "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), e.Value)

	assert.Error(t, tree.Put("a", "k", Entry{}))
}

func TestTreeLookupsDoNotCreate(t *testing.T) {
	tree := NewTree()

	_, ok := tree.Get("/missing/node", "k")
	assert.False(t, ok)
	_, ok = tree.Keys("/missing")
	assert.False(t, ok)
	_, ok = tree.Children("/missing")
	assert.False(t, ok)
	assert.False(t, tree.Remove("/missing", "k"))
	assert.False(t, tree.RemoveNode("/missing"))

	assert.False(t, tree.NodeExists("/missing"))
	assert.Equal(t, 1, tree.NodeCount())
}

func TestTreeGetReturnsCopy(t *testing.T) {
	tree := NewTree()
	value := []byte("value")
	require.NoError(t, tree.Put("/a", "k", Entry{Value: value}))
	value[0] = 'X'

	e, _ := tree.Get("/a", "k")
	assert.Equal(t, []byte("value"), e.Value)
	e.Value[0] = 'Y'

	e, _ = tree.Get("/a", "k")
	assert.Equal(t, []byte("value"), e.Value)
}

func TestTreeRemove(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Put("/a", "k1", Entry{Value: []byte("1")}))
	require.NoError(t, tree.Put("/a", "k2", Entry{Value: []byte("2")}))

	assert.True(t, tree.Remove("/a", "k1"))
	assert.False(t, tree.Remove("/a", "k1"))

	keys, ok := tree.Keys("/a")
	require.True(t, ok)
	assert.Equal(t, []string{"k2"}, keys)
	assert.True(t, tree.NodeExists("/a"), "removing the last key must not remove the node")
}

func TestTreeRemoveNode(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Put("/a/b", "k", Entry{Value: []byte("v")}))
	require.NoError(t, tree.Put("/a/c", "k", Entry{Value: []byte("v")}))
	require.NoError(t, tree.Put("/d", "k", Entry{Value: []byte("v")}))

	assert.True(t, tree.RemoveNode("/a"))
	assert.False(t, tree.NodeExists("/a"))
	assert.False(t, tree.NodeExists("/a/b"))
	assert.True(t, tree.NodeExists("/d"))

	assert.True(t, tree.RemoveNode(RootPath))
	assert.True(t, tree.NodeExists(RootPath))
	assert.Equal(t, 1, tree.NodeCount())
}

func TestTreeWalkOrder(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Put("/b", "y", Entry{}))
	require.NoError(t, tree.Put("/b", "x", Entry{}))
	require.NoError(t, tree.Put("/a/z", "k", Entry{}))
	_, err := tree.CreateNode("/a/y")
	require.NoError(t, err)

	var paths []string
	tree.Walk(func(path string, keys []string) {
		paths = append(paths, path)
		if path == "/b" {
			assert.Equal(t, []string{"x", "y"}, keys)
		}
	})
	assert.Equal(t, []string{"/", "/a", "/a/y", "/a/z", "/b"}, paths)
}

func TestTreeCloneAndEqual(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Put("/a", "k", Entry{Value: []byte("v"), Encrypted: true, Provider: "p"}))
	_, err := tree.CreateNode("/empty")
	require.NoError(t, err)

	clone := tree.Clone()
	assert.True(t, tree.Equal(clone))

	require.NoError(t, clone.Put("/a", "k", Entry{Value: []byte("v"), Encrypted: true, Provider: "q"}))
	assert.False(t, tree.Equal(clone))

	clone = tree.Clone()
	clone.RemoveNode("/empty")
	assert.False(t, tree.Equal(clone))
}
