package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTree(t *testing.T, s string) any {
	t.Helper()
	v, err := decodeTree([]byte(s))
	require.NoError(t, err)
	return v
}

func render(t *testing.T, node any) string {
	t.Helper()
	raw, err := encodeTree(node)
	require.NoError(t, err)
	return string(raw)
}

func TestSplitPath(t *testing.T) {
	root, segs, err := splitPath("/party/attendees/0/")
	require.NoError(t, err)
	assert.Equal(t, "party", root)
	assert.Equal(t, []string{"attendees", "0"}, segs)

	_, _, err = splitPath("")
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, _, err = splitPath("a//b")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestNormalizePrunesEmptyNodes(t *testing.T) {
	tree := mustTree(t, `{"name":"x","queue":[],"meta":{"a":null},"list":[1,null]}`)
	assert.Equal(t, `{"list":[1],"name":"x"}`, render(t, tree))
	assert.Nil(t, mustTree(t, `{}`))
}

func TestSetAt(t *testing.T) {
	t.Run("nested write creates parents", func(t *testing.T) {
		tree := setAt(nil, []string{"a", "b"}, "v")
		assert.Equal(t, `{"a":{"b":"v"}}`, render(t, tree))
	})

	t.Run("array append and replace", func(t *testing.T) {
		tree := mustTree(t, `{"l":["x","y"]}`)
		tree = setAt(tree, []string{"l", "2"}, "z")
		tree = setAt(tree, []string{"l", "0"}, "w")
		assert.Equal(t, `{"l":["w","y","z"]}`, render(t, tree))
	})

	t.Run("removing the last element shrinks the array", func(t *testing.T) {
		tree := mustTree(t, `{"l":["x","y"],"n":1}`)
		tree = setAt(tree, []string{"l", "1"}, nil)
		assert.Equal(t, `{"l":["x"],"n":1}`, render(t, tree))
	})

	t.Run("removing from the middle converts to an object", func(t *testing.T) {
		tree := mustTree(t, `{"l":["x","y","z"]}`)
		tree = setAt(tree, []string{"l", "1"}, nil)
		assert.Equal(t, `{"l":{"0":"x","2":"z"}}`, render(t, tree))
	})

	t.Run("removing the only child removes the parent", func(t *testing.T) {
		tree := mustTree(t, `{"a":{"b":1},"c":2}`)
		tree = setAt(tree, []string{"a", "b"}, nil)
		assert.Equal(t, `{"c":2}`, render(t, tree))
	})

	t.Run("removing below a scalar is a no-op", func(t *testing.T) {
		tree := mustTree(t, `{"a":1}`)
		tree = setAt(tree, []string{"a", "b"}, nil)
		assert.Equal(t, `{"a":1}`, render(t, tree))
	})
}

func TestGetAt(t *testing.T) {
	tree := mustTree(t, `{"attendees":[{"name":"h"},{"name":"a"}]}`)
	assert.Equal(t, `{"name":"a"}`, render(t, getAt(tree, []string{"attendees", "1"})))
	assert.Nil(t, getAt(tree, []string{"attendees", "2"}))
	assert.Nil(t, getAt(tree, []string{"attendees", "x"}))
	assert.Nil(t, getAt(tree, []string{"name", "deeper"}))
}

func TestChildOrder(t *testing.T) {
	keys, _ := childrenOf(mustTree(t, `{"b":1,"10":1,"2":1,"a":1,"-1":1}`))
	assert.Equal(t, []string{"-1", "2", "10", "a", "b"}, keys)

	keys, vals := childrenOf(mustTree(t, `["x","y"]`))
	assert.Equal(t, []string{"0", "1"}, keys)
	assert.Equal(t, "y", vals["1"])
}
