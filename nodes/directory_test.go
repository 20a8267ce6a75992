package nodes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	id, err := ParseID("!9e7656a8")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x9e7656a8), id)

	id, err = ParseID("12345678")
	require.NoError(t, err)
	assert.Equal(t, uint32(12345678), id)

	id, err = ParseID("  !0000002a ")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), id)

	_, err = ParseID("")
	assert.Error(t, err)
	_, err = ParseID("!xyz")
	assert.Error(t, err)
	_, err = ParseID("not-a-number")
	assert.Error(t, err)
	// Out of uint32 range.
	_, err = ParseID("4294967296")
	assert.Error(t, err)
}

func TestNodeHexID(t *testing.T) {
	n := Node{Name: "yang", ID: 0x9e7656a8}
	assert.Equal(t, "!9e7656a8", n.HexID())

	n.ID = 42
	assert.Equal(t, "!0000002a", n.HexID())
}

func TestNodeHasPublicKey(t *testing.T) {
	assert.False(t, Node{Name: "yang"}.HasPublicKey())
	assert.True(t, Node{Name: "yang", PublicKey: make([]byte, 32)}.HasPublicKey())
}

func TestDirectoryResolve(t *testing.T) {
	dir, err := NewDirectory([]Node{
		{Name: "yang", ID: 0x9e7656a8},
		{Name: "ying", ID: 0x433c9a75},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, dir.Len())

	n, err := dir.Resolve("yang")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x9e7656a8), n.ID)

	_, err = dir.Resolve("nobody")
	require.ErrorIs(t, err, ErrUnknownNode)

	n, ok := dir.ByID(0x433c9a75)
	require.True(t, ok)
	assert.Equal(t, "ying", n.Name)

	_, ok = dir.ByID(1)
	assert.False(t, ok)

	assert.Equal(t, []string{"yang", "ying"}, dir.Names())
}

func TestDirectoryRejectsDuplicatesAndEmpty(t *testing.T) {
	_, err := NewDirectory(nil)
	assert.Error(t, err)

	_, err = NewDirectory([]Node{{ID: 1}})
	assert.Error(t, err, "nameless node")

	_, err = NewDirectory([]Node{
		{Name: "yang", ID: 1},
		{Name: "yang", ID: 2},
	})
	assert.Error(t, err, "duplicate name")

	_, err = NewDirectory([]Node{
		{Name: "yang", ID: 1},
		{Name: "ying", ID: 1},
	})
	assert.Error(t, err, "duplicate id")
}
