package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaInsertGet(t *testing.T) {
	var a Arena[string]
	h1 := a.Insert("one")
	h2 := a.Insert("two")

	assert.False(t, h1.IsNil())
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 2, a.Len())

	v, ok := a.Get(h2)
	require.True(t, ok)
	assert.Equal(t, "two", v)
}

func TestArenaStaleHandle(t *testing.T) {
	var a Arena[int]
	h := a.Insert(7)

	v, ok := a.Remove(h)
	require.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = a.Get(h)
	assert.False(t, ok, "removed handle must not resolve")
	_, ok = a.Remove(h)
	assert.False(t, ok, "double remove must fail")

	// The slot is reused with a new generation.
	h2 := a.Insert(9)
	assert.Equal(t, h.index, h2.index)
	assert.NotEqual(t, h, h2)
	_, ok = a.Get(h)
	assert.False(t, ok)
	v, ok = a.Get(h2)
	require.True(t, ok)
	assert.Equal(t, 9, v)
}

func TestArenaNullHandle(t *testing.T) {
	var a Arena[int]
	a.Insert(1)
	_, ok := a.Get(Handle{})
	assert.False(t, ok)
	assert.True(t, Fence{}.IsNil())
}

func TestArenaEach(t *testing.T) {
	var a Arena[int]
	h := a.Insert(1)
	a.Insert(2)
	a.Insert(3)
	a.Remove(h)

	var got []int
	a.Each(func(_ Handle, v int) { got = append(got, v) })
	assert.Equal(t, []int{2, 3}, got)
	assert.Equal(t, 2, a.Len())
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "SUCCESS", ResultSuccess.String())
	assert.Equal(t, "SUBOPTIMAL", ResultSuboptimal.String())
	assert.Equal(t, "OUT_OF_DATE", ResultOutOfDate.String())
}

func TestParsePresentMode(t *testing.T) {
	m, err := ParsePresentMode("mailbox")
	require.NoError(t, err)
	assert.Equal(t, PresentModeMailbox, m)

	_, err = ParsePresentMode("vsync")
	assert.Error(t, err)
}
