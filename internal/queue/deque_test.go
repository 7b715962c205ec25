package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDequeFIFO(t *testing.T) {
	require := require.New(t)

	d := NewDeque[int](4)
	require.True(d.IsEmpty())
	require.Equal(0, d.Len())

	_, ok := d.PopFront()
	require.False(ok)

	_, ok = d.Front()
	require.False(ok)

	d.PushBack(1)
	d.PushBack(2)
	d.PushBack(3)
	require.Equal(3, d.Len())

	head, ok := d.Front()
	require.True(ok)
	require.Equal(1, head)
	require.Equal(3, d.Len(), "Front must not remove the item")

	for want := 1; want <= 3; want++ {
		item, ok := d.PopFront()
		require.True(ok)
		require.Equal(want, item)
	}
	require.True(d.IsEmpty())
}

func TestDequePushFront(t *testing.T) {
	require := require.New(t)

	d := NewDeque[string](4)
	d.PushBack("b")
	d.PushBack("c")
	d.PushFront("a")

	require.Equal(3, d.Len())

	for _, want := range []string{"a", "b", "c"} {
		item, ok := d.PopFront()
		require.True(ok)
		require.Equal(want, item)
	}

	// PushFront on an empty deque behaves like PushBack.
	d.PushFront("only")
	item, ok := d.PopFront()
	require.True(ok)
	require.Equal("only", item)
}

func TestDequeReset(t *testing.T) {
	require := require.New(t)

	d := NewDeque[int](2)
	d.PushBack(1)
	d.PushBack(2)
	d.Reset()

	require.True(d.IsEmpty())
	require.Equal(0, d.Len())

	d.PushBack(7)
	item, ok := d.PopFront()
	require.True(ok)
	require.Equal(7, item)
}
