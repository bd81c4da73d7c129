package system

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanupStackUnwindsInReverseOrder(t *testing.T) {
	stack := NewCleanupStack()

	var order []string
	stack.Push("first", func() error {
		order = append(order, "first")
		return nil
	})
	stack.Push("second", func() error {
		order = append(order, "second")
		return nil
	})
	stack.Push("third", func() error {
		order = append(order, "third")
		return nil
	})

	require.NoError(t, stack.Unwind())
	require.Equal(t, []string{"third", "second", "first"}, order)
	require.Equal(t, 0, stack.Len())
}

func TestCleanupStackRunsAllDespiteFailures(t *testing.T) {
	stack := NewCleanupStack()

	var order []string
	stack.Push("detach", func() error {
		order = append(order, "detach")
		return nil
	})
	stack.Push("export", func() error {
		order = append(order, "export")
		return errors.New("pool busy")
	})
	stack.Push("unmount", func() error {
		order = append(order, "unmount")
		return nil
	})

	err := stack.Unwind()
	require.Error(t, err)
	require.Contains(t, err.Error(), "export")
	require.Equal(t, []string{"unmount", "export", "detach"}, order)
}

func TestCleanupStackClear(t *testing.T) {
	stack := NewCleanupStack()

	ran := false
	stack.Push("never", func() error {
		ran = true
		return nil
	})
	stack.Clear()

	require.NoError(t, stack.Unwind())
	require.False(t, ran)
}
