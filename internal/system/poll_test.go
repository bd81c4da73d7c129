package system

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitForSucceedsOnceConditionHolds(t *testing.T) {
	calls := 0
	err := WaitFor("condition", time.Millisecond, 10, func() (bool, error) {
		calls++
		return calls >= 3, nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestWaitForTimesOut(t *testing.T) {
	err := WaitFor("condition", time.Millisecond, 3, func() (bool, error) {
		return false, nil
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "timed out")
}

func TestWaitForAbortsOnCheckError(t *testing.T) {
	calls := 0
	err := WaitFor("condition", time.Millisecond, 10, func() (bool, error) {
		calls++
		return false, errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
