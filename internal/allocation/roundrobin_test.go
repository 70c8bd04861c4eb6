package allocation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundRobin(t *testing.T) {
	t.Run("distributes evenly", func(t *testing.T) {
		plan, err := RoundRobin(9, []string{"m-0", "m-1", "m-2"})
		require.NoError(t, err)
		require.Equal(t, []int{3, 3, 3}, counts(plan))
		require.Equal(t, 0, plan.Leftover)
	})

	t.Run("handles uneven distribution", func(t *testing.T) {
		plan, err := RoundRobin(5, []string{"m-0", "m-1"})
		require.NoError(t, err)
		require.Equal(t, []int{3, 2}, counts(plan))
		require.Equal(t, ModeCount, plan.Mode)
	})

	t.Run("empty batch", func(t *testing.T) {
		plan, err := RoundRobin(0, []string{"m-0"})
		require.NoError(t, err)
		require.Equal(t, 0, plan.Total())
	})

	t.Run("returns error when no targets available", func(t *testing.T) {
		_, err := RoundRobin(3, nil)
		require.ErrorIs(t, err, ErrInvalidRequest)
	})
}
