package chaos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/pkg/exception"
)

func TestValidate(t *testing.T) {
	testCases := []struct {
		desc string
		cfg  Config
		ok   bool
	}{
		{"zero", Config{}, true},
		{"drop too high", Config{DropRate: 1.5}, false},
		{"negative duplicate", Config{DuplicateRate: -0.1}, false},
		{"negative window", Config{ReorderWindow: -1}, false},
		{"negative delay", Config{MaxDelay: -time.Second}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, exception.ErrConfigInvalid)
		})
	}
}

func TestPassThroughWhenDisabled(t *testing.T) {
	e, err := NewEngine[int](Config{Seed: 1}, nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		assert.Equal(t, []int{i}, e.Process(i))
	}
	assert.False(t, Config{}.Enabled())
}

func TestReorderKeepsEveryItem(t *testing.T) {
	e, err := NewEngine[int](Config{Seed: 7, ReorderWindow: 4}, nil)
	require.NoError(t, err)

	var out []int
	for i := 0; i < 20; i++ {
		out = append(out, e.Process(i)...)
	}
	assert.Equal(t, 3, e.Pending())
	out = append(out, e.Flush()...)
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19}, out)
	assert.Equal(t, 0, e.Pending())
}

func TestDelayAndDropAndDuplicate(t *testing.T) {
	shift := func(v time.Duration, d time.Duration) time.Duration { return v + d }
	e, err := NewEngine(Config{Seed: 3, MaxDelay: time.Millisecond}, shift)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		out := e.Process(time.Second)
		require.Len(t, out, 1)
		if out[0] < time.Second || out[0] > time.Second+time.Millisecond {
			t.Fatalf("delay out of range: %s", out[0])
		}
	}

	drop, err := NewEngine[int](Config{Seed: 3, DropRate: 1}, nil)
	require.NoError(t, err)
	assert.Empty(t, drop.Process(1))

	dup, err := NewEngine[int](Config{Seed: 3, DuplicateRate: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, dup.Process(1))
}
