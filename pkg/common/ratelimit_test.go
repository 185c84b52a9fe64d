package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowAt(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2, 1)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, rl.AllowAt(start), "first event uses the initial token")
	assert.False(t, rl.AllowAt(start.Add(100*time.Millisecond)), "bucket is empty")
	assert.True(t, rl.AllowAt(start.Add(600*time.Millisecond)), "token refilled after 500ms")
}

func TestRateLimiter_Unlimited(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0, 0)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		require.True(t, rl.AllowAt(now))
	}
}
