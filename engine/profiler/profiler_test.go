package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickLogsOncePerInterval(t *testing.T) {
	now := time.Unix(0, 0)
	p := NewProfiler(WithInterval(time.Second), WithClock(func() time.Time { return now }))

	assert.False(t, p.Tick(10))
	now = now.Add(500 * time.Millisecond)
	assert.False(t, p.Tick(10))
	now = now.Add(500 * time.Millisecond)
	assert.True(t, p.Tick(10))

	assert.Equal(t, 0, p.updateCount)
	assert.Equal(t, 0, p.pivotCount)
	assert.False(t, p.Tick(10))
}
