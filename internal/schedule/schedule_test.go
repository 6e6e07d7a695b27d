package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerLifecycle(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s := New(10 * time.Minute).WithClock(func() time.Time { return now })

	assert.True(t, s.ShouldUpdate(), "never updated")
	assert.Equal(t, time.Duration(0), s.TimeToNextUpdate())
	assert.True(t, s.LastUpdate().IsZero())

	s.MarkUpdated()
	assert.False(t, s.ShouldUpdate())
	assert.Equal(t, 10*time.Minute, s.TimeToNextUpdate())
	assert.Equal(t, now, s.LastUpdate())

	now = now.Add(9*time.Minute + 59*time.Second)
	assert.False(t, s.ShouldUpdate())
	assert.Equal(t, time.Second, s.TimeToNextUpdate())

	now = now.Add(time.Second)
	assert.True(t, s.ShouldUpdate())
	assert.Equal(t, time.Duration(0), s.TimeToNextUpdate())

	now = now.Add(time.Hour)
	assert.Equal(t, time.Duration(0), s.TimeToNextUpdate())
}

func TestForcedRebuildRestartsInterval(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s := New(time.Minute).WithClock(func() time.Time { return now })
	s.MarkUpdated()

	now = now.Add(30 * time.Second)
	s.MarkUpdated()
	now = now.Add(45 * time.Second)
	assert.False(t, s.ShouldUpdate())
	assert.Equal(t, 15*time.Second, s.TimeToNextUpdate())
}

func TestDefaultInterval(t *testing.T) {
	assert.Equal(t, DefaultInterval, New(0).Interval())
	assert.Equal(t, DefaultInterval, New(-time.Second).Interval())
}
