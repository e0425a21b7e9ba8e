package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("test", 3, time.Hour)
	for i := 0; i < 2; i++ {
		b.RecordFailure()
		assert.True(t, b.Allow())
	}
	b.RecordFailure()
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("test", 2, time.Hour)
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	assert.True(t, b.Allow())
}

func TestBreaker_TrialCallAfterCooldown(t *testing.T) {
	b := NewBreaker("test", 1, 5*time.Millisecond)
	b.RecordFailure()
	assert.False(t, b.Allow())

	time.Sleep(10 * time.Millisecond)
	assert.True(t, b.Allow(), "one trial call admitted after cooldown")
	assert.False(t, b.Allow(), "second call rejected while trial is in flight")

	b.RecordSuccess()
	assert.True(t, b.Allow())
}

func TestBreaker_FailedTrialRestartsCooldown(t *testing.T) {
	b := NewBreaker("test", 1, 5*time.Millisecond)
	b.RecordFailure()
	time.Sleep(10 * time.Millisecond)
	assert.True(t, b.Allow())
	b.RecordFailure()
	assert.False(t, b.Allow())
}
