package id

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ParsesAndIsUnique(t *testing.T) {
	a, b := New(), New()
	_, err := ulid.ParseStrict(a)
	require.NoError(t, err)
	_, err = ulid.ParseStrict(b)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 26)
}

func TestNewAt_StampsTime(t *testing.T) {
	at := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	parsed, err := ulid.ParseStrict(NewAt(at))
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(at), parsed.Time())
}

func TestNewAt_MonotonicWithinMillisecond(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := NewAt(at)
	for i := 0; i < 100; i++ {
		next := NewAt(at)
		assert.Less(t, prev, next)
		prev = next
	}
}
