package memo

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIsDeterministicAndArgSensitive(t *testing.T) {
	assert.Equal(t, Key("label", "lisinopril"), Key("label", "lisinopril"))
	assert.NotEqual(t, Key("label", "lisinopril"), Key("label", "metformin"))
	assert.NotEqual(t, Key("label", "lisinopril"), Key("recall", "lisinopril"))
	// Argument order matters.
	assert.NotEqual(t, Key("a", "b"), Key("b", "a"))
}

func TestDoCachesSuccess(t *testing.T) {
	s := New(time.Minute, time.Minute)
	calls := 0
	fn := func() (interface{}, error) {
		calls++
		return "value", nil
	}

	v, hit, err := s.Do(Key("x"), fn)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "value", v)

	v, hit, err = s.Do(Key("x"), fn)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "value", v)
	assert.Equal(t, 1, calls)
}

func TestDoNeverCachesErrors(t *testing.T) {
	s := New(time.Minute, time.Minute)
	calls := 0
	fn := func() (interface{}, error) {
		calls++
		return nil, errors.New("upstream down")
	}

	_, _, err := s.Do(Key("y"), fn)
	require.Error(t, err)
	_, _, err = s.Do(Key("y"), fn)
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Zero(t, s.Len())
}

func TestDoNeverCachesNil(t *testing.T) {
	s := New(time.Minute, time.Minute)
	calls := 0
	fn := func() (interface{}, error) {
		calls++
		return nil, nil
	}

	_, hit, err := s.Do(Key("z"), fn)
	require.NoError(t, err)
	assert.False(t, hit)
	_, hit, _ = s.Do(Key("z"), fn)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)
}

func TestEntriesExpire(t *testing.T) {
	s := New(20*time.Millisecond, 10*time.Millisecond)
	s.Set(Key("short"), "v")

	_, ok := s.Get(Key("short"))
	assert.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = s.Get(Key("short"))
	assert.False(t, ok)
}

func TestFlush(t *testing.T) {
	s := New(time.Minute, time.Minute)
	s.Set(Key("a"), 1)
	s.Set(Key("b"), 2)
	require.Equal(t, 2, s.Len())

	s.Flush()
	assert.Zero(t, s.Len())
}
