package sinks

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackSink_LifecycleOrder(t *testing.T) {
	var calls []string
	var out bytes.Buffer

	sink := NewCallbackSink(Callbacks{
		UserData: &out,
		Open: func(userdata any) error {
			calls = append(calls, "open")
			return nil
		},
		Write: func(userdata any, p []byte) (int, error) {
			calls = append(calls, "write")
			return userdata.(*bytes.Buffer).Write(p)
		},
		Close: func(userdata any) error {
			calls = append(calls, "close")
			return nil
		},
		Free: func(userdata any) error {
			calls = append(calls, "free")
			return nil
		},
	})

	wc, err := sink.Open(".tar")
	require.NoError(t, err)

	_, err = wc.Write([]byte("one"))
	require.NoError(t, err)
	_, err = wc.Write([]byte("two"))
	require.NoError(t, err)
	require.NoError(t, wc.Close())

	assert.Equal(t, []string{"open", "write", "write", "close", "free"}, calls)
	assert.Equal(t, "onetwo", out.String())
}

func TestCallbackSink_WriteRequired(t *testing.T) {
	sink := NewCallbackSink(Callbacks{})

	_, err := sink.Open(".tar")
	assert.EqualError(t, err, "callback sink requires a write callback")
}

func TestCallbackSink_OpenError(t *testing.T) {
	sink := NewCallbackSink(Callbacks{
		Open: func(userdata any) error {
			return errors.New("boom")
		},
		Write: func(userdata any, p []byte) (int, error) {
			return len(p), nil
		},
	})

	_, err := sink.Open(".tar")
	assert.ErrorContains(t, err, "open callback")
}

func TestCallbackSink_CloseIdempotent(t *testing.T) {
	var closes, frees int
	sink := NewCallbackSink(Callbacks{
		Write: func(userdata any, p []byte) (int, error) {
			return len(p), nil
		},
		Close: func(userdata any) error {
			closes++
			return nil
		},
		Free: func(userdata any) error {
			frees++
			return nil
		},
	})

	wc, err := sink.Open(".tar")
	require.NoError(t, err)
	require.NoError(t, wc.Close())
	require.NoError(t, wc.Close())

	assert.Equal(t, 1, closes)
	assert.Equal(t, 1, frees)

	_, err = wc.Write([]byte("late"))
	assert.EqualError(t, err, "callback sink is closed")
}

func TestCallbackSink_FreeRunsAfterCloseError(t *testing.T) {
	var freed bool
	sink := NewCallbackSink(Callbacks{
		Write: func(userdata any, p []byte) (int, error) {
			return len(p), nil
		},
		Close: func(userdata any) error {
			return errors.New("flush failed")
		},
		Free: func(userdata any) error {
			freed = true
			return nil
		},
	})

	wc, err := sink.Open(".tar")
	require.NoError(t, err)

	err = wc.Close()
	assert.ErrorContains(t, err, "flush failed")
	assert.True(t, freed, "free must run even when close fails")
}
