package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail() (interface{}, error) { return nil, errBoom }
func ok() (interface{}, error)   { return "ok", nil }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	now := time.Unix(0, 0)
	var transitions []string
	b := New(2, 1, time.Minute,
		WithName("llm"),
		WithClock(func() time.Time { return now }),
		WithStateChange(func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		}))

	_, err := b.Execute(fail)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, Closed, b.State())

	_, err = b.Execute(fail)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, Open, b.State())

	_, err = b.Execute(ok)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, HalfOpen, b.State())

	res, err := b.Execute(ok)
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, Closed, b.State())

	assert.Equal(t, []string{
		"llm:Closed->Open",
		"llm:Open->Half-Open",
		"llm:Half-Open->Closed",
	}, transitions)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(0, 0)
	b := New(1, 2, time.Second, WithClock(func() time.Time { return now }))

	_, _ = b.Execute(fail)
	assert.Equal(t, Open, b.State())
	now = now.Add(time.Second)

	_, err := b.Execute(fail)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, Open, b.State())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New(2, 1, time.Minute)
	_, _ = b.Execute(fail)
	_, _ = b.Execute(ok)
	_, _ = b.Execute(fail)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_DoIgnoresDoneContext(t *testing.T) {
	b := New(1, 1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Do(ctx, func(context.Context) error { return errBoom })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Closed, b.State())

	err = b.Do(context.Background(), func(context.Context) error { return errBoom })
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, Open, b.State())
}
