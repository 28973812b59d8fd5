package pulse

import (
	"context"
	"testing"
	"time"

	"github.com/derktes/pi-ir/gpio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	validA   = Code{1120, 560, 560, 1690, 560}
	validB   = Code{1130, 550, 570, 1680, 555}
	validC   = Code{1110, 565, 555, 1700, 560}
	tooShort = Code{560, 560, 560}
	outlier  = Code{560, 560, 560, 560, 560}
	blurred  = Code{560, 560, 900, 560, 560}
)

func feed(codes ...Code) <-chan Code {
	ch := make(chan Code, len(codes))
	for _, c := range codes {
		ch <- c
	}
	return ch
}

func TestRecordSkipsTooShortCode(t *testing.T) {
	var statuses []SampleStatus
	opts := RecordOptions{
		Confirm:   3,
		MinLength: 4,
		OnSample:  func(r SampleResult) { statuses = append(statuses, r.Status) },
	}

	got, err := RecordFrom(context.Background(), feed(validA, validB, tooShort, validC), opts)
	require.NoError(t, err)
	want, err := Average([]Code{validA, validB, validC}, AverageOptions{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, []SampleStatus{SampleAccepted, SampleAccepted, SampleTooShort, SampleAccepted}, statuses)
}

func TestRecordDiscardsOutliers(t *testing.T) {
	var results []SampleResult
	opts := RecordOptions{
		Confirm:   3,
		MinLength: 4,
		OnSample:  func(r SampleResult) { results = append(results, r) },
	}

	got, err := RecordFrom(context.Background(), feed(validA, outlier, blurred, validB, validC), opts)
	require.NoError(t, err)
	assert.Len(t, got, len(validA))

	require.Len(t, results, 5)
	assert.Equal(t, SampleInconsistent, results[1].Status)
	assert.ErrorIs(t, results[1].Err, ErrInconsistentSamples)
	assert.Equal(t, SampleToleranceExceeded, results[2].Status)
	assert.ErrorIs(t, results[2].Err, ErrToleranceExceeded)
	assert.Equal(t, 1, results[2].Accepted)
	assert.Equal(t, 3, results[4].Accepted)
}

func TestRecordMaxRejects(t *testing.T) {
	opts := RecordOptions{MinLength: 4, MaxRejects: 2}
	_, err := RecordFrom(context.Background(), feed(validA, tooShort, outlier, validB), opts)
	assert.ErrorIs(t, err, ErrTooManyRejects)
}

func TestRecordContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := RecordFrom(ctx, make(chan Code), RecordOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRecordStreamClosed(t *testing.T) {
	ch := make(chan Code, 1)
	ch <- validA
	close(ch)
	_, err := RecordFrom(context.Background(), ch, RecordOptions{MinLength: 4})
	assert.Error(t, err)
}

func TestSessionOffer(t *testing.T) {
	s := NewSession(RecordOptions{Confirm: 2, MinLength: 4})

	_, err := s.Result()
	assert.Error(t, err)

	assert.Equal(t, SampleAccepted, s.Offer(validA).Status)
	r := s.Offer(tooShort)
	assert.Equal(t, SampleTooShort, r.Status)
	assert.ErrorIs(t, r.Err, ErrTooShort)
	assert.False(t, s.Done())
	assert.Equal(t, SampleAccepted, s.Offer(validB).Status)
	assert.True(t, s.Done())
	assert.Equal(t, 2, s.Accepted())
	assert.Equal(t, 1, s.Rejected())

	r = s.Offer(validC)
	assert.Equal(t, SampleIgnored, r.Status)
	assert.Equal(t, 2, s.Accepted())

	got, err := s.Result()
	require.NoError(t, err)
	assert.Len(t, got, len(validA))
}

func TestSessionMinLengthIsExclusive(t *testing.T) {
	s := NewSession(RecordOptions{Confirm: 1, MinLength: len(validA)})
	assert.Equal(t, SampleTooShort, s.Offer(validA).Status)
}

func TestSampleStatusString(t *testing.T) {
	assert.Equal(t, "accepted", SampleAccepted.String())
	assert.Equal(t, "too_short", SampleTooShort.String())
	assert.Equal(t, "tolerance_exceeded", SampleToleranceExceeded.String())
	assert.Equal(t, "inconsistent", SampleInconsistent.String())
	assert.Equal(t, "unknown", SampleStatus(42).String())
}

func TestRecordFromPin(t *testing.T) {
	loop := gpio.NewLoopback(gpio.LoopbackOptions{})
	type result struct {
		code Code
		err  error
	}
	done := make(chan result, 1)
	go func() {
		c, err := Record(context.Background(), loop, inputPin, RecordOptions{Confirm: 2, MinLength: 4})
		done <- result{c, err}
	}()
	require.Eventually(t, func() bool { return loop.Watching(inputPin) }, time.Second, time.Millisecond)

	loop.InjectCode(inputPin, 1120, 560, 560, 1690, 560)
	loop.InjectCode(inputPin, 1130, 550, 570, 1680, 555)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Len(t, r.code, 5)
	case <-time.After(2 * time.Second):
		t.Fatal("recording did not finish")
	}
	assert.False(t, loop.Watching(inputPin))
}

func TestRecordInvalidPin(t *testing.T) {
	_, err := Record(context.Background(), gpio.NewLoopback(gpio.LoopbackOptions{}), 99, RecordOptions{})
	assert.True(t, IsConfigError(err))
}
