package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDailySpec(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "02:30", want: "30 2 * * *"},
		{in: "00:00", want: "0 0 * * *"},
		{in: "23:59", want: "59 23 * * *"},
		{in: "7:05", want: "5 7 * * *"},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12", wantErr: true},
		{in: "12:30:00", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			got, err := dailySpec(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestScheduleDaily(t *testing.T) {
	t.Run("rejects malformed trigger time", func(t *testing.T) {
		s := NewCronScheduler(time.UTC, time.Minute, testLogger())
		err := s.ScheduleDaily("26:00", "Bogus", func(context.Context) {})
		assert.Error(t, err)
	})

	t.Run("accepts valid trigger time", func(t *testing.T) {
		s := NewCronScheduler(time.UTC, time.Minute, testLogger())
		err := s.ScheduleDaily("02:30", "Nightly", func(context.Context) {})
		assert.NoError(t, err)
	})
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewCronScheduler(time.UTC, time.Minute, testLogger())
	require.NoError(t, s.ScheduleDaily("02:30", "Nightly", func(context.Context) {}))

	s.Start()
	ctx := s.Stop()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop in time")
	}
}

func TestNewCronSchedulerDefaults(t *testing.T) {
	t.Run("nil logger panics", func(t *testing.T) {
		assert.Panics(t, func() {
			NewCronScheduler(time.UTC, time.Minute, nil)
		})
	})

	t.Run("non positive timeout falls back", func(t *testing.T) {
		s := NewCronScheduler(time.UTC, 0, testLogger())
		assert.Equal(t, time.Hour, s.jobTimeout)
	})
}
