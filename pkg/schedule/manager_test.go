package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadJobs(t *testing.T) {
	t.Run("rejects incomplete jobs", func(t *testing.T) {
		run := func(context.Context) (*Result, error) { return &Result{}, nil }

		cases := []struct {
			name string
			job  *Job
		}{
			{"missing key", &Job{Spec: "* * * * *", Run: run}},
			{"missing spec", &Job{Key: "job", Run: run}},
			{"missing run", &Job{Key: "job", Spec: "* * * * *"}},
			{"bad cron spec", &Job{Key: "job", Spec: "not cron", Run: run}},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				m := NewManager()
				defer m.Stop()
				assert.Error(t, m.LoadJobs([]*Job{tc.job}))
			})
		}
	})

	t.Run("registers valid jobs", func(t *testing.T) {
		m := NewManager()
		defer m.Stop()

		err := m.LoadJobs([]*Job{
			{Key: "a", Spec: "0 * * * *", Run: func(context.Context) (*Result, error) { return &Result{}, nil }},
			{Key: "b", Spec: "*/15 * * * *", Run: func(context.Context) (*Result, error) { return &Result{}, nil }},
		})
		require.NoError(t, err)
		assert.Len(t, m.Jobs(), 2)
	})
}

func TestRunNow(t *testing.T) {
	t.Run("delivers the result on the channel", func(t *testing.T) {
		m := NewManager()
		defer m.Stop()

		require.NoError(t, m.LoadJobs([]*Job{{
			Key:  "count",
			Spec: "0 0 1 1 *",
			Run: func(context.Context) (*Result, error) {
				return &Result{Processed: 7, Detail: "done"}, nil
			},
		}}))

		require.NoError(t, m.RunNow("count"))

		select {
		case result := <-m.ResultChannel():
			assert.Equal(t, "count", result.Key)
			assert.Equal(t, 7, result.Processed)
			assert.False(t, result.FinishedAt.Before(result.StartedAt))
		case <-time.After(time.Second):
			t.Fatal("no result delivered")
		}
	})

	t.Run("failed runs surface as error results", func(t *testing.T) {
		m := NewManager()
		defer m.Stop()

		require.NoError(t, m.LoadJobs([]*Job{{
			Key:  "flaky",
			Spec: "0 0 1 1 *",
			Run: func(context.Context) (*Result, error) {
				return nil, errors.New("backend unavailable")
			},
		}}))

		require.NoError(t, m.RunNow("flaky"))

		select {
		case result := <-m.ResultChannel():
			assert.Equal(t, 1, result.Errors)
			assert.Equal(t, "backend unavailable", result.Detail)
		case <-time.After(time.Second):
			t.Fatal("no result delivered")
		}
	})

	t.Run("unknown key is an error", func(t *testing.T) {
		m := NewManager()
		defer m.Stop()
		assert.Error(t, m.RunNow("ghost"))
	})
}
