// internal/archive/store_test.go

package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aspnmy/scanapi/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func finishedJob(id string, status models.JobStatus, finished time.Time) *models.ScanJob {
	started := finished.Add(-2 * time.Second)
	return &models.ScanJob{
		Request: models.ScanRequest{
			ID:        id,
			Target:    "192.168.1.1",
			Profile:   models.ProfileQuick,
			CreatedAt: started.Add(-time.Second),
		},
		Args:       []string{"-sV", "-F"},
		Status:     status,
		StartedAt:  &started,
		FinishedAt: &finished,
		Outcome: &models.ScanOutcome{
			JobID:     id,
			Status:    status,
			Complete:  true,
			RawOutput: "<nmaprun/>",
			Hosts: []models.HostResult{{
				Address: "192.168.1.1",
				State:   "up",
				Protocols: []models.ProtocolResult{{
					Name:  "tcp",
					Ports: []models.PortResult{{Port: 22, State: "open", Service: "ssh", CPE: []string{}}},
				}},
			}},
			CompletedAt: finished,
		},
	}
}

func TestStore_SaveLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	job := finishedJob("job-1", models.StatusSucceeded, now)
	require.NoError(t, s.Save(ctx, job))

	got, err := s.Load(ctx, "job-1")
	require.NoError(t, err)

	assert.Equal(t, job.Request.Target, got.Request.Target)
	assert.Equal(t, job.Request.Profile, got.Request.Profile)
	assert.Equal(t, job.Args, got.Args)
	assert.Equal(t, models.StatusSucceeded, got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, now.Equal(*got.FinishedAt))

	require.NotNil(t, got.Outcome)
	assert.Empty(t, got.Outcome.RawOutput, "raw output is not archived")
	require.Len(t, got.Outcome.Hosts, 1)
	assert.Equal(t, 22, got.Outcome.Hosts[0].Protocols[0].Ports[0].Port)
}

func TestStore_SaveReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := finishedJob("job-1", models.StatusSucceeded, time.Now().UTC())
	require.NoError(t, s.Save(ctx, job))

	job.Status = models.StatusCancelled
	require.NoError(t, s.Save(ctx, job))

	jobs, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.StatusCancelled, jobs[0].Status)
}

func TestStore_LoadMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStore_ListFilterAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.Save(ctx, finishedJob("a", models.StatusSucceeded, base)))
	require.NoError(t, s.Save(ctx, finishedJob("b", models.StatusFailed, base.Add(time.Minute))))
	require.NoError(t, s.Save(ctx, finishedJob("c", models.StatusSucceeded, base.Add(2*time.Minute))))

	all, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].Request.ID)

	succeeded, err := s.List(ctx, models.StatusSucceeded, 0)
	require.NoError(t, err)
	assert.Len(t, succeeded, 2)

	limited, err := s.List(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_DeleteAndPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Save(ctx, finishedJob("old", models.StatusSucceeded, now.Add(-48*time.Hour))))
	require.NoError(t, s.Save(ctx, finishedJob("new", models.StatusSucceeded, now)))

	n, err := s.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.Delete(ctx, "new"))
	assert.ErrorIs(t, s.Delete(ctx, "new"), models.ErrNotFound)
}
