package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/smartfinance/internal/jobs"
)

func TestStore_SaveAndGetReturnCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	started := time.Now()
	callerStarted := started

	job := &jobs.ExportLedgerJob{JobID: "j1", UserID: "u", Status: jobs.JobStatusRunning, StartedAt: &callerStarted}
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob() error = %v", err)
	}
	job.Status = jobs.JobStatusFailed
	*job.StartedAt = started.Add(time.Hour)

	got, err := s.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.Status != jobs.JobStatusRunning || !got.StartedAt.Equal(started) {
		t.Errorf("stored job was modified through the caller's pointer: %+v", got)
	}

	if err := s.SaveJob(ctx, &jobs.ExportLedgerJob{}); err == nil {
		t.Error("expected error for job without id")
	}
	if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("GetJob(missing) error = %v", err)
	}
}

func TestStore_ListJobs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, j := range []jobs.ExportLedgerJob{
		{JobID: "a", UserID: "u1", Status: jobs.JobStatusCompleted},
		{JobID: "b", UserID: "u1", Status: jobs.JobStatusFailed},
		{JobID: "c", UserID: "u2", Status: jobs.JobStatusCompleted},
		{JobID: "d", UserID: "u1", Status: jobs.JobStatusCompleted},
	} {
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.SaveJob(ctx, &j); err != nil {
			t.Fatalf("SaveJob() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all newest first", jobs.JobFilter{}, []string{"d", "c", "b", "a"}},
		{"by user", jobs.JobFilter{UserID: "u1"}, []string{"d", "b", "a"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusCompleted}, []string{"d", "c", "a"}},
		{"paged", jobs.JobFilter{Limit: 2, Offset: 1}, []string{"c", "b"}},
		{"offset past end", jobs.JobFilter{Offset: 10}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListJobs() error = %v", err)
			}
			ids := []string{}
			for _, j := range got {
				ids = append(ids, j.JobID)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("ListJobs() = %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Errorf("ListJobs() = %v, want %v", ids, tt.want)
					break
				}
			}
		})
	}
}

func TestStore_UpdateJobStatus(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_ = s.SaveJob(ctx, &jobs.ExportLedgerJob{JobID: "j1", Status: jobs.JobStatusPending})

	if err := s.UpdateJobStatus(ctx, "j1", jobs.JobStatusFailed, "boom"); err != nil {
		t.Fatalf("UpdateJobStatus() error = %v", err)
	}
	got, _ := s.GetJob(ctx, "j1")
	if got.Status != jobs.JobStatusFailed || got.Error != "boom" {
		t.Errorf("unexpected job: %+v", got)
	}
	if err := s.UpdateJobStatus(ctx, "nope", jobs.JobStatusFailed, ""); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("UpdateJobStatus(nope) error = %v", err)
	}
}
