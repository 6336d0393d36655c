package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/betenlace/affiliates/internal/config"
)

func TestAddRejectsBadSpec(t *testing.T) {
	s := New(time.UTC)
	if err := s.Add("fx", "every day", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for invalid spec")
	}
	// Five-field specs are rejected: the seconds field is required.
	if err := s.Add("fx", "30 0 * * *", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for spec without seconds")
	}
	if err := s.Add("clicks", "", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("empty spec: %v", err)
	}
	if jobs := s.Jobs(); len(jobs) != 0 {
		t.Fatalf("expected no jobs, got %v", jobs)
	}
}

func TestCampaignJobsRunWithTheirTitle(t *testing.T) {
	s := New(time.UTC)
	cfgs, err := config.ParseCampaigns([]byte(`
campaigns:
  - title: betplay_co
    adapter: betplay
  - title: codere_mx
    adapter: codere
    schedule: "0 15 7 * * *"
`))
	if err != nil {
		t.Fatalf("parse campaigns: %v", err)
	}

	var got []string
	err = s.AddCampaigns(cfgs, func(_ context.Context, title string) error {
		got = append(got, title)
		if title == "codere_mx" {
			return errors.New("upstream down")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("add campaigns: %v", err)
	}

	jobs := s.Jobs()
	if _, ok := jobs["ingest:betplay_co"]; !ok || len(jobs) != 2 {
		t.Fatalf("jobs: %v", jobs)
	}

	// Run through the wrapped chain without starting the cron loop.
	for _, e := range s.cron.Entries() {
		e.WrappedJob.Run()
	}
	if len(got) != 2 {
		t.Fatalf("expected both jobs to run, got %v", got)
	}
}

func TestStopWaitsForRunningJobs(t *testing.T) {
	s := New(time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	s.Stop(stopCtx)
	if stopCtx.Err() != nil {
		t.Fatal("stop of an idle scheduler should return immediately")
	}
}
