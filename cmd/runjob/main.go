// Command runjob runs one job and exits:
//
//	runjob ingest betplay_co [--date 2024-03-05]
//	runjob ingest --all
//	runjob settlement [--month 2024-03]
//	runjob fx
//	runjob clicks [--events testdata/feeds/click_events.json]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/betenlace/affiliates/internal/app/bootstrap"
	"github.com/betenlace/affiliates/internal/domain"
)

func main() {
	date := pflag.StringP("date", "d", "", "platform day to ingest (YYYY-MM-DD); default is the campaign's default day")
	month := pflag.StringP("month", "m", "", "month to settle (YYYY-MM); default is the previous month")
	all := pflag.Bool("all", false, "ingest every registered campaign")
	events := pflag.String("events", "", "JSON file of click events to import before the click backfill")
	timeout := pflag.Duration("timeout", 30*time.Minute, "overall deadline")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: runjob <ingest [title]|settlement|fx|clicks> [flags]\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if pflag.NArg() < 1 {
		pflag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := bootstrap.NewRuntime(ctx)
	if err != nil {
		log.Fatalf("bootstrap runtime: %v", err)
	}
	defer rt.Close()

	out, err := run(ctx, rt, pflag.Args(), options{date: *date, month: *month, all: *all, events: *events})
	if out != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	}
	if err != nil {
		rt.Close()
		log.Fatalf("%s: %v", pflag.Arg(0), err)
	}
}

type options struct {
	date, month, events string
	all                 bool
}

func run(ctx context.Context, rt *bootstrap.Runtime, args []string, opt options) (any, error) {
	loc := rt.Config.Platform.Location
	switch args[0] {
	case "ingest":
		if opt.all {
			errs := rt.Ingestion.RunAll(ctx, rt.Ingestion.Titles(), rt.Config.Ingestion.Workers)
			failed := map[string]string{}
			for title, err := range errs {
				failed[title] = err.Error()
			}
			if len(failed) > 0 {
				return failed, fmt.Errorf("%d campaign(s) failed", len(failed))
			}
			return nil, nil
		}
		if len(args) < 2 {
			return nil, fmt.Errorf("campaign title required")
		}
		if opt.date == "" {
			return rt.Ingestion.Run(ctx, args[1])
		}
		day, err := time.ParseInLocation("2006-01-02", opt.date, loc)
		if err != nil {
			return nil, fmt.Errorf("parse --date: %w", err)
		}
		return rt.Ingestion.RunDate(ctx, args[1], day)

	case "settlement":
		if opt.month == "" {
			return rt.Settlement.Run(ctx)
		}
		m, err := time.ParseInLocation("2006-01", opt.month, loc)
		if err != nil {
			return nil, fmt.Errorf("parse --month: %w", err)
		}
		return rt.Settlement.RunMonth(ctx, m)

	case "fx":
		if rt.Fx == nil {
			return nil, fmt.Errorf("FX_PROVIDER_URL is not set")
		}
		return rt.Fx.Run(ctx, time.Now())

	case "clicks":
		if opt.events != "" {
			if err := importClicks(ctx, rt, opt.events); err != nil {
				return nil, err
			}
		}
		return rt.Clicks.Run(ctx)
	}
	return nil, fmt.Errorf("unknown job %q", args[0])
}

func importClicks(ctx context.Context, rt *bootstrap.Runtime, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	var events []domain.ClickEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return fmt.Errorf("unmarshal events: %w", err)
	}
	n, err := rt.Store.InsertClickEvents(ctx, events)
	if err != nil {
		return err
	}
	slog.Info("click events imported", "path", path, "new", n, "total", len(events))
	return nil
}
