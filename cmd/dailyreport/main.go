// Command dailyreport summarizes one archived day and delivers the summary.
// It is meant to run from cron shortly after midnight.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/levenlabs/go-lflag"

	"github.com/peakshed/peakshed/pkg/config"
	"github.com/peakshed/peakshed/pkg/log"
	"github.com/peakshed/peakshed/pkg/notify"
	"github.com/peakshed/peakshed/pkg/report"
	"github.com/peakshed/peakshed/pkg/storage"
)

func main() {
	_ = godotenv.Load()

	conf := config.Configured()
	s := storage.Configured()
	n := notify.Configured(conf)

	date := lflag.String("date", "", "Date (YYYY-MM-DD) to report on, defaults to yesterday")

	lflag.Configure()

	ctx := context.Background()

	day := *date
	if day == "" {
		day = time.Now().AddDate(0, 0, -1).Format(time.DateOnly)
	}

	state, err := s.LoadArchivedDay(ctx, day)
	if errors.Is(err, storage.ErrNotFound) {
		log.Ctx(ctx).ErrorContext(ctx, "no archived record for date", slog.String("date", day))
		os.Exit(1)
	} else if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load archived day",
			slog.String("date", day), slog.Any("error", err))
		os.Exit(1)
	}

	summary := report.Summarize(state, conf.Settings)
	rendered := summary.Render()
	fmt.Println(rendered)

	// warning-level reports go out through the notifier, routine ones only
	// print
	subject := fmt.Sprintf("daily report for %s", day)
	if err := n.Notifier.Send(ctx, summary.Level(), subject, rendered); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to deliver report", slog.Any("error", err))
		os.Exit(1)
	}
	if n.Telemetry != nil {
		n.Telemetry.Close()
	}
	if err := s.Close(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
	}
}
