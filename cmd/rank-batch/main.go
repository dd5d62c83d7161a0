package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
	"github.com/vladislavdragonenkov/commerce-core/internal/service/batch"
	"github.com/vladislavdragonenkov/commerce-core/internal/storage/postgres"
)

const defaultTimeout = 10 * time.Minute

func main() {
	var (
		periodType string
		targetDate string
		dsn        string
	)

	flag.StringVar(&periodType, "period", "WEEKLY", "ranking period: WEEKLY|MONTHLY")
	flag.StringVar(&targetDate, "date", "", "target date YYYY-MM-DD (default: today)")
	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: DATABASE_URL)")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	period := domain.PeriodType(strings.ToUpper(strings.TrimSpace(periodType)))
	if period != domain.PeriodWeekly && period != domain.PeriodMonthly {
		fail("unsupported period: %s (use WEEKLY|MONTHLY)", periodType)
	}

	target := time.Now().UTC()
	if targetDate != "" {
		parsed, err := time.Parse("2006-01-02", targetDate)
		if err != nil {
			fail("invalid -date %q: %v", targetDate, err)
		}
		target = parsed
	}

	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		fail("DATABASE_URL (or -dsn) is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	ranker := batch.NewRanker(store)
	if err := ranker.Run(ctx, period, target); err != nil {
		fail("rank batch failed: %v", err)
	}

	periodStart, _ := domain.PeriodRange(period, target)
	fmt.Printf("rank batch ok: period=%s start=%s\n", period, periodStart.Format("2006-01-02"))
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
