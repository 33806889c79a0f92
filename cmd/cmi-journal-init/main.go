package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/bakery_backend/config"
	"github.com/mmdatafocus/bakery_backend/models"
	"github.com/mmdatafocus/bakery_backend/utils"
	"github.com/mmdatafocus/bakery_backend/workflow"
)

func main() {
	from := flag.String("from", "", "First month to open (YYYY-MM). Defaults to the current month.")
	to := flag.String("to", "", "Last month to open (YYYY-MM). Defaults to -from.")
	flag.Parse()

	now := time.Now()
	start := strings.TrimSpace(*from)
	if start == "" {
		start = utils.MonthKey(now.Year(), now.Month())
	}
	end := strings.TrimSpace(*to)
	if end == "" {
		end = start
	}
	startYear, startMonth, err := utils.ParseMonthKey(start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "-from: %v\n", err)
		os.Exit(2)
	}
	endYear, endMonth, err := utils.ParseMonthKey(end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "-to: %v\n", err)
		os.Exit(2)
	}
	first := time.Date(startYear, startMonth, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(endYear, endMonth, 1, 0, 0, 0, 0, time.UTC)
	if last.Before(first) {
		fmt.Fprintln(os.Stderr, "-to is before -from")
		os.Exit(2)
	}

	ctx := utils.SetOperatorInContext(context.Background(), "CMIJournalInit")
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	journal := workflow.NewCMIJournalService(models.NewCMIJournalRepository(db), config.GetLogger())
	failed := 0
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		entries, err := journal.EnsureMonth(ctx, m.Year(), m.Month())
		if err != nil {
			fmt.Fprintf(os.Stderr, "month %s: %v\n", utils.MonthKey(m.Year(), m.Month()), err)
			failed++
			continue
		}
		fmt.Printf("month=%s rows=%d\n", utils.MonthKey(m.Year(), m.Month()), len(entries))
	}
	if failed > 0 {
		os.Exit(1)
	}
	fmt.Println("Done")
}
