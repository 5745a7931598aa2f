package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/nrsc-chatbot/portal-api/app"
	"github.com/nrsc-chatbot/portal-api/model"
)

func main() {
	status := flag.String("status", "", "only show jobs with this status")
	limit := flag.Int("limit", 25, "maximum number of jobs to print")
	recoverStale := flag.Bool("recover", false, "mark jobs left in processing as failed (server must be stopped)")
	flag.Parse()

	getEnv, settings, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	services, err := app.BuildServices(getEnv, settings)
	if err != nil {
		log.Fatalf("Failed to initialize stores: %v", err)
	}
	defer services.Shutdown(context.Background())

	ctx := context.Background()

	if *recoverStale {
		n, err := services.Jobs.RecoverInterrupted(ctx)
		if err != nil {
			log.Fatalf("Recovery failed: %v", err)
		}
		fmt.Printf("Marked %d interrupted jobs as failed\n\n", n)
	}

	jobs, err := services.Jobs.List(ctx)
	if err != nil {
		log.Fatalf("Failed to list jobs: %v", err)
	}

	counts := map[model.ProcessingJobStatus]int{}
	for _, j := range jobs {
		counts[j.Status]++
	}

	fmt.Println("══════════════════════════════════════════════════════════════════════════════")
	fmt.Printf("  SCRAPING JOBS (%d total)\n", len(jobs))
	fmt.Println("══════════════════════════════════════════════════════════════════════════════")
	fmt.Printf("  processing: %d  completed: %d  partial: %d  failed: %d  unknown: %d\n\n",
		counts[model.ProcessingJobStatusProcessing],
		counts[model.ProcessingJobStatusCompleted],
		counts[model.ProcessingJobStatusPartial],
		counts[model.ProcessingJobStatusFailed],
		counts[model.ProcessingJobStatusUnknown])

	fmt.Printf("  %-28s %-4s %-20s %9s %5s %5s  %s\n", "JOB", "TYPE", "STATUS", "PROCESSED", "OK", "FAIL", "SOURCE")
	fmt.Println("  " + strings.Repeat("─", 100))

	shown := 0
	for _, j := range jobs {
		if *status != "" && string(j.Status) != *status {
			continue
		}
		if shown == *limit {
			break
		}
		shown++

		source := j.SourceURL
		if j.Type == model.ProcessingJobTypePDF {
			source = j.Filename
		}
		fmt.Printf("  %-28s %-4s %-20s %4d/%-4d %5d %5d  %s\n",
			truncate(j.JobID, 28), j.Type, j.Status, j.Processed, j.Total,
			len(j.Successful), len(j.Failed), truncate(source, 40))
	}
	if shown == 0 {
		fmt.Println("  (no jobs)")
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
