package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/nrsc-chatbot/portal-api/app"
	"github.com/nrsc-chatbot/portal-api/model"
	"github.com/nrsc-chatbot/portal-api/services/scrapejob"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <jobId>", os.Args[0])
	}
	jobID := os.Args[1]

	getEnv, settings, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	services, err := app.BuildServices(getEnv, settings)
	if err != nil {
		log.Fatalf("Failed to initialize stores: %v", err)
	}
	defer services.Shutdown(context.Background())

	job, err := services.Jobs.Get(context.Background(), jobID)
	if err != nil {
		log.Fatalf("Failed to find job %s: %v", jobID, err)
	}

	fmt.Println("══════════════════════════════════════════════════════════════")
	fmt.Printf("  SCRAPING JOB %s\n", job.JobID)
	fmt.Println("══════════════════════════════════════════════════════════════")

	fmt.Printf("\n📋 JOB METADATA:\n")
	fmt.Printf("   Type:        %s\n", job.Type)
	fmt.Printf("   Status:      %s\n", job.Status)
	fmt.Printf("   Message:     %s\n", job.Message)
	if job.SourceURL != "" {
		fmt.Printf("   Source URL:  %s\n", job.SourceURL)
	}
	if job.Filename != "" {
		fmt.Printf("   Filename:    %s\n", job.Filename)
	}
	if job.RetryOf != "" {
		fmt.Printf("   Retry of:    %s\n", job.RetryOf)
	}
	fmt.Printf("   Processed:   %d/%d (%d ok, %d failed)\n", job.Processed, job.Total, len(job.Successful), len(job.Failed))

	fmt.Printf("\n⏱️  TIMING:\n")
	if job.StartTime != nil {
		fmt.Printf("   Started At:   %s\n", job.StartTime.Format("2006-01-02 15:04:05.000"))
	}
	if job.EndTime != nil {
		fmt.Printf("   Finished At:  %s\n", job.EndTime.Format("2006-01-02 15:04:05.000"))
		if job.StartTime != nil {
			fmt.Printf("   Duration:     %s\n", job.EndTime.Sub(*job.StartTime))
		}
	}

	if len(job.Failed) > 0 {
		fmt.Printf("\n❌ FAILED LINKS (%d):\n", len(job.Failed))
		for i, f := range job.Failed {
			fmt.Printf("   %3d. [%s] %s\n", i+1, f.Type, f.URL)
			fmt.Printf("        attempts=%d error=%s\n", f.Attempts, f.Error)
		}
	}

	html, pdf := scrapejob.DeriveRetryLinks(job)
	if job.Type == model.ProcessingJobTypeWeb {
		fmt.Printf("\n🔁 A RETRY WOULD PROCESS %d LINKS (%d html, %d pdf)\n", len(html)+len(pdf), len(html), len(pdf))
	}
}
