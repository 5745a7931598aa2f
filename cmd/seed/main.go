package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/nrsc-chatbot/portal-api/app"
	"github.com/nrsc-chatbot/portal-api/services/schedule"
)

func main() {
	getEnv, settings, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	services, err := app.BuildServices(getEnv, settings)
	if err != nil {
		log.Fatalf("Failed to initialize stores: %v", err)
	}
	defer services.Shutdown(context.Background())

	separator := strings.Repeat("=", 60)
	fmt.Println(separator)
	fmt.Println("NRSC Portal - Rescrape Schedule Seeding")
	fmt.Println(separator)

	added, err := services.Registrar.Seed(context.Background(), schedule.InitialURLs)
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	entries, err := services.ScheduleStore.List(context.Background())
	if err != nil {
		log.Fatalf("Failed to read schedule: %v", err)
	}

	fmt.Printf("\nAdded %d of %d initial URLs (%d already scheduled)\n\n", added, len(schedule.InitialURLs), len(schedule.InitialURLs)-added)
	for _, e := range entries {
		fmt.Printf("  %-50s every %2d days, next %s\n", e.URL, e.Interval, e.NextScrape.Format("2006-01-02 15:04 MST"))
	}
	fmt.Println()
	fmt.Println(separator)
	fmt.Println("🎉 Seeding completed successfully!")
	fmt.Println(separator)
}
