package schedule

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/nrsc-chatbot/portal-api/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// TestGORMStoreIntegration needs a reachable Postgres configured via DB_* env vars
func TestGORMStoreIntegration(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping integration test. Set RUN_INTEGRATION_TESTS=true to run")
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		os.Getenv("DB_HOST"), os.Getenv("DB_USER_NAME"), os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"), os.Getenv("DB_PORT"))
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrate(&model.ScheduleEntryRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	store := NewGORMStore(db)
	original, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	t.Cleanup(func() {
		store.Update(ctx, func([]model.ScheduleEntry) ([]model.ScheduleEntry, error) { return original, nil })
	})

	now := time.Now().UTC().Truncate(time.Second)
	want := []model.ScheduleEntry{
		{URL: "https://z.example/", NextScrape: now, Interval: 15},
		{URL: "https://a.example/", NextScrape: now.Add(time.Hour), Interval: 7, RetryCount: 1},
	}
	if err := store.Update(ctx, func([]model.ScheduleEntry) ([]model.ScheduleEntry, error) { return want, nil }); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].URL != want[0].URL || got[1].RetryCount != 1 {
		t.Errorf("List = %+v, want stored order kept", got)
	}
}
