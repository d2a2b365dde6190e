package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tmajkow/coursepulse/internal/analytics"
)

func sampleReport() *analytics.DashboardReport {
	return &analytics.DashboardReport{
		GeneratedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		StudentCount: 42,
		EventCount:   1337,
		Consistency: []analytics.ConsistencyReport{
			{StudentID: "stu_1", Score: 88, Pattern: "high"},
		},
	}
}

func TestInMemoryReportCache_GetSet(t *testing.T) {
	c := NewInMemoryReportCache(time.Minute)
	ctx := context.Background()

	// Miss before Set.
	_, ok, err := c.Get(ctx, "com_acme")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() hit on empty cache")
	}

	report := sampleReport()
	if err := c.Set(ctx, "com_acme", report); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "com_acme")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() miss after Set")
	}
	if got.StudentCount != 42 || got.EventCount != 1337 {
		t.Errorf("Get() = %+v, want stored report", got)
	}

	// Tenants are isolated.
	_, ok, _ = c.Get(ctx, "com_other")
	if ok {
		t.Error("Get() hit for a different company")
	}
}

func TestInMemoryReportCache_Expiry(t *testing.T) {
	c := NewInMemoryReportCache(10 * time.Millisecond)
	ctx := context.Background()

	if err := c.Set(ctx, "com_acme", sampleReport()); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	_, ok, err := c.Get(ctx, "com_acme")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() hit after TTL expiry")
	}
}

func TestInMemoryReportCache_NoExpiryWithZeroTTL(t *testing.T) {
	c := NewInMemoryReportCache(0)
	ctx := context.Background()

	if err := c.Set(ctx, "com_acme", sampleReport()); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	_, ok, _ := c.Get(ctx, "com_acme")
	if !ok {
		t.Error("Get() miss with zero TTL, want entries to persist")
	}
}

func TestInMemoryReportCache_Invalidate(t *testing.T) {
	c := NewInMemoryReportCache(time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "com_acme", sampleReport()); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := c.Invalidate(ctx, "com_acme"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}

	_, ok, _ := c.Get(ctx, "com_acme")
	if ok {
		t.Error("Get() hit after Invalidate")
	}

	// Invalidating an absent key is fine.
	if err := c.Invalidate(ctx, "com_missing"); err != nil {
		t.Errorf("Invalidate() on missing key error = %v", err)
	}
}

// TestRedisReportCache_RoundTrip exercises the redis cache against a real
// Redis instance on localhost:6379. Skipped when Redis is not available.
func TestRedisReportCache_RoundTrip(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping integration test")
	}
	defer client.Close()

	c := NewRedisReportCache(client, time.Minute)
	companyID := "com_test_" + strconv.FormatInt(time.Now().UnixNano(), 10)
	ctx = context.Background()

	_, ok, err := c.Get(ctx, companyID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() hit before Set")
	}

	report := sampleReport()
	if err := c.Set(ctx, companyID, report); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	defer func() {
		if err := c.Invalidate(ctx, companyID); err != nil {
			t.Errorf("Invalidate() error = %v", err)
		}
	}()

	got, ok, err := c.Get(ctx, companyID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() miss after Set")
	}
	if !got.GeneratedAt.Equal(report.GeneratedAt) {
		t.Errorf("GeneratedAt = %v, want %v", got.GeneratedAt, report.GeneratedAt)
	}
	if got.StudentCount != report.StudentCount {
		t.Errorf("StudentCount = %d, want %d", got.StudentCount, report.StudentCount)
	}
	if len(got.Consistency) != 1 || got.Consistency[0].StudentID != "stu_1" {
		t.Errorf("Consistency = %+v, want one entry for stu_1", got.Consistency)
	}
}
