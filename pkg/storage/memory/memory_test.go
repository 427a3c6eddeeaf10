package memory

import (
	"context"
	"testing"
	"time"

	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/storage"
)

func reading(device string, ts time.Time, v float64) model.Reading {
	return model.Reading{
		DeviceID:  device,
		Timestamp: ts,
		Values:    map[string]float64{"field1": v},
	}
}

func TestMemoryStorage_WriteAndQuery(t *testing.T) {
	store := New()
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	err := store.Write(ctx, []model.Reading{
		reading("RST1", now, 21.5),
		reading("RST2", now, 22.0),
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	results, err := store.Query(ctx, storage.QueryRequest{
		Start: now.Add(-1 * time.Hour),
		End:   now.Add(1 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if len(results) != 2 {
		t.Errorf("Expected 2 readings, got %d", len(results))
	}
}

func TestMemoryStorage_QueryByDevice(t *testing.T) {
	store := New()
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	_ = store.Write(ctx, []model.Reading{
		reading("RST1", now, 1),
		reading("DPT1", now, 2),
		reading("RST1", now.Add(time.Minute), 3),
	})

	results, err := store.Query(ctx, storage.QueryRequest{
		DeviceID: "RST1",
		Start:    now.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 readings for RST1, got %d", len(results))
	}
	for _, r := range results {
		if r.DeviceID != "RST1" {
			t.Errorf("Unexpected device %s", r.DeviceID)
		}
	}
}

func TestMemoryStorage_QueryOrderAndLimit(t *testing.T) {
	store := New()
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	// Written out of order
	_ = store.Write(ctx, []model.Reading{
		reading("RST1", base.Add(3*time.Minute), 3),
		reading("RST1", base.Add(1*time.Minute), 1),
		reading("RST1", base.Add(4*time.Minute), 4),
		reading("RST1", base.Add(2*time.Minute), 2),
	})

	oldest, err := store.Query(ctx, storage.QueryRequest{DeviceID: "RST1", Start: base, Limit: 2})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(oldest) != 2 || oldest[0].Values["field1"] != 1 || oldest[1].Values["field1"] != 2 {
		t.Errorf("Expected oldest two readings [1 2], got %+v", oldest)
	}

	newest, err := store.Query(ctx, storage.QueryRequest{DeviceID: "RST1", Start: base, Limit: 2, Newest: true})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(newest) != 2 || newest[0].Values["field1"] != 3 || newest[1].Values["field1"] != 4 {
		t.Errorf("Expected newest two readings [3 4] ascending, got %+v", newest)
	}
}

func TestMemoryStorage_InclusiveBounds(t *testing.T) {
	store := New()
	defer store.Close()

	ctx := context.Background()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	_ = store.Write(ctx, []model.Reading{
		reading("RST1", start, 1),
		reading("RST1", end, 2),
		reading("RST1", end.Add(time.Nanosecond), 3),
	})

	results, _ := store.Query(ctx, storage.QueryRequest{DeviceID: "RST1", Start: start, End: end})
	if len(results) != 2 {
		t.Errorf("Expected both bounds included, got %d readings", len(results))
	}
}

func TestMemoryStorage_Delete(t *testing.T) {
	store := New()
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	_ = store.Write(ctx, []model.Reading{
		reading("RST1", now.Add(-48*time.Hour), 1),
		reading("DPT1", now.Add(-48*time.Hour), 2),
		reading("RST1", now, 3),
	})

	err := store.Delete(ctx, storage.DeleteOptions{
		Before:   now.Add(-24 * time.Hour),
		DeviceID: "RST1",
	})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	results, _ := store.Query(ctx, storage.QueryRequest{Start: now.Add(-72 * time.Hour)})
	if len(results) != 2 {
		t.Fatalf("Expected 2 readings after delete, got %d", len(results))
	}

	_ = store.Delete(ctx, storage.DeleteOptions{Before: now.Add(-24 * time.Hour)})
	results, _ = store.Query(ctx, storage.QueryRequest{Start: now.Add(-72 * time.Hour)})
	if len(results) != 1 {
		t.Errorf("Expected 1 reading after global delete, got %d", len(results))
	}
}

func TestMemoryStorage_Stats(t *testing.T) {
	store := New()
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	_ = store.Write(ctx, []model.Reading{
		reading("RST1", now.Add(-time.Hour), 1),
		reading("RST1", now, 2),
		reading("DPT1", now, 3),
	})

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if stats.TotalReadings != 3 {
		t.Errorf("Expected 3 total readings, got %d", stats.TotalReadings)
	}
	if stats.TotalDevices != 2 {
		t.Errorf("Expected 2 devices, got %d", stats.TotalDevices)
	}
	if !stats.OldestReading.Equal(now.Add(-time.Hour)) {
		t.Errorf("Unexpected oldest reading %v", stats.OldestReading)
	}
}

func TestMemoryStorage_Closed(t *testing.T) {
	store := New()
	_ = store.Close()

	err := store.Write(context.Background(), []model.Reading{reading("RST1", time.Now(), 1)})
	if err != storage.ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestMemoryStorage_CancelledContext(t *testing.T) {
	store := New()
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Query(ctx, storage.QueryRequest{}); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
