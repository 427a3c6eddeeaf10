package badger

import (
	"context"
	"testing"
	"time"

	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/storage"
)

func newTestStore(t *testing.T) *Storage {
	t.Helper()
	store, err := New(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func reading(device string, ts time.Time, v float64) model.Reading {
	return model.Reading{
		DeviceID:  device,
		Timestamp: ts,
		Values:    map[string]float64{"field1": v},
	}
}

func TestBadgerStorage_WriteAndQuery(t *testing.T) {
	store := newTestStore(t)
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

func TestBadgerStorage_SameTimestampKeepsBoth(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	_ = store.Write(ctx, []model.Reading{reading("RST1", ts, 1)})
	_ = store.Write(ctx, []model.Reading{reading("RST1", ts, 2)})

	results, err := store.Query(ctx, storage.QueryRequest{DeviceID: "RST1", Start: ts, End: ts})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 readings with identical timestamps, got %d", len(results))
	}
	if results[0].Values["field1"] != 1 || results[1].Values["field1"] != 2 {
		t.Errorf("Expected insertion order for equal timestamps, got %+v", results)
	}
}

func TestBadgerStorage_DeviceRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	var batch []model.Reading
	for i := 0; i < 10; i++ {
		batch = append(batch,
			reading("RST1", base.Add(time.Duration(i)*time.Minute), float64(i)),
			reading("DPT1", base.Add(time.Duration(i)*time.Minute), float64(100+i)))
	}
	// Out-of-order backfill
	batch = append(batch, reading("RST1", base.Add(-time.Minute), -1))
	if err := store.Write(ctx, batch); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	results, err := store.Query(ctx, storage.QueryRequest{
		DeviceID: "RST1",
		Start:    base.Add(2 * time.Minute),
		End:      base.Add(5 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("Expected 4 readings in [2m,5m], got %d", len(results))
	}
	for i, r := range results {
		if r.DeviceID != "RST1" {
			t.Errorf("Unexpected device %s", r.DeviceID)
		}
		if r.Values["field1"] != float64(i+2) {
			t.Errorf("Expected ascending order, got %v at %d", r.Values["field1"], i)
		}
	}

	all, _ := store.Query(ctx, storage.QueryRequest{DeviceID: "RST1"})
	if len(all) != 11 {
		t.Fatalf("Expected 11 readings with open bounds, got %d", len(all))
	}
	if all[0].Values["field1"] != -1 {
		t.Errorf("Expected backfilled reading first, got %v", all[0].Values["field1"])
	}
}

func TestBadgerStorage_NewestLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	var batch []model.Reading
	for i := 0; i < 10; i++ {
		batch = append(batch, reading("RST1", base.Add(time.Duration(i)*time.Minute), float64(i)))
	}
	_ = store.Write(ctx, batch)

	newest, err := store.Query(ctx, storage.QueryRequest{DeviceID: "RST1", Limit: 3, Newest: true})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(newest) != 3 {
		t.Fatalf("Expected 3 readings, got %d", len(newest))
	}
	for i, want := range []float64{7, 8, 9} {
		if newest[i].Values["field1"] != want {
			t.Errorf("newest[%d] = %v, want %v", i, newest[i].Values["field1"], want)
		}
	}

	oldest, _ := store.Query(ctx, storage.QueryRequest{DeviceID: "RST1", Limit: 3})
	for i, want := range []float64{0, 1, 2} {
		if oldest[i].Values["field1"] != want {
			t.Errorf("oldest[%d] = %v, want %v", i, oldest[i].Values["field1"], want)
		}
	}

	bounded, _ := store.Query(ctx, storage.QueryRequest{
		DeviceID: "RST1",
		End:      base.Add(5 * time.Minute),
		Limit:    2,
		Newest:   true,
	})
	if len(bounded) != 2 || bounded[1].Values["field1"] != 5 {
		t.Errorf("Expected newest readings up to 5m, got %+v", bounded)
	}
}

func TestBadgerStorage_Persistence(t *testing.T) {
	tmpDir := t.TempDir()
	ctx := context.Background()
	now := time.Now()

	{
		store, err := New(Config{Path: tmpDir})
		if err != nil {
			t.Fatalf("Failed to create storage: %v", err)
		}
		if err := store.Write(ctx, []model.Reading{reading("DPT7", now, 1.25)}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		store.Close()
	}

	store, err := New(Config{Path: tmpDir})
	if err != nil {
		t.Fatalf("Failed to reopen storage: %v", err)
	}
	defer store.Close()

	results, err := store.Query(ctx, storage.QueryRequest{
		DeviceID: "DPT7",
		Start:    now.Add(-1 * time.Hour),
		End:      now.Add(1 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 persisted reading, got %d", len(results))
	}
	if results[0].Values["field1"] != 1.25 {
		t.Errorf("Expected value 1.25, got %v", results[0].Values["field1"])
	}
}

func TestBadgerStorage_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	err := store.Write(ctx, []model.Reading{
		reading("RST1", now.Add(-3*time.Hour), 1),
		reading("DPT1", now.Add(-2*time.Hour), 2),
		reading("RST1", now, 3),
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if err := store.Delete(ctx, storage.DeleteOptions{Before: now.Add(-1 * time.Hour), DeviceID: "RST1"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	results, _ := store.Query(ctx, storage.QueryRequest{Start: now.Add(-4 * time.Hour)})
	if len(results) != 2 {
		t.Fatalf("Expected 2 readings after device delete, got %d", len(results))
	}

	if err := store.Delete(ctx, storage.DeleteOptions{Before: now.Add(-1 * time.Hour)}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	results, _ = store.Query(ctx, storage.QueryRequest{Start: now.Add(-4 * time.Hour)})
	if len(results) != 1 {
		t.Fatalf("Expected 1 reading after delete, got %d", len(results))
	}
	if results[0].Values["field1"] != 3 {
		t.Errorf("Expected the recent reading to survive, got %v", results[0].Values["field1"])
	}
}

func TestBadgerStorage_Stats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_ = store.Write(ctx, []model.Reading{
		reading("RST1", now.Add(-1*time.Hour), 100),
		reading("RST1", now, 150),
		reading("DPT1", now, 75),
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
	if !stats.OldestReading.Equal(now.Add(-1 * time.Hour)) {
		t.Errorf("Unexpected oldest reading %v", stats.OldestReading)
	}
	if !stats.NewestReading.Equal(now) {
		t.Errorf("Unexpected newest reading %v", stats.NewestReading)
	}
}

func TestBadgerStorage_TimestampOrderingAcrossEpoch(t *testing.T) {
	before := time.Date(1969, 12, 31, 23, 0, 0, 0, time.UTC)
	after := time.Date(1970, 1, 1, 1, 0, 0, 0, time.UTC)

	if encodeTimestamp(before) >= encodeTimestamp(after) {
		t.Error("Expected pre-epoch timestamps to sort first")
	}
	key := rangeKey(devicePrefix("RST1"), after, 1)
	if !keyTimestamp(key).Equal(after) {
		t.Errorf("Expected round-trip timestamp %v, got %v", after, keyTimestamp(key))
	}
}

func TestBadgerStorage_CancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Write(ctx, []model.Reading{reading("RST1", time.Now(), 1)}); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestBadgerStorage_RunGCOnEmptyStore(t *testing.T) {
	store, err := New(Config{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	if err := store.RunGC(0.5); err != nil {
		t.Errorf("Expected nil when GC has nothing to rewrite, got %v", err)
	}
}

func TestNew_OpensOnDisk(t *testing.T) {
	for _, mem := range []int64{0, 64, 256} {
		store, err := New(Config{Path: t.TempDir(), MaxMemoryMB: mem})
		if err != nil {
			t.Fatalf("New(MaxMemoryMB=%d) failed: %v", mem, err)
		}
		if err := store.Write(context.Background(), []model.Reading{reading("RST1", time.Now(), 20)}); err != nil {
			t.Errorf("Write failed: %v", err)
		}
		if err := store.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	}
}
