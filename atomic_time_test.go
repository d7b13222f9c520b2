package batchq

import (
	"sync"
	"testing"
	"time"
)

func TestAtomicTimeStoreLoad(t *testing.T) {
	var at AtomicTime

	if !at.Load().IsZero() || !at.IsZero() {
		t.Fatal("expected zero value to report the zero time")
	}

	stamp := time.Date(2024, 3, 9, 10, 0, 0, 123456789, time.UTC)
	at.Store(stamp)

	if at.IsZero() {
		t.Fatal("expected IsZero() to be false after Store")
	}
	if loaded := at.Load(); !loaded.Equal(stamp) || loaded.Nanosecond() != stamp.Nanosecond() {
		t.Errorf("expected %v, got %v", stamp, loaded)
	}

	at.Store(time.Time{})
	if !at.IsZero() {
		t.Error("storing the zero time should clear the value")
	}
}

// Readers see either nothing or one of the stored dispatch times.
func TestAtomicTimeConcurrent(t *testing.T) {
	var at AtomicTime
	stamps := []time.Time{
		time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	var wg sync.WaitGroup
	for i := range stamps {
		wg.Add(2)
		go func(stamp time.Time) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				at.Store(stamp)
			}
		}(stamps[i])
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				loaded := at.Load()
				if loaded.IsZero() {
					continue
				}
				known := false
				for _, s := range stamps {
					known = known || loaded.Equal(s)
				}
				if !known {
					t.Errorf("loaded unexpected time: %v", loaded)
				}
			}
		}()
	}
	wg.Wait()
}

func BenchmarkAtomicTimeStore(b *testing.B) {
	var at AtomicTime
	now := time.Now()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		at.Store(now)
	}
}
