package dedupe

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

func newTestCache() (*Cache, *clock.Mock) {
	mock := clock.NewMock()
	return NewCache(mock, zap.NewNop()), mock
}

func TestLookupMissing(t *testing.T) {
	cache, _ := newTestCache()

	if _, ok := cache.Lookup("absent"); ok {
		t.Error("Expected lookup miss for unknown request id")
	}
}

func TestStoreAndLookup(t *testing.T) {
	cache, mock := newTestCache()

	entry := Entry{FileName: "tu_futuro_01012026120000.jpg", Timestamp: mock.Now()}
	cache.Store("req-1", entry)

	got, ok := cache.Lookup("req-1")
	if !ok {
		t.Fatal("Expected lookup hit after store")
	}
	if got.FileName != entry.FileName {
		t.Errorf("Expected file name %s, got %s", entry.FileName, got.FileName)
	}
}

func TestLookupExpired(t *testing.T) {
	cache, mock := newTestCache()

	cache.Store("req-1", Entry{FileName: "a.jpg", Timestamp: mock.Now()})
	mock.Add(DefaultRetention + time.Second)

	if _, ok := cache.Lookup("req-1"); ok {
		t.Error("Expected lookup miss once the entry aged past retention")
	}
}

func TestSweepRemovesOnlyOldEntries(t *testing.T) {
	cache, mock := newTestCache()

	cache.Store("old", Entry{FileName: "old.jpg", Timestamp: mock.Now()})
	mock.Add(4 * time.Minute)
	cache.Store("young", Entry{FileName: "young.jpg", Timestamp: mock.Now()})
	mock.Add(2 * time.Minute) // old is now 6m, young 2m

	if removed := cache.Sweep(); removed != 1 {
		t.Errorf("Expected 1 entry removed, got %d", removed)
	}
	if _, ok := cache.Lookup("young"); !ok {
		t.Error("Young entry must survive the sweep")
	}
	if cache.Len() != 1 {
		t.Errorf("Expected 1 remaining entry, got %d", cache.Len())
	}
}

func TestSweepLoop(t *testing.T) {
	cache, mock := newTestCache()

	cache.Store("req-1", Entry{FileName: "a.jpg", Timestamp: mock.Now()})
	cache.Start()
	defer cache.Stop()

	// Two interval hops so the entry is expired when the ticker fires.
	mock.Add(DefaultSweepInterval)
	mock.Add(DefaultSweepInterval)

	deadline := time.After(2 * time.Second)
	for cache.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("Sweeper did not purge the expired entry")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestDoComputesOnce(t *testing.T) {
	cache, mock := newTestCache()

	calls := 0
	compute := func() (Entry, error) {
		calls++
		return Entry{FileName: "a.jpg", Timestamp: mock.Now()}, nil
	}

	if _, cached, err := cache.Do("req-1", compute); err != nil || cached {
		t.Fatalf("First call: cached=%v err=%v", cached, err)
	}
	entry, cached, err := cache.Do("req-1", compute)
	if err != nil {
		t.Fatalf("Second call failed: %v", err)
	}
	if !cached {
		t.Error("Second call should be served from cache")
	}
	if entry.FileName != "a.jpg" {
		t.Errorf("Expected stored entry, got %+v", entry)
	}
	if calls != 1 {
		t.Errorf("Expected exactly 1 backend invocation, got %d", calls)
	}
}

func TestDoCollapsesConcurrentCalls(t *testing.T) {
	cache, mock := newTestCache()

	var mu sync.Mutex
	calls := 0
	release := make(chan struct{})
	compute := func() (Entry, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return Entry{FileName: "a.jpg", Timestamp: mock.Now()}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := cache.Do("req-1", compute); err != nil {
				t.Errorf("Do failed: %v", err)
			}
		}()
	}

	// Give the goroutines time to pile onto the flight, then let it finish.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Errorf("Expected concurrent identical requests to collapse to 1 call, got %d", calls)
	}
}

func TestDoPropagatesError(t *testing.T) {
	cache, _ := newTestCache()

	wantErr := errFake
	_, _, err := cache.Do("req-1", func() (Entry, error) { return Entry{}, wantErr })
	if err != wantErr {
		t.Errorf("Expected compute error to propagate, got %v", err)
	}
	if cache.Len() != 0 {
		t.Error("Failed computations must not be stored")
	}
}

var errFake = &fakeError{}

type fakeError struct{}

func (*fakeError) Error() string { return "fake failure" }
