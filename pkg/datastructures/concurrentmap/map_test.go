package concurrentmap

import (
	"strconv"
	"sync"
	"testing"
)

func TestSetGetDelete(t *testing.T) {
	m := New[string](4)
	m.Set("weather", "sunny")

	v, ok := m.Get("weather")
	if !ok || v != "sunny" {
		t.Fatalf("Get: got (%q, %v), want (sunny, true)", v, ok)
	}

	m.Delete("weather")
	if _, ok := m.Get("weather"); ok {
		t.Fatal("expected key to be gone after Delete")
	}
}

func TestShardCountRoundsUpToPowerOfTwo(t *testing.T) {
	m := New[int](10)
	if len(m.shards) != 16 {
		t.Fatalf("expected 10 to round up to 16 shards, got %d", len(m.shards))
	}
}

func TestDoIsAtomicReadModifyReact(t *testing.T) {
	m := New[int](4)
	var notified int

	m.Do("counter", func(get func() (int, bool), set func(int)) {
		v, _ := get()
		set(v + 1)
		notified++
	})
	m.Do("counter", func(get func() (int, bool), set func(int)) {
		v, _ := get()
		set(v + 1)
		notified++
	})

	v, ok := m.Get("counter")
	if !ok || v != 2 {
		t.Fatalf("expected counter=2, got (%d, %v)", v, ok)
	}
	if notified != 2 {
		t.Fatalf("expected notify to run twice, ran %d times", notified)
	}
}

func TestConcurrentAccessAcrossShards(t *testing.T) {
	m := New[int](8)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Set(strconv.Itoa(i), i)
		}(i)
	}
	wg.Wait()

	if m.Len() != 100 {
		t.Fatalf("expected 100 entries, got %d", m.Len())
	}
}
