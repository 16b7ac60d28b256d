package topicstore

import (
	"testing"
	"time"

	"github.com/chris-alexander-pop/lamport-broker/internal/kvstore/memkv"
)

func TestPutAndGetCaseFolded(t *testing.T) {
	s := New(memkv.New())
	s.Put("Weather", "sunny")

	got, ok := s.Get("WEATHER")
	if !ok || got != "sunny" {
		t.Fatalf("Get(WEATHER): got (%q, %v), want (sunny, true)", got, ok)
	}
}

func TestGetMissingTopic(t *testing.T) {
	s := New(memkv.New())
	if _, ok := s.Get("nothing-here"); ok {
		t.Fatal("expected ok=false for a topic never published to")
	}
}

func TestSeenDedupOracle(t *testing.T) {
	s := New(memkv.New())
	s.Put("weather", "sunny")

	if !s.Seen("weather", "sunny") {
		t.Fatal("expected Seen to report true for the exact stored payload")
	}
	if s.Seen("weather", "rainy") {
		t.Fatal("expected Seen to report false for a different payload on the same topic")
	}
	if s.Seen("unknown-topic", "sunny") {
		t.Fatal("expected Seen to report false for a topic never stored")
	}
}

func TestPutAndFanOutRunsNotifyUnderTheWriteLock(t *testing.T) {
	s := New(memkv.New())
	order := make([]string, 0, 2)
	readDone := make(chan struct{})
	var got string
	var ok bool

	s.PutAndFanOut("weather", "sunny", func() {
		// notify runs inside the topic's shard write lock, so a reader of
		// the same topic stays blocked until notify returns (calling
		// s.Get directly here would deadlock for that reason).
		go func() {
			got, ok = s.Get("weather")
			close(readDone)
		}()
		select {
		case <-readDone:
			t.Fatal("a reader got through while notify was running; notify is not under the write lock")
		case <-time.After(50 * time.Millisecond):
		}
		order = append(order, "notify")
	})

	<-readDone
	if !ok || got != "sunny" {
		t.Fatalf("reader released after notify saw stale read: got (%q, %v)", got, ok)
	}

	if len(order) != 1 {
		t.Fatalf("expected notify to run exactly once, ran %d times", len(order))
	}
}

func TestLastWriterWinsOverwritesPreviousPayload(t *testing.T) {
	s := New(memkv.New())
	s.Put("weather", "sunny")
	s.Put("weather", "rainy")

	got, ok := s.Get("weather")
	if !ok || got != "rainy" {
		t.Fatalf("expected last write to win: got (%q, %v)", got, ok)
	}
}
