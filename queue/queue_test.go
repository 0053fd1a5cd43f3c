package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/oceanic-systems/s2c-middleware/queue"
)

func TestPushPopOrderIsFIFO(t *testing.T) {
	q := queue.New[int]("test-fifo", 4)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := q.Push(ctx, i); err != nil {
			t.Fatalf("Push(%d): %v", i, err)
		}
	}
	for i := 0; i < 4; i++ {
		v, ok := q.Pop(ctx)
		if !ok {
			t.Fatalf("Pop() returned ok=false at i=%d", i)
		}
		if v != i {
			t.Errorf("Pop() = %d, want %d", v, i)
		}
	}
}

func TestPushBlocksWhenFull(t *testing.T) {
	q := queue.New[int]("test-full", 1)
	ctx := context.Background()
	if err := q.Push(ctx, 1); err != nil {
		t.Fatal(err)
	}

	ctx2, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := q.Push(ctx2, 2); err == nil {
		t.Error("expected Push to block and time out on a full queue")
	}
}

func TestPopHonorsContextCancellation(t *testing.T) {
	q := queue.New[int]("test-empty", 4)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, ok := q.Pop(ctx); ok {
		t.Error("expected Pop on an empty queue to report ok=false once ctx expires")
	}
}

func TestLenTracksBuffered(t *testing.T) {
	q := queue.New[string]("test-len", 4)
	ctx := context.Background()
	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", q.Len())
	}
	q.Push(ctx, "a")
	q.Push(ctx, "b")
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
}
