package router

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestGrowableBuffer_FIFO(t *testing.T) {
	buf := NewGrowableBuffer[int](10, 0)

	for i := 0; i < 5; i++ {
		if !buf.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}

	if buf.Len() != 5 {
		t.Errorf("Len() = %d, want 5", buf.Len())
	}

	for i := 0; i < 5; i++ {
		val, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("received %d, want %d", val, i)
		}
	}

	if _, ok := buf.TryReceive(); ok {
		t.Error("TryReceive() on empty buffer returned true")
	}
}

func TestGrowableBuffer_GrowsUnbounded(t *testing.T) {
	buf := NewGrowableBuffer[int](4, 0)

	for i := 0; i < 100; i++ {
		buf.Send(i)
	}

	stats := buf.Stats()
	if stats.Capacity < 100 {
		t.Errorf("Capacity = %d, want >= 100", stats.Capacity)
	}
	if stats.Dropped != 0 {
		t.Errorf("Dropped = %d, want 0", stats.Dropped)
	}

	got := buf.DrainTo(0)
	for i, v := range got {
		if v != i {
			t.Fatalf("item %d = %d, want %d", i, v, i)
		}
	}
}

func TestGrowableBuffer_CappedDropsOldest(t *testing.T) {
	buf := NewGrowableBuffer[int](2, 8)

	for i := 0; i < 20; i++ {
		buf.Send(i)
	}

	stats := buf.Stats()
	if stats.Capacity != 8 {
		t.Errorf("Capacity = %d, want 8", stats.Capacity)
	}
	if stats.Count != 8 {
		t.Errorf("Count = %d, want 8", stats.Count)
	}
	if stats.Dropped != 12 {
		t.Errorf("Dropped = %d, want 12", stats.Dropped)
	}

	got := buf.DrainTo(0)
	for i, v := range got {
		if want := 12 + i; v != want {
			t.Errorf("item %d = %d, want %d", i, v, want)
		}
	}
}

func TestGrowableBuffer_InitialClampedToMax(t *testing.T) {
	buf := NewGrowableBuffer[int](100, 10)
	if buf.Cap() != 10 {
		t.Errorf("Cap() = %d, want 10", buf.Cap())
	}

	buf = NewGrowableBuffer[int](0, 0)
	if buf.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1", buf.Cap())
	}
}

func TestGrowableBuffer_WrapAroundGrow(t *testing.T) {
	buf := NewGrowableBuffer[int](5, 0)

	// Move head forward so the next grow copies a wrapped region
	for i := 0; i < 3; i++ {
		buf.Send(i)
	}
	for i := 0; i < 3; i++ {
		buf.TryReceive()
	}
	for i := 10; i < 20; i++ {
		buf.Send(i)
	}

	for want := 10; want < 20; want++ {
		val, ok := buf.TryReceive()
		if !ok || val != want {
			t.Fatalf("TryReceive() = (%d, %v), want (%d, true)", val, ok, want)
		}
	}
}

func TestGrowableBuffer_BlockingReceive(t *testing.T) {
	buf := NewGrowableBuffer[int](10, 0)

	got := make(chan int, 1)
	go func() {
		v, _ := buf.Receive()
		got <- v
	}()

	time.Sleep(10 * time.Millisecond)
	buf.Send(42)

	select {
	case v := <-got:
		if v != 42 {
			t.Errorf("Receive() = %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive did not unblock")
	}
}

func TestGrowableBuffer_CloseDrainsThenStops(t *testing.T) {
	buf := NewGrowableBuffer[int](10, 0)
	buf.Send(1)
	buf.Close()

	if buf.Send(2) {
		t.Error("Send after Close returned true")
	}

	if v, ok := buf.Receive(); !ok || v != 1 {
		t.Errorf("Receive() = (%d, %v), want (1, true)", v, ok)
	}
	if _, ok := buf.Receive(); ok {
		t.Error("Receive() on closed empty buffer returned true")
	}
}

func TestGrowableBuffer_ReceiveContext(t *testing.T) {
	buf := NewGrowableBuffer[int](10, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		_, ok := buf.ReceiveContext(ctx)
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Error("ReceiveContext returned an item after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("ReceiveContext did not unblock on cancel")
	}
}

func TestGrowableBuffer_DrainToMax(t *testing.T) {
	buf := NewGrowableBuffer[int](10, 0)
	for i := 0; i < 5; i++ {
		buf.Send(i)
	}

	first := buf.DrainTo(3)
	if len(first) != 3 || first[0] != 0 || first[2] != 2 {
		t.Errorf("DrainTo(3) = %v, want [0 1 2]", first)
	}
	if buf.Len() != 2 {
		t.Errorf("Len() = %d, want 2", buf.Len())
	}
	if got := buf.Stats().TotalSent; got != 3 {
		t.Errorf("TotalSent = %d, want 3", got)
	}
}

func TestGrowableBuffer_Concurrent(t *testing.T) {
	buf := NewGrowableBuffer[int](4, 0)
	const producers, perProducer = 4, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				buf.Send(i)
			}
		}()
	}

	received := 0
	done := make(chan struct{})
	go func() {
		for {
			if _, ok := buf.Receive(); !ok {
				close(done)
				return
			}
			received++
		}
	}()

	wg.Wait()
	buf.Close()
	<-done

	if received != producers*perProducer {
		t.Errorf("received %d, want %d", received, producers*perProducer)
	}
}
