package batteria_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	Bs "github.com/maroda/batteria/server"
	Bt "github.com/maroda/batteria/types"
)

func makeFrame(ts float64) Bt.Frame {
	return Bt.Frame{Payload: []byte("jpeg-bytes"), Timestamp: ts}
}

func TestFrameBuffer_Add(t *testing.T) {
	now := 100.0
	clock := func() float64 { return now }

	t.Run("Evicts frames older than the window", func(t *testing.T) {
		fb := Bs.NewFrameBufferWithClock(2*time.Second, 20, clock)
		fb.Add(makeFrame(97.0))
		fb.Add(makeFrame(98.5))
		fb.Add(makeFrame(99.5))
		assertInt(t, fb.Size(), 2)
	})

	t.Run("Never evicts the sole remaining frame", func(t *testing.T) {
		fb := Bs.NewFrameBufferWithClock(2*time.Second, 20, clock)
		fb.Add(makeFrame(90.0)) // long stale
		assertInt(t, fb.Size(), 1)

		latest, ok := fb.Latest()
		if !ok {
			t.Fatal("expected a frame to survive")
		}
		assertFloat64(t, latest.Timestamp, 90.0)
	})

	t.Run("Caps the count, oldest dropped first", func(t *testing.T) {
		fb := Bs.NewFrameBufferWithClock(2*time.Second, 5, clock)
		for i := 0; i < 8; i++ {
			fb.Add(makeFrame(99.0 + float64(i)*0.1))
		}
		assertInt(t, fb.Size(), 5)

		latest, _ := fb.Latest()
		assertFloat64(t, latest.Timestamp, 99.7)
	})

	t.Run("Fills a zero timestamp from the clock", func(t *testing.T) {
		fb := Bs.NewFrameBufferWithClock(2*time.Second, 20, clock)
		fb.Add(Bt.Frame{Payload: []byte("x")})

		latest, _ := fb.Latest()
		assertFloat64(t, latest.Timestamp, now)
	})
}

func TestFrameBuffer_Latest(t *testing.T) {
	fb := Bs.NewFrameBufferWithClock(time.Minute, 20, func() float64 { return 100.0 })

	t.Run("Empty buffer reports no frame", func(t *testing.T) {
		_, ok := fb.Latest()
		if ok {
			t.Error("expected no frame from an empty buffer")
		}
	})

	t.Run("Returns the maximum timestamp retained", func(t *testing.T) {
		fb.Add(makeFrame(98.0))
		fb.Add(makeFrame(99.0))
		fb.Add(makeFrame(99.9))

		latest, ok := fb.Latest()
		if !ok {
			t.Fatal("expected a frame")
		}
		assertFloat64(t, latest.Timestamp, 99.9)
	})
}

func TestFrameBuffer_AtTime(t *testing.T) {
	fb := Bs.NewFrameBufferWithClock(time.Hour, 20, func() float64 { return 30.0 })
	fb.Add(makeFrame(10.0))
	fb.Add(makeFrame(20.0))
	fb.Add(makeFrame(30.0))

	t.Run("Returns the closest frame", func(t *testing.T) {
		f, ok := fb.AtTime(19.0)
		if !ok {
			t.Fatal("expected a frame")
		}
		assertFloat64(t, f.Timestamp, 20.0)
	})

	t.Run("Ties resolve to the earliest inserted", func(t *testing.T) {
		f, _ := fb.AtTime(15.0)
		assertFloat64(t, f.Timestamp, 10.0)
	})

	t.Run("Empty buffer reports no frame", func(t *testing.T) {
		empty := Bs.NewFrameBuffer(0, 0)
		_, ok := empty.AtTime(15.0)
		if ok {
			t.Error("expected no frame from an empty buffer")
		}
	})
}

func TestFrameBuffer_Clear(t *testing.T) {
	fb := Bs.NewFrameBufferWithClock(time.Minute, 20, func() float64 { return 100.0 })
	fb.Add(makeFrame(99.0))
	fb.Add(makeFrame(99.5))

	fb.Clear()
	assertInt(t, fb.Size(), 0)
}

// Shared assert helpers for the package tests

func assertError(t testing.TB, got, want error) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Errorf("got error %q want %q", got, want)
	}
}

func assertGotError(t testing.TB, got error) {
	t.Helper()
	if got == nil {
		t.Errorf("Expected an error but got %q", got)
	}
}

func assertInt(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("did not get correct value, got %d, want %d", got, want)
	}
}

func assertInt64(t *testing.T, got, want int64) {
	t.Helper()
	if got != want {
		t.Errorf("did not get correct value, got %d, want %d", got, want)
	}
}

func assertFloat64(t *testing.T, got, want float64) {
	t.Helper()
	diff := got - want
	if diff < -1e-9 || diff > 1e-9 {
		t.Errorf("did not get correct value, got %f, want %f", got, want)
	}
}

func assertString(t *testing.T, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func assertStringContains(t *testing.T, full, want string) {
	t.Helper()
	if !strings.Contains(full, want) {
		t.Errorf("Did not find %q, expected string contains %q", want, full)
	}
}
