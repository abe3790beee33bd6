package expiry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerWheelFires(t *testing.T) {
	w := NewTimerWheel()
	defer w.Close()

	w.Set("a", time.Now().Add(20*time.Millisecond))

	select {
	case ev := <-w.Events():
		require.Equal(t, "a", ev.Target)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for expiry")
	}
}

func TestTimerWheelDelCancels(t *testing.T) {
	w := NewTimerWheel()
	defer w.Close()

	w.Set("a", time.Now().Add(30*time.Millisecond))
	w.Del("a")

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected expiry for deleted target: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}
