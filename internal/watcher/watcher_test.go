package watcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_DispatchesInRegistrationOrder(t *testing.T) {
	w := New()
	var calls []string

	w.AddListener(func(chunk string) bool {
		calls = append(calls, "first:"+chunk)
		return false
	})
	w.AddListener(func(chunk string) bool {
		calls = append(calls, "second:"+chunk)
		return true
	})

	matched := w.Emit("line")

	assert.Equal(t, 1, matched)
	assert.Equal(t, []string{"first:line", "second:line"}, calls)
}

func TestWatcher_RemoveListener(t *testing.T) {
	w := New()
	count := 0
	h := w.AddListener(func(string) bool {
		count++
		return false
	})

	w.Emit("a")
	require.True(t, w.RemoveListener(h))
	w.Emit("b")

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, w.Len())
	assert.False(t, w.RemoveListener(h), "second removal reports missing handle")
}

func TestWatcher_NoReplay(t *testing.T) {
	w := New()
	w.Emit(": Done (1.0s)")

	var seen []string
	w.AddListener(func(chunk string) bool {
		seen = append(seen, chunk)
		return false
	})
	w.Emit("later")

	assert.Equal(t, []string{"later"}, seen)
}

func TestWatcher_ListenerRemovesItself(t *testing.T) {
	w := New()
	var h Handle
	hits := 0
	h = w.AddListener(func(chunk string) bool {
		if !strings.Contains(chunk, "Saved") {
			return false
		}
		hits++
		w.RemoveListener(h)
		return true
	})

	w.Emit("Saving...")
	w.Emit("Saved the game")
	w.Emit("Saved the game")

	assert.Equal(t, 1, hits)
	assert.Equal(t, 0, w.Len())
}

func TestWatcher_PanickingListenerDoesNotBlockOthers(t *testing.T) {
	w := New()
	reached := false
	w.AddListener(func(string) bool { panic("boom") })
	w.AddListener(func(string) bool {
		reached = true
		return true
	})

	matched := w.Emit("x")

	assert.True(t, reached)
	assert.Equal(t, 1, matched)
}

func TestWatcher_HandlesAreUnique(t *testing.T) {
	w := New()
	h1 := w.AddListener(func(string) bool { return false })
	h2 := w.AddListener(func(string) bool { return false })

	assert.NotEqual(t, h1, h2)
	assert.NotZero(t, h1)

	w.Clear()
	assert.Equal(t, 0, w.Len())
}
