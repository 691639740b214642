// File: internal/browser/statusslot_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusSlotStartsUnknown(t *testing.T) {
	slot := &StatusSlot{path: "captcha.do"}
	_, ok := slot.Status()
	assert.False(t, ok)
}

func TestStatusSlotObserveThenStatus(t *testing.T) {
	slot := &StatusSlot{path: "captcha.do"}
	slot.Observe(200)

	status, ok := slot.Status()
	require.True(t, ok)
	assert.Equal(t, 200, status)
}

func TestStatusSlotResetHidesEarlierObservation(t *testing.T) {
	slot := &StatusSlot{path: "zhzxgk"}
	slot.Observe(502)

	slot.Reset()
	_, ok := slot.Status()
	assert.False(t, ok, "pre-reset observation must not be visible")

	slot.Observe(200)
	status, ok := slot.Status()
	require.True(t, ok)
	assert.Equal(t, 200, status)
}

func TestStatusSlotWaitReturnsObservedStatus(t *testing.T) {
	slot := &StatusSlot{path: "zhzxgk"}
	slot.Reset()

	go func() {
		time.Sleep(20 * time.Millisecond)
		slot.Observe(502)
	}()

	status, ok := slot.Wait(context.Background(), 5*time.Millisecond, time.Second)
	require.True(t, ok)
	assert.Equal(t, 502, status)
}

func TestStatusSlotWaitTimesOut(t *testing.T) {
	slot := &StatusSlot{path: "zhzxgk"}
	slot.Reset()

	start := time.Now()
	_, ok := slot.Wait(context.Background(), 5*time.Millisecond, 30*time.Millisecond)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStatusSlotWaitHonorsContext(t *testing.T) {
	slot := &StatusSlot{path: "zhzxgk"}
	slot.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := slot.Wait(ctx, 5*time.Millisecond, time.Minute)
	assert.False(t, ok)
}
