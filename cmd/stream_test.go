package cmd

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/touchstream/spoke/internal/device"
)

func TestOfferLatestDeliversValue(t *testing.T) {
	ch := make(chan device.Config, 1)
	offerLatest(ch, device.Config{DeviceID: "one"})

	select {
	case got := <-ch:
		if got.DeviceID != "one" {
			t.Errorf("DeviceID = %q, want one", got.DeviceID)
		}
	default:
		t.Fatal("no config delivered")
	}
}

func TestOfferLatestDisplacesStaleValue(t *testing.T) {
	ch := make(chan device.Config, 1)

	// Two reloads before the loop gets to read: only the newest config
	// may survive, the comparison against the live command happens on
	// the receiving side.
	offerLatest(ch, device.Config{VideoBitrate: "4000k"})
	offerLatest(ch, device.Config{VideoBitrate: "6000k"})

	got := <-ch
	if got.VideoBitrate != "6000k" {
		t.Errorf("VideoBitrate = %q, want the newest 6000k", got.VideoBitrate)
	}
	select {
	case stale := <-ch:
		t.Errorf("stale config left in channel: %+v", stale)
	default:
	}
}

func TestOfferLatestNeverBlocks(t *testing.T) {
	ch := make(chan device.Config, 1)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			offerLatest(ch, device.Config{Framerate: strconv.Itoa(n)})
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("offerLatest blocked under concurrent publishes")
	}

	// Exactly one value remains deliverable.
	select {
	case <-ch:
	default:
		t.Error("expected one config left in channel")
	}
}
