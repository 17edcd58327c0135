package events_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdelaney/catsync/internal/events"
	"github.com/mdelaney/catsync/internal/models"
)

func newBus() *events.Bus {
	var buf bytes.Buffer
	return events.NewBus(events.NewTestLogger(events.DebugLevel, "json", &buf))
}

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := newBus()

	ch1, cancel1 := bus.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	bus.Publish(events.Event{
		Type:     events.CategoryCreated,
		Category: &models.Category{ID: "c1", Name: "Research"},
	})

	for _, ch := range []<-chan events.Event{ch1, ch2} {
		select {
		case evt := <-ch:
			assert.Equal(t, events.CategoryCreated, evt.Type)
			require.NotNil(t, evt.Category)
			assert.Equal(t, "c1", evt.Category.ID)
			assert.False(t, evt.Time.IsZero(), "publish stamps the event time")
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBusCancelStopsDelivery(t *testing.T) {
	bus := newBus()

	ch, cancel := bus.Subscribe()
	cancel()

	// A closed subscription reads the zero value immediately.
	evt, ok := <-ch
	assert.False(t, ok)
	assert.Empty(t, evt.Type)

	// Cancel twice is safe, and publishing after cancel must not panic.
	cancel()
	bus.Publish(events.Event{Type: events.CategoryDeleted})
}

func TestBusSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := newBus()

	// Never drained: fills up and then drops.
	_, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			bus.Publish(events.Event{Type: events.CategoryUpdated})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
