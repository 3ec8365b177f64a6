package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/interfaces"
)

func TestPublishSubscribe(t *testing.T) {
	service := NewService(arbor.NewLogger())
	defer service.Close()

	ch, cancel := service.Subscribe()
	defer cancel()

	service.Publish(interfaces.Event{
		Type:       interfaces.EventDocumentReady,
		SessionID:  "session_1",
		DocumentID: "doc_1",
	})

	select {
	case event := <-ch:
		assert.Equal(t, interfaces.EventDocumentReady, event.Type)
		assert.Equal(t, "doc_1", event.DocumentID)
		assert.False(t, event.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}
}

func TestPublish_NoSubscribers(t *testing.T) {
	service := NewService(arbor.NewLogger())
	defer service.Close()

	// Must not block or panic
	service.Publish(interfaces.Event{Type: interfaces.EventTurnCompleted})
}

func TestPublish_SlowSubscriberDoesNotBlock(t *testing.T) {
	service := NewService(arbor.NewLogger())
	defer service.Close()

	_, cancel := service.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		// Overfill the subscriber buffer; excess events are dropped
		for i := 0; i < subscriberBuffer*2; i++ {
			service.Publish(interfaces.Event{Type: interfaces.EventDocumentProcessing})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestCancelClosesChannel(t *testing.T) {
	service := NewService(arbor.NewLogger())
	defer service.Close()

	ch, cancel := service.Subscribe()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Events after cancel are not delivered anywhere
	service.Publish(interfaces.Event{Type: interfaces.EventDocumentUploaded})
}

func TestClose(t *testing.T) {
	service := NewService(arbor.NewLogger())

	ch, _ := service.Subscribe()
	service.Close()

	_, open := <-ch
	require.False(t, open)

	// Subscribe after close yields a closed channel
	late, cancel := service.Subscribe()
	defer cancel()
	_, open = <-late
	assert.False(t, open)
}
