package progress

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastDeliversToSubscribedChannel(t *testing.T) {
	c := &Client{send: make(chan []byte, 4), done: make(chan struct{})}
	subscribe("job-1", c)
	defer unsubscribe("job-1", c)

	Broadcast(Event{JobID: "job-1", Stanza: "main", Status: "running", BytesDone: 10})

	select {
	case payload := <-c.send:
		var ev Event
		require.NoError(t, json.Unmarshal(payload, &ev))
		assert.Equal(t, "job-1", ev.JobID)
		assert.Equal(t, "running", ev.Status)
	default:
		t.Fatal("expected a broadcast message on the client's send channel")
	}
}

func TestBroadcastDeliversToStanzaWildcardChannel(t *testing.T) {
	c := &Client{send: make(chan []byte, 4), done: make(chan struct{})}
	subscribe("*:main", c)
	defer unsubscribe("*:main", c)

	Broadcast(Event{JobID: "job-2", Stanza: "main", Status: "completed"})

	select {
	case payload := <-c.send:
		var ev Event
		require.NoError(t, json.Unmarshal(payload, &ev))
		assert.Equal(t, "job-2", ev.JobID)
	default:
		t.Fatal("expected a broadcast message on the stanza-wide channel")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	c := &Client{send: make(chan []byte, 4), done: make(chan struct{})}
	subscribe("job-3", c)
	unsubscribe("job-3", c)

	Broadcast(Event{JobID: "job-3", Stanza: "main", Status: "running"})

	select {
	case <-c.send:
		t.Fatal("unsubscribed client should not receive broadcasts")
	default:
	}
}

func TestCloseRemovesClientFromAllChannels(t *testing.T) {
	c := &Client{send: make(chan []byte, 4), done: make(chan struct{})}
	subscribe("job-4", c)
	c.Close()

	subscribersMu.RLock()
	_, stillThere := subscribers["job-4"][c]
	subscribersMu.RUnlock()
	assert.False(t, stillThere)
}
