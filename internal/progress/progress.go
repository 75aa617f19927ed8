// Package progress broadcasts backup/restore progress events to connected
// websocket clients, the way the teacher's socket package fans redis pubsub
// updates out to subscribed clients: one Client per connection, a send
// channel drained by a writePump goroutine, and a channel->subscriber map
// protected by a single mutex.
package progress

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is one progress update for a running backup/restore job.
type Event struct {
	JobID       string  `json:"jobId"`
	Stanza      string  `json:"stanza"`
	Path        string  `json:"path,omitempty"`
	Status      string  `json:"status"` // queued|running|completed|error|cancelled
	BytesDone   int64   `json:"bytesDone"`
	BytesTotal  int64   `json:"bytesTotal"`
	Message     string  `json:"message,omitempty"`
	HitRatio    float64 `json:"hitRatio,omitempty"`
}

// Client is one websocket connection subscribed to zero or more job
// channels (channel name == job ID, or "*:<stanza>" for every job under a
// stanza).
type Client struct {
	ws   *websocket.Conn
	mu   sync.Mutex
	send chan []byte
	done chan struct{}
}

var (
	subscribersMu sync.RWMutex
	subscribers   = make(map[string]map[*Client]bool)
)

// NewClient wraps an accepted websocket connection and starts its write
// pump; callers are expected to run readPump-equivalent logic themselves by
// calling ReadSubscription in a loop until the connection closes.
func NewClient(ws *websocket.Conn) *Client {
	c := &Client{
		ws:   ws,
		send: make(chan []byte, 32),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *Client) writePump() {
	defer c.ws.Close()
	for message := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// subscriptionMessage is the shape of a client's subscribe/unsubscribe
// control frame.
type subscriptionMessage struct {
	Action  string `json:"action"` // subscribe|unsubscribe
	Channel string `json:"channel"`
}

// ReadSubscription blocks for the next control frame from the client and
// applies it; callers loop this until it returns an error, mirroring the
// teacher's readPump loop.
func (c *Client) ReadSubscription() error {
	_, message, err := c.ws.ReadMessage()
	if err != nil {
		c.Close()
		return err
	}

	var msg subscriptionMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Printf("progress: invalid subscription message: %v", err)
		return nil
	}

	switch msg.Action {
	case "subscribe":
		subscribe(msg.Channel, c)
	case "unsubscribe":
		unsubscribe(msg.Channel, c)
	default:
		log.Printf("progress: unknown subscription action %q", msg.Action)
	}
	return nil
}

// Close removes the client from every channel and stops its write pump.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}

	subscribersMu.Lock()
	for channel, clients := range subscribers {
		delete(clients, c)
		if len(clients) == 0 {
			delete(subscribers, channel)
		}
	}
	subscribersMu.Unlock()

	close(c.send)
}

func subscribe(channel string, c *Client) {
	subscribersMu.Lock()
	defer subscribersMu.Unlock()
	if subscribers[channel] == nil {
		subscribers[channel] = make(map[*Client]bool)
	}
	subscribers[channel][c] = true
}

func unsubscribe(channel string, c *Client) {
	subscribersMu.Lock()
	defer subscribersMu.Unlock()
	if clients, ok := subscribers[channel]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(subscribers, channel)
		}
	}
}

// Broadcast sends a progress event to every client subscribed to the
// event's job ID channel and to the stanza-wide "*:<stanza>" channel.
func Broadcast(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("progress: failed to marshal event: %v", err)
		return
	}
	broadcastToChannel(ev.JobID, payload)
	broadcastToChannel("*:"+ev.Stanza, payload)
}

func broadcastToChannel(channel string, payload []byte) {
	subscribersMu.RLock()
	defer subscribersMu.RUnlock()
	for c := range subscribers[channel] {
		select {
		case c.send <- payload:
		default:
			// client too slow, drop this update rather than block the
			// broadcaster
		}
	}
}
