// Package server - Server-Sent Events for real-time progress streaming.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// SSEBroker manages Server-Sent Events connections, keyed by job id.
type SSEBroker struct {
	mu          sync.RWMutex
	subscribers map[int64]map[chan SSEEvent]struct{}
}

// SSEEvent represents an event to send to clients.
type SSEEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
	ID    string      `json:"id,omitempty"`
}

// NewSSEBroker creates a new SSE broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{
		subscribers: make(map[int64]map[chan SSEEvent]struct{}),
	}
}

// Subscribe creates a subscription for a job.
func (b *SSEBroker) Subscribe(jobID int64) chan SSEEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan SSEEvent, 16)
	if b.subscribers[jobID] == nil {
		b.subscribers[jobID] = make(map[chan SSEEvent]struct{})
	}
	b.subscribers[jobID][ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription.
func (b *SSEBroker) Unsubscribe(jobID int64, ch chan SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.subscribers[jobID]; ok {
		if _, present := subs[ch]; present {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(b.subscribers, jobID)
		}
	}
}

// Publish sends an event to all subscribers of a job. Slow subscribers
// lose events rather than block the publisher.
func (b *SSEBroker) Publish(jobID int64, event SSEEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[jobID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// PublishProgress sends a progress update.
func (b *SSEBroker) PublishProgress(jobID int64, progress interface{}) {
	b.Publish(jobID, SSEEvent{
		Event: "progress",
		Data:  progress,
		ID:    fmt.Sprintf("%d", time.Now().UnixNano()),
	})
}

// PublishComplete sends a completion event.
func (b *SSEBroker) PublishComplete(jobID int64, result interface{}) {
	b.Publish(jobID, SSEEvent{
		Event: "complete",
		Data:  result,
		ID:    fmt.Sprintf("%d", time.Now().UnixNano()),
	})
}

// PublishError sends an error event.
func (b *SSEBroker) PublishError(jobID int64, err error) {
	b.Publish(jobID, SSEEvent{
		Event: "error",
		Data:  map[string]string{"error": err.Error()},
		ID:    fmt.Sprintf("%d", time.Now().UnixNano()),
	})
}

// HasSubscribers checks if a job has any subscribers.
func (b *SSEBroker) HasSubscribers(jobID int64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[jobID]) > 0
}

// SSEHandler creates an HTTP handler streaming one job's events. The
// stream closes after the terminal complete or error event.
func (b *SSEBroker) SSEHandler(getJob func(int64) interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := strconv.ParseInt(r.URL.Query().Get("job_id"), 10, 64)
		if err != nil {
			http.Error(w, "job_id required", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "SSE not supported", http.StatusInternalServerError)
			return
		}

		ch := b.Subscribe(jobID)
		defer b.Unsubscribe(jobID, ch)

		if getJob != nil {
			if job := getJob(jobID); job != nil {
				writeSSEEvent(w, SSEEvent{Event: "init", Data: job})
				flusher.Flush()
			}
		}

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				writeSSEEvent(w, event)
				flusher.Flush()

				if event.Event == "complete" || event.Event == "error" {
					return
				}
			}
		}
	}
}

// writeSSEEvent writes an event in SSE wire format.
func writeSSEEvent(w http.ResponseWriter, event SSEEvent) {
	if event.ID != "" {
		fmt.Fprintf(w, "id: %s\n", event.ID)
	}
	fmt.Fprintf(w, "event: %s\n", event.Event)

	data, _ := json.Marshal(event.Data)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
