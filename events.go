package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fileEventMessage notifies viewers that the generated directory
// gained a new structure file.
type fileEventMessage struct {
	Type string `json:"type"` // "file_added"
	Name string `json:"name"`
}

// eventHub fans file events out to connected SSE clients. Slow
// clients are skipped rather than blocking the broadcaster.
type eventHub struct {
	mu      sync.RWMutex
	clients map[chan string]bool
}

func newEventHub() *eventHub {
	return &eventHub{clients: make(map[chan string]bool)}
}

func (h *eventHub) subscribe() chan string {
	ch := make(chan string, 10) // buffer bursts of generator output
	h.mu.Lock()
	h.clients[ch] = true
	h.mu.Unlock()
	return ch
}

func (h *eventHub) unsubscribe(ch chan string) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *eventHub) broadcast(msg string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *eventHub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleEvents streams file events to the viewer over SSE so listings
// refresh without polling.
func (a *app) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Printf("SSE error: ResponseWriter doesn't support flushing")
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := a.hub.subscribe()
	defer a.hub.unsubscribe(ch)

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg := <-ch:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// watchGenerated watches the generated directory and broadcasts a
// file_added event for every new CIF. Watching is best-effort: if the
// watcher cannot start, listings still work, they just don't refresh
// live.
func (a *app) watchGenerated(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(a.cfg.GeneratedDir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Create != fsnotify.Create {
					continue
				}
				name := filepath.Base(event.Name)
				if !strings.HasSuffix(strings.ToLower(name), cifExtension) {
					continue
				}
				a.broadcastFileAdded(name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("Watcher error: %v", err)
			}
		}
	}()
	return nil
}

func (a *app) broadcastFileAdded(name string) {
	msg, err := json.Marshal(fileEventMessage{Type: "file_added", Name: name})
	if err != nil {
		log.Printf("Error marshaling file event: %v", err)
		return
	}
	a.hub.broadcast(string(msg))
}
