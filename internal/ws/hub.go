package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/uww-saigusa/messageboard/internal/domain"
)

const (
	broadcastBuffer = 64
	peerBuffer      = 16
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// peer owns the outbound queue of one subscriber. Only the run loop enqueues
// to or closes queue.
type peer struct {
	sub   Subscriber
	queue chan []byte
}

// Hub fans message events out to every connected subscriber. Each subscriber
// is written from its own goroutine so a slow connection never stalls the hub.
type Hub struct {
	mu        sync.RWMutex
	peers     map[Subscriber]*peer
	register  chan Subscriber
	unreg     chan Subscriber
	broadcast chan []byte
	done      chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
}

// NewHub creates a running Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		peers:     make(map[Subscriber]*peer),
		register:  make(chan Subscriber),
		unreg:     make(chan Subscriber),
		broadcast: make(chan []byte, broadcastBuffer),
		done:      make(chan struct{}),
		log:       logger,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if _, ok := h.peers[c]; ok {
				h.mu.Unlock()
				continue
			}
			p := &peer{sub: c, queue: make(chan []byte, peerBuffer)}
			h.peers[c] = p
			h.mu.Unlock()
			go h.writePump(p)
		case c := <-h.unreg:
			h.drop(c)
		case payload := <-h.broadcast:
			h.mu.RLock()
			var slow []Subscriber
			for c, p := range h.peers {
				select {
				case p.queue <- payload:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				h.log.Warn("feed subscriber too slow, disconnecting")
				h.drop(c)
				c.Close()
			}
		case <-h.done:
			h.mu.Lock()
			for c, p := range h.peers {
				close(p.queue)
				c.Close()
				delete(h.peers, c)
			}
			h.mu.Unlock()
			return
		}
	}
}

// drop forgets a subscriber and stops its writer. Called only from run.
func (h *Hub) drop(c Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.peers[c]; ok {
		close(p.queue)
		delete(h.peers, c)
	}
}

func (h *Hub) writePump(p *peer) {
	failed := false
	for payload := range p.queue {
		if failed {
			continue
		}
		if err := p.sub.Send(payload); err != nil {
			failed = true
			p.sub.Close()
			go h.Unregister(p.sub)
		}
	}
}

// Register adds a client to the feed.
func (h *Hub) Register(client Subscriber) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(client Subscriber) {
	select {
	case h.unreg <- client:
	case <-h.done:
	}
}

// Publish encodes event and queues it for every subscriber. Events are dropped
// when the queue is full so writers never block on slow readers.
func (h *Hub) Publish(event domain.MessageEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("encode message event", "error", err)
		return
	}
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- payload:
	default:
		h.log.Warn("message feed backlog full, dropping event", "type", event.Type, "message_id", event.MessageID)
	}
}

// Subscribers reports the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Close disconnects every subscriber and stops the hub.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
