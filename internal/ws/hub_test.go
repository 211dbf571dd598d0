package ws

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/uww-saigusa/messageboard/internal/domain"
)

type chanSubscriber struct {
	ch     chan []byte
	fail   bool
	closed chan struct{}
}

func newChanSubscriber(fail bool) *chanSubscriber {
	return &chanSubscriber{ch: make(chan []byte, 8), fail: fail, closed: make(chan struct{})}
}

func (s *chanSubscriber) Send(payload []byte) error {
	if s.fail {
		return errors.New("broken pipe")
	}
	s.ch <- payload
	return nil
}

func (s *chanSubscriber) Close() {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHubPublishesToAllSubscribers(t *testing.T) {
	hub := NewHub(quietLogger())
	defer hub.Close()

	a, b := newChanSubscriber(false), newChanSubscriber(false)
	hub.Register(a)
	hub.Register(b)

	hub.Publish(domain.MessageEvent{Type: domain.MessageEventCreated, MessageID: 7, Message: &domain.Message{ID: 7, Content: "hi"}})

	for _, sub := range []*chanSubscriber{a, b} {
		select {
		case payload := <-sub.ch:
			var event domain.MessageEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if event.Type != domain.MessageEventCreated || event.MessageID != 7 {
				t.Fatalf("unexpected event %+v", event)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event")
		}
	}
}

func TestHubDropsFailingSubscriber(t *testing.T) {
	hub := NewHub(quietLogger())
	defer hub.Close()

	bad := newChanSubscriber(true)
	good := newChanSubscriber(false)
	hub.Register(bad)
	hub.Register(good)
	hub.Publish(domain.MessageEvent{Type: domain.MessageEventDeleted, MessageID: 1})

	select {
	case <-bad.closed:
	case <-time.After(time.Second):
		t.Fatalf("failing subscriber was not closed")
	}
	select {
	case <-good.ch:
	case <-time.After(time.Second):
		t.Fatalf("healthy subscriber missed the event")
	}
	waitForCount(t, hub, 1)
}

type blockingSubscriber struct {
	release chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (s *blockingSubscriber) Send([]byte) error {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return nil
}

func (s *blockingSubscriber) Close() {}

func TestHubSlowSubscriberDoesNotStallOthers(t *testing.T) {
	hub := NewHub(quietLogger())
	defer hub.Close()

	slow := &blockingSubscriber{release: make(chan struct{}), entered: make(chan struct{})}
	defer close(slow.release)
	hub.Register(slow)
	hub.Publish(domain.MessageEvent{Type: domain.MessageEventCreated, MessageID: 1})

	select {
	case <-slow.entered:
	case <-time.After(time.Second):
		t.Fatalf("slow subscriber never received the event")
	}

	registered := make(chan struct{})
	fast := newChanSubscriber(false)
	go func() {
		hub.Register(fast)
		_ = hub.Subscribers()
		close(registered)
	}()
	select {
	case <-registered:
	case <-time.After(time.Second):
		t.Fatalf("register blocked while a subscriber was mid-send")
	}

	hub.Publish(domain.MessageEvent{Type: domain.MessageEventUpdated, MessageID: 1})
	select {
	case <-fast.ch:
	case <-time.After(time.Second):
		t.Fatalf("fast subscriber starved by slow one")
	}
}

func TestSSEClientTracksActivity(t *testing.T) {
	rec := httptest.NewRecorder()
	client := NewSSEClient(rec, rec, quietLogger())
	before := client.LastActivity()
	time.Sleep(5 * time.Millisecond)
	if err := client.Send([]byte("{}")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !client.LastActivity().After(before) {
		t.Fatalf("last activity not advanced by send")
	}
}

func waitForCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hub.Subscribers() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d subscribers, got %d", want, hub.Subscribers())
}

func TestHubCloseDisconnects(t *testing.T) {
	hub := NewHub(quietLogger())
	sub := newChanSubscriber(false)
	hub.Register(sub)
	hub.Close()

	select {
	case <-sub.closed:
	case <-time.After(time.Second):
		t.Fatalf("subscriber not closed on hub shutdown")
	}
	late := newChanSubscriber(false)
	hub.Register(late)
	select {
	case <-late.closed:
	default:
		t.Fatalf("registering after close should close the subscriber")
	}
	hub.Publish(domain.MessageEvent{Type: domain.MessageEventCreated})
	hub.Unregister(sub)
}

func TestSSEClientFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	client := NewSSEClient(rec, rec, quietLogger())

	if err := client.Send([]byte(`{"type":"message.created"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := client.Heartbeat(); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: message\ndata: {\"type\":\"message.created\"}\n\n") {
		t.Fatalf("unexpected frame %q", body)
	}
	if !strings.HasSuffix(body, ": ping\n\n") {
		t.Fatalf("missing heartbeat in %q", body)
	}

	client.Close()
	select {
	case <-client.Done():
	default:
		t.Fatalf("done channel not closed")
	}
	if err := client.Send([]byte("x")); err != io.EOF {
		t.Fatalf("expected io.EOF after close, got %v", err)
	}
}
