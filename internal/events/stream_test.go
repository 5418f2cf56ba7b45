package events

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() { gin.SetMode(gin.TestMode) }

func newStreamServer(t *testing.T, b *Broadcaster[testEvent], opts StreamOptions) *httptest.Server {
	t.Helper()
	r := gin.New()
	r.GET("/stream", Stream(b, opts))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func openStream(t *testing.T, url string) (*http.Response, *bufio.Reader) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp, bufio.NewReader(resp.Body)
}

// nextFrame returns the next non-empty line.
func nextFrame(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if line != "" {
			return line
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStream_DeliversFilteredEvents(t *testing.T) {
	b := NewBroadcaster[testEvent]("test", nil)
	srv := newStreamServer(t, b, StreamOptions{Keepalive: time.Hour})

	resp, seven := openStream(t, srv.URL+"/stream?employeeId=7")
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if got := nextFrame(t, seven); got != ": connected" {
		t.Fatalf("expected connected comment, got %q", got)
	}
	_, eight := openStream(t, srv.URL+"/stream?employeeId=8")
	if got := nextFrame(t, eight); got != ": connected" {
		t.Fatalf("expected connected comment, got %q", got)
	}

	b.Publish(testEvent{Owner: 8, Seq: 1})
	b.Publish(testEvent{Owner: 7, Seq: 2})

	if got := nextFrame(t, seven); got != `data:{"owner":7,"seq":2}` {
		t.Fatalf("unexpected frame for 7: %q", got)
	}
	if got := nextFrame(t, eight); got != `data:{"owner":8,"seq":1}` {
		t.Fatalf("unexpected frame for 8: %q", got)
	}
}

func TestStream_SendsKeepalive(t *testing.T) {
	b := NewBroadcaster[testEvent]("test", nil)
	srv := newStreamServer(t, b, StreamOptions{Keepalive: 20 * time.Millisecond})

	_, r := openStream(t, srv.URL+"/stream")
	if got := nextFrame(t, r); got != ": connected" {
		t.Fatalf("expected connected comment, got %q", got)
	}
	if got := nextFrame(t, r); got != ": ping" {
		t.Fatalf("expected ping, got %q", got)
	}
}

func TestStream_ClientDisconnectUnregisters(t *testing.T) {
	b := NewBroadcaster[testEvent]("test", nil)
	srv := newStreamServer(t, b, StreamOptions{Keepalive: 10 * time.Millisecond})

	resp, r := openStream(t, srv.URL+"/stream")
	nextFrame(t, r)
	if b.Len() != 1 {
		t.Fatalf("expected one subscriber, got %d", b.Len())
	}
	_ = resp.Body.Close()
	waitFor(t, func() bool { return b.Len() == 0 })
}

func TestStream_CloseAllEndsStream(t *testing.T) {
	b := NewBroadcaster[testEvent]("test", nil)
	srv := newStreamServer(t, b, StreamOptions{Keepalive: time.Hour})

	_, r := openStream(t, srv.URL+"/stream")
	nextFrame(t, r)
	b.CloseAll()

	done := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(r)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean end of stream, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("stream still open after CloseAll")
	}
}

func TestStream_RejectsInvalidFilter(t *testing.T) {
	b := NewBroadcaster[testEvent]("test", nil)
	r := gin.New()
	r.GET("/stream", Stream(b, StreamOptions{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream?employeeId=abc", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if b.Len() != 0 {
		t.Fatalf("expected no subscriber registered")
	}
}

type fakeSlots struct {
	mu         sync.Mutex
	limit      int
	held       map[string]int
	released   int
	refreshes  int
	acquireErr error
}

func (s *fakeSlots) Acquire(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquireErr != nil {
		return false, s.acquireErr
	}
	if s.held[id] >= s.limit {
		return false, nil
	}
	s.held[id]++
	return true, nil
}

func (s *fakeSlots) Refresh(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	return nil
}

func (s *fakeSlots) Refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

func (s *fakeSlots) Release(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held[id]--
	s.released++
	return nil
}

func (s *fakeSlots) Released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func TestStream_EnforcesSlotLimit(t *testing.T) {
	b := NewBroadcaster[testEvent]("test", nil)
	slots := &fakeSlots{limit: 1, held: map[string]int{}}
	srv := newStreamServer(t, b, StreamOptions{
		Keepalive: time.Hour,
		Slots:     slots,
		SlotKey:   func(c *gin.Context) string { return "user-1" },
	})

	first, r := openStream(t, srv.URL+"/stream")
	nextFrame(t, r)

	second, err := http.Get(srv.URL + "/stream")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.StatusCode)
	}

	_ = first.Body.Close()
	waitFor(t, func() bool { return slots.Released() == 1 })
}

func TestStream_RefreshesHeldSlotOnPing(t *testing.T) {
	b := NewBroadcaster[testEvent]("test", nil)
	slots := &fakeSlots{limit: 1, held: map[string]int{}}
	srv := newStreamServer(t, b, StreamOptions{
		Keepalive: 10 * time.Millisecond,
		Slots:     slots,
		SlotKey:   func(c *gin.Context) string { return "user-1" },
	})

	_, r := openStream(t, srv.URL+"/stream")
	nextFrame(t, r)
	nextFrame(t, r)
	nextFrame(t, r)
	waitFor(t, func() bool { return slots.Refreshes() >= 1 })
}

func TestStream_AcquireFailureSkipsRefresh(t *testing.T) {
	b := NewBroadcaster[testEvent]("test", nil)
	slots := &fakeSlots{limit: 1, held: map[string]int{}, acquireErr: errors.New("redis down")}
	srv := newStreamServer(t, b, StreamOptions{
		Keepalive: 10 * time.Millisecond,
		Slots:     slots,
		SlotKey:   func(c *gin.Context) string { return "user-1" },
	})

	resp, r := openStream(t, srv.URL+"/stream")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected stream to open without a slot, got %d", resp.StatusCode)
	}
	if got := nextFrame(t, r); got != ": connected" {
		t.Fatalf("expected connected comment, got %q", got)
	}
	for i := 0; i < 3; i++ {
		if got := nextFrame(t, r); got != ": ping" {
			t.Fatalf("expected ping, got %q", got)
		}
	}
	_ = resp.Body.Close()
	waitFor(t, func() bool { return b.Len() == 0 })
	if slots.Refreshes() != 0 || slots.Released() != 0 {
		t.Fatalf("expected no refresh or release without a slot, got %d/%d", slots.Refreshes(), slots.Released())
	}
}
