package events

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	id, ch := b.Subscribe()
	if b.Subscribers() != 1 {
		t.Fatalf("Subscribers() = %d, want 1", b.Subscribers())
	}

	if err := b.Publish(TypeRunStarted, map[string]string{"run_id": "r1"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	evt := <-ch
	if evt.Type != TypeRunStarted || string(evt.Data) != `{"run_id":"r1"}` {
		t.Fatalf("event = %s %s", evt.Type, evt.Data)
	}

	b.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open after Unsubscribe")
	}
	b.Unsubscribe(id)
	if b.Subscribers() != 0 {
		t.Fatalf("Subscribers() = %d, want 0", b.Subscribers())
	}
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker()
	_, _ = b.Subscribe()
	for i := 0; i < subscriberBufSize+3; i++ {
		if err := b.Publish(TypeRunFinished, i); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if got := b.Dropped(); got != 3 {
		t.Fatalf("Dropped() = %d, want 3", got)
	}
}

func TestBrokerPublishRejectsUnencodable(t *testing.T) {
	if err := NewBroker().Publish(TypeRunStarted, func() {}); err == nil {
		t.Fatalf("Publish(func) error = nil")
	}
}

func TestHandlerStreamsFilteredEvents(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(Handler(b))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?types="+TypeRunFinished, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for b.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("handler never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := b.Publish(TypeRunStarted, map[string]string{"run_id": "skip"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := b.Publish(TypeRunFinished, map[string]string{"run_id": "keep"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" && len(lines) > 0 {
			break
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	got := strings.Join(lines, "\n")
	want := "event: run.finished\ndata: {\"run_id\":\"keep\"}"
	if got != want {
		t.Fatalf("stream = %q, want %q", got, want)
	}
}

func TestBrokerCloseEndsSubscriptions(t *testing.T) {
	b := NewBroker()
	_, ch := b.Subscribe()
	b.Close()
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open after Close")
	}
	if err := b.Publish(TypeRunStarted, 1); err != nil {
		t.Fatalf("Publish() after Close error = %v", err)
	}
	if _, late := b.Subscribe(); func() bool { _, ok := <-late; return ok }() {
		t.Fatalf("Subscribe() after Close returned an open channel")
	}
	b.Close()
}

func TestShutdownDoesNotWaitForOpenStreams(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewUnstartedServer(Handler(b))
	srv.Config.RegisterOnShutdown(b.Close)
	srv.Start()
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	deadline := time.Now().Add(2 * time.Second)
	for b.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("handler never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	start := time.Now()
	if err := srv.Config.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v after %s", err, time.Since(start))
	}
}
