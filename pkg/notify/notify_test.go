package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func TestNewEvent(t *testing.T) {
	at := time.Date(2024, 3, 1, 2, 0, 5, 0, time.UTC)

	e := NewEvent(true, "deepstore:store", at)
	if e.Status != StatusSuccess || e.Command != "deepstore:store" || e.Time != "2024-03-01 02:00:05" {
		t.Errorf("NewEvent() = %+v", e)
	}
	if NewEvent(false, "x", at).Status != StatusFailed {
		t.Error("failed run should report failed")
	}
}

func TestWebhook_Notify(t *testing.T) {
	var got Event
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewEvent(true, "deepstore:store", time.Now())
	e.Archive = "archive_2024-03-01.tar.gz"

	if err := NewWebhook(srv.URL, time.Second).Notify(context.Background(), e); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if got != e {
		t.Errorf("received %+v, want %+v", got, e)
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
}

func TestWebhook_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhook(srv.URL, time.Second).Notify(context.Background(), Event{}); err == nil {
		t.Error("Notify() should fail on 502")
	}
}

func TestWebhook_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	if err := NewWebhook(srv.URL, 50*time.Millisecond).Notify(context.Background(), Event{}); err == nil {
		t.Error("Notify() should time out")
	}
}

type recordingNotifier struct {
	events []Event
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestMulti_Notify(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingNotifier{err: boom}
	b := &recordingNotifier{}

	err := Multi{a, b}.Notify(context.Background(), Event{Status: StatusSuccess})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("events delivered: a=%d b=%d", len(a.events), len(b.events))
	}

	if err := (Multi{}).Notify(context.Background(), Event{}); err != nil {
		t.Errorf("empty Multi error = %v", err)
	}
}

func TestNATS_Notify(t *testing.T) {
	url := os.Getenv("DEEPSTORE_TEST_NATS_URL")
	if url == "" {
		t.Skip("DEEPSTORE_TEST_NATS_URL not set")
	}

	sub, err := nats.Connect(url)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	msgs := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe("deepstore.test.runs", msgs)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Unsubscribe()
	sub.Flush()

	n := NewNATS(url, "deepstore.test.runs")
	defer n.Close()

	want := NewEvent(true, "deepstore:store", time.Now())
	if err := n.Notify(context.Background(), want); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	select {
	case msg := <-msgs:
		var got Event
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("received %+v, want %+v", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event not received")
	}
}
