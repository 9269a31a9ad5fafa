package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() Event {
	return Event{
		Kind:     KindRenewalSucceeded,
		UserID:   7,
		Username: "alice",
		Payload:  map[string]any{"instance_id": "vm-1", "amount": "20.00"},
		At:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Notify(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestLogNotifier(t *testing.T) {
	logger, hook := test.NewNullLogger()
	n := NewLogNotifier(logrus.NewEntry(logger))

	require.NoError(t, n.Notify(context.Background(), sampleEvent()))
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, KindRenewalSucceeded, hook.LastEntry().Data["kind"])
	assert.Equal(t, "vm-1", hook.LastEntry().Data["instance_id"])
}

func TestRedisNotifierPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, "billing.events")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, NewRedisNotifier(rdb, "billing.events").Notify(ctx, sampleEvent()))

	select {
	case msg := <-sub.Channel():
		var got Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, KindRenewalSucceeded, got.Kind)
		assert.Equal(t, uint(7), got.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}

func TestWebhookNotifierSignsBody(t *testing.T) {
	var (
		body      []byte
		signature string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		signature = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "s3cret")
	require.NoError(t, n.Notify(context.Background(), sampleEvent()))

	assert.Equal(t, Sign([]byte("s3cret"), body), signature)
	var got Event
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "alice", got.Username)
}

func TestWebhookNotifierFailsOnErrorStatus(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, "").Notify(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "502")
	assert.EqualValues(t, 3, attempts.Load())
}

func TestWebhookNotifierRetriesServerErrors(t *testing.T) {
	var (
		attempts   atomic.Int32
		mu         sync.Mutex
		signatures []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		signatures = append(signatures, r.Header.Get(SignatureHeader)+":"+Sign([]byte("s3cret"), body))
		mu.Unlock()
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewWebhookNotifier(srv.URL, "s3cret").Notify(context.Background(), sampleEvent()))
	assert.EqualValues(t, 2, attempts.Load())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, signatures, 2)
	for _, s := range signatures {
		parts := strings.SplitN(s, ":", 2)
		assert.Equal(t, parts[1], parts[0], "retried body must match its signature")
	}
}

func TestWebhookNotifierDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, "").Notify(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "400")
	assert.EqualValues(t, 1, attempts.Load())
}

func TestMultiContinuesPastFailures(t *testing.T) {
	boom := errors.New("boom")
	failing := &recorder{err: boom}
	ok := &recorder{}

	err := Multi{failing, ok}.Notify(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1, ok.count())
}

func TestAsyncDeliversAndSwallowsErrors(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sink := &recorder{err: errors.New("down")}
	a := NewAsync(sink, 8, logrus.NewEntry(logger))

	for i := 0; i < 3; i++ {
		assert.NoError(t, a.Notify(context.Background(), sampleEvent()))
	}
	a.Close()

	assert.Equal(t, 3, sink.count())
	assert.Len(t, hook.AllEntries(), 3)

	// After Close events are dropped without blocking
	assert.NoError(t, a.Notify(context.Background(), sampleEvent()))
	assert.Equal(t, 3, sink.count())
}

func TestAsyncDropsWhenFull(t *testing.T) {
	logger, _ := test.NewNullLogger()
	release := make(chan struct{})
	blocking := NotifierFunc(func(context.Context, Event) error {
		<-release
		return nil
	})
	a := NewAsync(blocking, 1, logrus.NewEntry(logger))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = a.Notify(context.Background(), sampleEvent())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
	close(release)
	a.Close()
}
