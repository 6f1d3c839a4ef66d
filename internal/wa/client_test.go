package wa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(url string, attempts int) *Client {
	return NewClient(url, ClientOptions{
		Attempts:  attempts,
		BaseDelay: time.Millisecond,
	}, zerolog.Nop())
}

func TestSendTextSuccess(t *testing.T) {
	var body sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		json.NewEncoder(w).Encode(map[string]string{"messageId": "ABC123"})
	}))
	defer srv.Close()

	id, err := testClient(srv.URL, 3).SendText(context.Background(), "+60123456789", "hello")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", id)
	assert.Equal(t, "60123456789@s.whatsapp.net", body.To)
	assert.Equal(t, "hello", body.Message)
}

func TestSendTextRetriesThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 3).SendText(context.Background(), "+60123456789", "hello")
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

// The wait before retry n is baseDelay * n: attempt gaps grow linearly.
func TestSendTextLinearBackoffSpacing(t *testing.T) {
	const base = 25 * time.Millisecond

	var mu sync.Mutex
	var arrivals []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, ClientOptions{Attempts: 3, BaseDelay: base}, zerolog.Nop())
	_, err := c.SendText(context.Background(), "+60123456789", "hello")
	require.Error(t, err)

	require.Len(t, arrivals, 3)
	assert.GreaterOrEqual(t, arrivals[1].Sub(arrivals[0]), base)
	assert.GreaterOrEqual(t, arrivals[2].Sub(arrivals[1]), 2*base)
}

func TestSendTextExhaustsRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 3).SendText(context.Background(), "+60123456789", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestSendTextEmptyResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	id, err := testClient(srv.URL, 1).SendText(context.Background(), "+60123456789", "hello")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestSendTextContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(srv.URL, 3).SendText(ctx, "+60123456789", "hello")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSendTextInvalidRecipient(t *testing.T) {
	_, err := testClient("http://localhost:0", 1).SendText(context.Background(), "", "hello")
	require.Error(t, err)
}
