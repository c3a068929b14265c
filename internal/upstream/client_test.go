package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/denkond/hrgate/internal/errs"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

func testPoll(attempts uint64) PollPolicy {
	return PollPolicy{Base: time.Millisecond, Cap: 2 * time.Millisecond, Attempts: attempts}
}

func newTestClient(t *testing.T, srv *httptest.Server, attempts uint64) *Client {
	t.Helper()
	return NewClient(staticToken("tok"), srv.Client(), srv.URL, 1, 54, DefaultOptions(), testPoll(attempts), zap.NewNop())
}

func answerBody(text string) []byte {
	raw, _ := json.Marshal(map[string]any{"data": []map[string]string{{"text": text}}})
	return raw
}

func TestClient_Ask_HappyPathWithTransientPollFailures(t *testing.T) {
	t.Parallel()

	var polls, deletes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/chat":
			var req createRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, 1, req.TrainedModelID)
			require.Equal(t, 54, req.RagID)
			require.Equal(t, "What is the vacation policy?", req.Text)
			_, _ = w.Write([]byte(`{"id": 123}`))
		case r.Method == http.MethodGet && r.URL.Path == "/chat/123":
			if polls.Add(1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write(answerBody("Answer to your question: 28 calendar days. ********** rag trace"))
		case r.Method == http.MethodDelete && r.URL.Path == "/chat/123":
			deletes.Add(1)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 8)
	answer, err := c.Ask(context.Background(), "What is the vacation policy?")
	require.NoError(t, err)
	require.Equal(t, "28 calendar days.", answer)
	require.Equal(t, int32(3), polls.Load())
	require.Equal(t, int32(1), deletes.Load())
}

func TestClient_Ask_PollExhaustionSurfacesLastError(t *testing.T) {
	t.Parallel()

	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/chat":
			_, _ = w.Write([]byte(`{"id": "abc"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/chat/abc":
			polls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		case r.Method == http.MethodDelete && r.URL.Path == "/chat/abc":
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 3)
	_, err := c.Ask(context.Background(), "q")
	require.ErrorIs(t, err, errs.ErrUpstream)
	require.Equal(t, int32(3), polls.Load(), "exactly the configured number of attempts")
}

func TestClient_Ask_CreateFailureIsFatalWithoutRetry(t *testing.T) {
	t.Parallel()

	var creates atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat", r.URL.Path)
		creates.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 8)
	_, err := c.Ask(context.Background(), "q")
	require.ErrorIs(t, err, errs.ErrUpstream)
	require.Equal(t, int32(1), creates.Load())
}

func TestClient_Ask_MissingAnswerFieldRetries(t *testing.T) {
	t.Parallel()

	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			_, _ = w.Write([]byte(`{"id": 7}`))
		case r.Method == http.MethodGet:
			if polls.Add(1) == 1 {
				_, _ = w.Write([]byte(`{"data": []}`)) // answer not ready yet
				return
			}
			_, _ = w.Write(answerBody("Answer to your question: ok"))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 8)
	answer, err := c.Ask(context.Background(), "q")
	require.NoError(t, err)
	require.Equal(t, "ok", answer)
	require.Equal(t, int32(2), polls.Load())
}

func TestClient_Ask_DeleteFailureDoesNotLoseAnswer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			_, _ = w.Write([]byte(`{"id": 1}`))
		case http.MethodGet:
			_, _ = w.Write(answerBody("Answer to your question: still here"))
		case http.MethodDelete:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 8)
	answer, err := c.Ask(context.Background(), "q")
	require.NoError(t, err)
	require.Equal(t, "still here", answer)
}

func TestClient_Ask_ContextCancellationStopsPolling(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			_, _ = w.Write([]byte(`{"id": 1}`))
		case http.MethodGet:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	c := NewClient(staticToken("tok"), srv.Client(), srv.URL, 1, 54, DefaultOptions(),
		PollPolicy{Base: 50 * time.Millisecond, Cap: time.Second, Attempts: 100}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.Ask(ctx, "q")
	require.Error(t, err)
}

func TestCleanAnswer(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"marker and delimiter", "Answer to your question: 28 days ********** internals", "28 days"},
		{"marker only", "Answer to your question:\n\nSee the handbook.", "See the handbook."},
		{"off-topic passthrough", "I cannot process this question. Please rephrase it.", "I cannot process this question. Please rephrase it."},
		{"delimiter only", "plain text ********** noise", "plain text"},
		{"empty after cleanup", fmt.Sprintf("  %s ", answerDelimiter), FallbackAnswer},
		{"completely empty", "", FallbackAnswer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, cleanAnswer(tc.raw))
		})
	}
}
