package capsolver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnstiled/internal/platform/config"
	perr "turnstiled/internal/platform/errors"
	"turnstiled/internal/platform/testkit"
	"turnstiled/internal/services/solver/domain"
)

var task1 = domain.Task{Sitekey: "0x4AAAAAAABkMYinukE8nzYS", URL: "https://example.test/login", Action: "login", CData: "c-42"}

// fakeAPI scripts createTask and getTaskResult responses
type fakeAPI struct {
	create  func(w http.ResponseWriter, body map[string]any)
	results []string // statuses in order, last repeats
	creates atomic.Int32
	polls   atomic.Int32
	lastReq atomic.Value
}

func (f *fakeAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.lastReq.Store(body)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/createTask":
			f.creates.Add(1)
			if f.create != nil {
				f.create(w, body)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"errorId": 0, "taskId": "task-1"})
		case "/getTaskResult":
			n := int(f.polls.Add(1)) - 1
			st := f.results[min(n, len(f.results)-1)]
			out := map[string]any{"errorId": 0, "status": st}
			if st == StatusReady {
				out["solution"] = map[string]any{"token": "tok-from-capsolver"}
			}
			_ = json.NewEncoder(w).Encode(out)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(base string) *Client {
	return NewClient(Options{
		APIKey:       "key-123",
		BaseURL:      base,
		PollInterval: time.Millisecond,
		MaxPolls:     5,
		RatePerSec:   1000,
		MaxRetries:   3,
		RetryBase:    time.Millisecond,
	})
}

func TestSolve_ReadyAfterPolling(t *testing.T) {
	api := &fakeAPI{results: []string{StatusIdle, StatusProcessing, StatusReady}}
	var created map[string]any
	api.create = func(w http.ResponseWriter, body map[string]any) {
		created = body
		_ = json.NewEncoder(w).Encode(map[string]any{"errorId": 0, "taskId": "task-1"})
	}
	c := newTestClient(api.server(t).URL)

	tok, err := c.Solve(context.Background(), task1)
	require.NoError(t, err)
	assert.Equal(t, "tok-from-capsolver", tok)
	assert.EqualValues(t, 3, api.polls.Load())

	require.NotNil(t, created)
	assert.Equal(t, "key-123", created["clientKey"])
	tk := created["task"].(map[string]any)
	assert.Equal(t, TaskType, tk["type"])
	assert.Equal(t, task1.URL, tk["websiteURL"])
	assert.Equal(t, task1.Sitekey, tk["websiteKey"])
	assert.Equal(t, map[string]any{"action": "login", "cdata": "c-42"}, tk["metadata"])

	last := api.lastReq.Load().(map[string]any)
	assert.Equal(t, "task-1", last["taskId"])
}

func TestSolve_NoMetadataWhenEmpty(t *testing.T) {
	api := &fakeAPI{results: []string{StatusReady}}
	var created map[string]any
	api.create = func(w http.ResponseWriter, body map[string]any) {
		created = body
		_ = json.NewEncoder(w).Encode(map[string]any{"errorId": 0, "taskId": "task-1"})
	}
	c := newTestClient(api.server(t).URL)
	_, err := c.Solve(context.Background(), domain.Task{Sitekey: task1.Sitekey, URL: task1.URL})
	require.NoError(t, err)
	_, has := created["task"].(map[string]any)["metadata"]
	assert.False(t, has)
}

func TestSolve_ErrorIDIsPermanent(t *testing.T) {
	api := &fakeAPI{results: []string{StatusReady}}
	api.create = func(w http.ResponseWriter, _ map[string]any) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"errorId": 1, "errorCode": "ERROR_KEY_DENIED_ACCESS", "errorDescription": "bad key"})
	}
	c := newTestClient(api.server(t).URL)

	_, err := c.Solve(context.Background(), task1)
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeProvider), "code = %v", perr.CodeOf(err))
	assert.Contains(t, err.Error(), "ERROR_KEY_DENIED_ACCESS")
	assert.EqualValues(t, 1, api.creates.Load(), "refusals must not be retried")
}

func TestSolve_TaskFailed(t *testing.T) {
	api := &fakeAPI{results: []string{StatusProcessing, StatusFailed}}
	c := newTestClient(api.server(t).URL)

	_, err := c.Solve(context.Background(), task1)
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeProvider))
}

func TestSolve_RetriesTransientStatus(t *testing.T) {
	api := &fakeAPI{results: []string{StatusReady}}
	var n atomic.Int32
	api.create = func(w http.ResponseWriter, _ map[string]any) {
		if n.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"errorId": 0, "taskId": "task-1"})
	}
	c := newTestClient(api.server(t).URL)

	tok, err := c.Solve(context.Background(), task1)
	require.NoError(t, err)
	assert.Equal(t, "tok-from-capsolver", tok)
	assert.EqualValues(t, 3, api.creates.Load())
}

func TestSolve_GivesUpAfterRetries(t *testing.T) {
	api := &fakeAPI{results: []string{StatusReady}}
	api.create = func(w http.ResponseWriter, _ map[string]any) { w.WriteHeader(http.StatusTooManyRequests) }
	c := newTestClient(api.server(t).URL)

	_, err := c.Solve(context.Background(), task1)
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeProvider))
	assert.EqualValues(t, 4, api.creates.Load(), "one call plus three retries")
}

func TestSolve_OutOfPolls(t *testing.T) {
	api := &fakeAPI{results: []string{StatusProcessing}}
	c := newTestClient(api.server(t).URL)

	_, err := c.Solve(context.Background(), task1)
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeTimeout))
	assert.EqualValues(t, 5, api.polls.Load())
}

func TestSolve_ContextDeadline(t *testing.T) {
	api := &fakeAPI{results: []string{StatusProcessing}}
	c := newTestClient(api.server(t).URL)
	c.opts.PollInterval = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := c.Solve(ctx, task1)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, perr.IsCode(err, perr.ErrorCodeTimeout))
}

func TestSolve_NotConfigured(t *testing.T) {
	c := NewClient(Options{})
	assert.False(t, c.Configured())
	_, err := c.Solve(context.Background(), task1)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeProvider))
	assert.Equal(t, "capsolver", c.Name())
}

func TestFromConfig(t *testing.T) {
	testkit.Serial(t)
	t.Setenv("TURNSTILE_PROVIDER_API_KEY", "abc")
	t.Setenv("TURNSTILE_PROVIDER_POLL_INTERVAL", "2s")
	t.Setenv("TURNSTILE_PROVIDER_MAX_POLLS", "7")
	o := FromConfig(config.New())
	assert.Equal(t, "abc", o.APIKey)
	assert.Equal(t, 2*time.Second, o.PollInterval)
	assert.Equal(t, 7, o.MaxPolls)
	assert.Equal(t, baseURLDefault, o.BaseURL)
	assert.Equal(t, defaultRate, o.RatePerSec)
}
