package planner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	server "github.com/kazz187/twinagents/internal"
	"github.com/kazz187/twinagents/internal/config"
	"github.com/kazz187/twinagents/internal/dispatch"
	"github.com/kazz187/twinagents/internal/plan"
	"github.com/kazz187/twinagents/internal/plan/repositoryimpl"
	"github.com/kazz187/twinagents/pkg/storage"
)

const testTopic = "planner-to-executor"

type fakePublisher struct {
	mu        sync.Mutex
	published [][]byte
	err       error
	panics    bool
}

func (f *fakePublisher) Publish(_ context.Context, _ string, data []byte, _ map[string]string) (string, error) {
	if f.panics {
		panic("publisher exploded")
	}
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, data)
	return "msg-1", nil
}

func (f *fakePublisher) Close() error { return nil }

type failingRepository struct{}

func (failingRepository) Upsert(context.Context, string, plan.Document) error {
	return errors.New("disk full")
}

func (failingRepository) Get(context.Context, string) (plan.Document, error) {
	return nil, errors.New("disk full")
}

func (failingRepository) List(context.Context, int) ([]plan.Document, error) {
	return nil, errors.New("disk full")
}

func newRepository(t *testing.T) plan.Repository {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return repositoryimpl.NewYAMLRepository(s)
}

func newHandler(t *testing.T, repo plan.Repository, pub *fakePublisher) http.Handler {
	t.Helper()
	var d *dispatch.Dispatcher
	if pub != nil {
		d = dispatch.NewDispatcher(pub, testTopic, time.Second)
	}
	s := NewServer(plan.NewRecorder(repo), d, "demo-project")
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return server.NewServer(&config.BaseEnv{}, "planner", s).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var got map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got), rec.Body.String())
	}
	return rec, got
}

func TestCreatePlan_SayHello(t *testing.T) {
	pub := &fakePublisher{}
	h := newHandler(t, newRepository(t), pub)

	rec, got := do(t, h, http.MethodPost, "/plan", `{"text":"say hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "planned", got["status"])
	assert.Equal(t, "stored", got["firestore"])
	assert.Equal(t, testTopic, got["published_to"])
	assert.Equal(t, "2026-01-02T03:04:05Z", got["timestamp"])
	id, _ := got["plan_id"].(string)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	require.Len(t, pub.published, 1)
	var published plan.Plan
	require.NoError(t, json.Unmarshal(pub.published[0], &published))
	assert.Equal(t, id, published.PlanID)
	assert.Equal(t, "say hello", published.Text)
	require.Len(t, published.Tasks, 1)
	assert.Equal(t, "t1", published.Tasks[0].ID)
	assert.Equal(t, "say", published.Tasks[0].Type)
}

func TestCreatePlan_TextFallbacks(t *testing.T) {
	h := newHandler(t, nil, nil)

	for _, body := range []string{`{"task":"say hello"}`, `{"message":"say hello"}`, `{"text":"","task":"say hello"}`} {
		rec, got := do(t, h, http.MethodPost, "/plan", body)
		require.Equal(t, http.StatusOK, rec.Code, body)
		assert.Equal(t, "planned", got["status"], body)
	}
}

func TestCreatePlan_WhitespaceText(t *testing.T) {
	pub := &fakePublisher{}
	h := newHandler(t, newRepository(t), pub)

	for _, body := range []string{`{"text":"   "}`, `{"text":"  ","task":"do it"}`} {
		rec, got := do(t, h, http.MethodPost, "/plan", body)
		require.Equal(t, http.StatusOK, rec.Code, body)
		assert.Equal(t, "planned", got["status"], body)
		id, _ := got["plan_id"].(string)
		_, err := uuid.Parse(id)
		assert.NoError(t, err, body)
	}

	require.Len(t, pub.published, 2)
	var published plan.Plan
	require.NoError(t, json.Unmarshal(pub.published[1], &published))
	assert.Equal(t, "  ", published.Text)
	assert.Equal(t, "general", published.Intent)
}

func TestCreatePlan_MissingText(t *testing.T) {
	h := newHandler(t, newRepository(t), &fakePublisher{})

	for _, body := range []string{`{}`, `{"text":""}`, `{"text":"","task":"","message":""}`, `not json`, `[1,2]`, ``} {
		rec, got := do(t, h, http.MethodPost, "/plan", body)
		require.Equal(t, http.StatusOK, rec.Code, body)
		assert.Equal(t, map[string]any{
			"status":  "error",
			"message": "missing 'text' in request body",
		}, got, body)
	}
}

func TestCreatePlan_SideEffectFailures(t *testing.T) {
	tests := []struct {
		name          string
		repo          plan.Repository
		pub           *fakePublisher
		wantFirestore string
	}{
		{name: "nothing configured", repo: nil, pub: nil, wantFirestore: "disabled"},
		{name: "write and publish fail", repo: failingRepository{}, pub: &fakePublisher{err: errors.New("broker down")}, wantFirestore: "failed"},
		{name: "publisher panics", repo: failingRepository{}, pub: &fakePublisher{panics: true}, wantFirestore: "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(t, tt.repo, tt.pub)

			rec, got := do(t, h, http.MethodPost, "/plan", `{"text":"say hello"}`)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "planned", got["status"])
			assert.Equal(t, tt.wantFirestore, got["firestore"])
			assert.Equal(t, "publish-failed", got["published_to"])
			assert.NotEmpty(t, got["plan_id"])
		})
	}
}

func TestDirect(t *testing.T) {
	repo := newRepository(t)
	h := newHandler(t, repo, nil)

	rec, got := do(t, h, http.MethodPost, "/_direct", `{"plan_id":"p1","note":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"ok": true, "plan_id": "p1", "firestore": "stored"}, got)

	doc, err := repo.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "hi", doc["note"])
	assert.Equal(t, "2026-01-02T03:04:05Z", doc["timestamp"])

	rec, got = do(t, h, http.MethodPost, "/_direct", `{"timestamp":"2020-01-01T00:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	id, _ := got["plan_id"].(string)
	_, err = uuid.Parse(id)
	require.NoError(t, err)
	doc, err = repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "2020-01-01T00:00:00Z", doc["timestamp"])
}

func TestDirect_StoreDisabled(t *testing.T) {
	h := newHandler(t, nil, nil)

	rec, got := do(t, h, http.MethodPost, "/_direct", `{"plan_id":"p1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "disabled", got["firestore"])
	assert.Equal(t, true, got["ok"])
}

func TestDirect_UnaddressableID(t *testing.T) {
	repo := newRepository(t)
	h := newHandler(t, repo, nil)

	rec, got := do(t, h, http.MethodPost, "/_direct", `{"plan_id":"a/b"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a/b", got["plan_id"])
	assert.Equal(t, "failed", got["firestore"])

	docs, err := repo.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDirect_RejectsNonObject(t *testing.T) {
	h := newHandler(t, newRepository(t), nil)

	for _, body := range []string{`[1]`, `"text"`, `null`, `oops`} {
		rec, got := do(t, h, http.MethodPost, "/_direct", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "InvalidArgument", got["code"], body)
	}
}

func TestPlans(t *testing.T) {
	h := newHandler(t, newRepository(t), nil)

	_, created := do(t, h, http.MethodPost, "/plan", `{"text":"say hello"}`)
	id := created["plan_id"].(string)

	rec, got := do(t, h, http.MethodGet, "/plans/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, got["plan_id"])
	assert.Equal(t, "say hello", got["text"])

	rec, got = do(t, h, http.MethodGet, "/plans", "")
	require.Equal(t, http.StatusOK, rec.Code)
	plans, ok := got["plans"].([]any)
	require.True(t, ok)
	assert.Len(t, plans, 1)

	rec, got = do(t, h, http.MethodGet, "/plans/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", got["code"])

	rec, _ = do(t, h, http.MethodGet, "/plans?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlans_StoreDisabled(t *testing.T) {
	h := newHandler(t, nil, nil)

	rec, got := do(t, h, http.MethodGet, "/plans/p1", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Unavailable", got["code"])
}

func TestHealth(t *testing.T) {
	h := newHandler(t, nil, &fakePublisher{})

	rec, got := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"status": "ok", "project": "demo-project", "topic": testTopic}, got)
}
