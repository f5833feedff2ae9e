package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"valet/internal/agent"
	"valet/internal/history"
)

const testToken = "sesame"

// spyTurns records invocations and returns a canned result.
type spyTurns struct {
	calls  int
	lastID string
	result agent.Result
	err    error
}

func (s *spyTurns) Handle(ctx context.Context, userID, question string) (agent.Result, error) {
	s.calls++
	s.lastID = userID
	if s.err != nil {
		return agent.Result{}, s.err
	}
	if userID == "" {
		return agent.Result{}, agent.ErrEmptyUserID
	}
	if question == "" {
		return agent.Result{}, agent.ErrEmptyQuestion
	}
	r := s.result
	r.UserID = userID
	r.Question = question
	return r, nil
}

// fakeStore is an in-memory HistoryStore.
type fakeStore struct {
	data map[string][]history.Message
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string][]history.Message{}}
}

func (f *fakeStore) Load(ctx context.Context, userID string) []history.Message {
	return f.data[userID]
}

func (f *fakeStore) Delete(ctx context.Context, userID string) error {
	delete(f.data, userID)
	return nil
}

func (f *fakeStore) Mode() string { return history.ModeVolatile }

func newTestServer(t *testing.T, turns TurnHandler, store HistoryStore) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer("", 0, testToken, turns, store, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestServer_QueryHappyPath(t *testing.T) {
	turns := &spyTurns{result: agent.Result{Answer: "the answer", HistoryLength: 2}}
	ts := newTestServer(t, turns, newFakeStore())

	body := strings.NewReader(`{"user_id": "alice", "question": "why?"}`)
	resp, err := http.Post(ts.URL+"/query?token="+testToken, "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.UserID != "alice" || got.Question != "why?" {
		t.Errorf("echo fields = %q / %q", got.UserID, got.Question)
	}
	if got.Output != "the answer" {
		t.Errorf("Output = %q", got.Output)
	}
	if got.ChatHistoryLength != 2 {
		t.Errorf("ChatHistoryLength = %d, want 2", got.ChatHistoryLength)
	}
	if got.Error != "" {
		t.Errorf("Error = %q, want empty", got.Error)
	}
}

func TestServer_QueryBearerToken(t *testing.T) {
	turns := &spyTurns{result: agent.Result{Answer: "ok"}}
	ts := newTestServer(t, turns, newFakeStore())

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/query",
		strings.NewReader(`{"user_id": "alice", "question": "q"}`))
	req.Header.Set("Authorization", "Bearer "+testToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestServer_AuthRejectsBeforeWork(t *testing.T) {
	turns := &spyTurns{result: agent.Result{Answer: "should not run"}}
	ts := newTestServer(t, turns, newFakeStore())

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"missing token", http.MethodPost, "/query"},
		{"wrong token", http.MethodPost, "/query?token=wrong"},
		{"history missing token", http.MethodGet, "/chat_history?user_id=a"},
		{"clear wrong token", http.MethodDelete, "/chat_history/clear?user_id=a&token=nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, ts.URL+tt.path,
				strings.NewReader(`{"user_id": "a", "question": "q"}`))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", resp.StatusCode)
			}
		})
	}

	if turns.calls != 0 {
		t.Errorf("turn handler ran %d times on unauthorized requests", turns.calls)
	}
}

func TestServer_QueryValidation(t *testing.T) {
	turns := &spyTurns{}
	ts := newTestServer(t, turns, newFakeStore())

	tests := []struct {
		name string
		body string
	}{
		{"empty user", `{"user_id": "", "question": "q"}`},
		{"empty question", `{"user_id": "alice", "question": ""}`},
		{"malformed json", `{"user_id": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/query?token="+testToken, "application/json",
				strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestServer_QueryDegradedTurnStillOK(t *testing.T) {
	// A turn that fell back to an apology is still HTTP 200; the
	// diagnostic rides in the error field.
	turns := &spyTurns{result: agent.Result{
		Answer:        "❌ Sorry, something went wrong. Please try again later.",
		HistoryLength: 2,
		Err:           context.DeadlineExceeded,
	}}
	ts := newTestServer(t, turns, newFakeStore())

	resp, err := http.Post(ts.URL+"/query?token="+testToken, "application/json",
		strings.NewReader(`{"user_id": "alice", "question": "q"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Error == "" {
		t.Error("error field should carry the diagnostic")
	}
	if !strings.Contains(got.Output, "Sorry") {
		t.Errorf("Output = %q", got.Output)
	}
}

func TestServer_ChatHistory(t *testing.T) {
	store := newFakeStore()
	store.data["alice"] = []history.Message{
		{Role: history.RoleUser, Content: "hi"},
		{Role: history.RoleAssistant, Content: "hello"},
	}
	ts := newTestServer(t, &spyTurns{}, store)

	resp, err := http.Get(ts.URL + "/chat_history?user_id=alice&token=" + testToken)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got struct {
		UserID  string            `json:"user_id"`
		History []history.Message `json:"history"`
		Count   int               `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.UserID != "alice" || got.Count != 2 || len(got.History) != 2 {
		t.Errorf("response = %+v", got)
	}
}

func TestServer_ChatHistoryRequiresUserID(t *testing.T) {
	ts := newTestServer(t, &spyTurns{}, newFakeStore())

	resp, err := http.Get(ts.URL + "/chat_history?token=" + testToken)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestServer_ChatHistoryClear(t *testing.T) {
	store := newFakeStore()
	store.data["alice"] = []history.Message{{Role: history.RoleUser, Content: "hi"}}
	ts := newTestServer(t, &spyTurns{}, store)

	req, _ := http.NewRequest(http.MethodDelete,
		ts.URL+"/chat_history/clear?user_id=alice&token="+testToken, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["message"] != "🗑️ Chat history cleared for user=alice" {
		t.Errorf("message = %q", got["message"])
	}
	if len(store.data["alice"]) != 0 {
		t.Error("history not cleared")
	}
}

func TestServer_HealthUnauthenticated(t *testing.T) {
	ts := newTestServer(t, &spyTurns{}, newFakeStore())

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["status"] != "healthy" {
		t.Errorf("status = %q", got["status"])
	}
	if got["storage"] != history.ModeVolatile {
		t.Errorf("storage = %q", got["storage"])
	}
}

func TestServer_RootListsEndpoints(t *testing.T) {
	ts := newTestServer(t, &spyTurns{}, newFakeStore())

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got struct {
		Name      string            `json:"name"`
		Endpoints map[string]string `json:"endpoints"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "valet" {
		t.Errorf("name = %q", got.Name)
	}
	if _, ok := got.Endpoints["POST /query"]; !ok {
		t.Errorf("endpoints = %v", got.Endpoints)
	}
}

func TestServer_UnknownRouteIs404(t *testing.T) {
	ts := newTestServer(t, &spyTurns{}, newFakeStore())

	resp, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
