package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/voice-autopilot/internal/extraction"
	"github.com/jonathan/voice-autopilot/internal/gate"
	"github.com/jonathan/voice-autopilot/internal/knowledge"
	"github.com/jonathan/voice-autopilot/internal/llm"
	"github.com/jonathan/voice-autopilot/internal/pipeline"
	"github.com/jonathan/voice-autopilot/internal/store"
	"github.com/jonathan/voice-autopilot/internal/types"
)

type stubTranscriber struct{ text string }

func (s stubTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return s.text, nil
}

type stubExtractor struct {
	record *types.StructuredRecord
	err    error
}

func (s stubExtractor) Extract(context.Context, string) (*types.StructuredRecord, error) {
	return s.record, s.err
}

type stubRetriever struct{ hits []types.EvidenceHit }

func (s stubRetriever) Retrieve(context.Context, string, int) ([]types.EvidenceHit, error) {
	return s.hits, nil
}

type stubDrafter struct{ draft *types.Draft }

func (s stubDrafter) Draft(context.Context, string, *types.StructuredRecord, []types.EvidenceHit) (*types.Draft, error) {
	return s.draft, nil
}

type stubPreviewer struct{}

func (stubPreviewer) Render(a types.Action) string { return "would " + string(a.ActionType) }

type stubExecutor struct {
	err      error
	executed []types.ActionType
}

func (s *stubExecutor) Execute(_ context.Context, a types.Action) (types.ActionResult, error) {
	if s.err != nil {
		return types.ActionResult{}, s.err
	}
	s.executed = append(s.executed, a.ActionType)
	return types.ActionResult{ActionType: a.ActionType, Status: types.ResultSuccess, Result: map[string]any{}}, nil
}

type stubEmbedder struct{}

func (stubEmbedder) GenerateContent(context.Context, string, llm.ModelTier) (string, error) {
	return "", errors.New("not used")
}

func (stubEmbedder) GenerateJSON(context.Context, string, llm.ModelTier) (string, error) {
	return "", errors.New("not used")
}

func (stubEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)%7) + 1, 1, 0}, nil
}

func (stubEmbedder) GetModel(llm.ModelTier) string { return "stub" }
func (stubEmbedder) Close() error                  { return nil }

func testServer(t *testing.T) (*Server, *store.MemoryStore, *stubExecutor) {
	t.Helper()

	st := store.NewMemoryStore()
	record := &types.StructuredRecord{
		Intent:               "demo_request",
		Urgency:              "high",
		Entities:             types.Entities{ContactName: "Dana", Email: "dana@acme.com"},
		Summary:              "Dana wants a demo.",
		ConversationLanguage: "en",
		NextBestActions: []types.Action{{
			ActionType:           types.ActionCreateMeeting,
			Payload:              &types.MeetingPayload{Date: "2025-06-02", StartTime: "10:00"},
			RequiresConfirmation: true,
		}},
	}
	orch := pipeline.NewOrchestrator(
		st,
		stubTranscriber{text: "hello"},
		stubExtractor{record: record},
		stubRetriever{hits: []types.EvidenceHit{{Doc: "kb.md", Chunk: 0, Score: 0.9, Text: "snippet"}}},
		stubDrafter{draft: &types.Draft{ReplyText: "Thanks!", Citations: []string{}}},
		stubPreviewer{},
		nil,
	)
	orch.EmailFrom = "noreply@corp.com"

	executor := &stubExecutor{}
	g := gate.New(executor, nil)

	dir := t.TempDir()
	index, err := knowledge.OpenIndex(filepath.Join(dir, "kb.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })
	ing := knowledge.NewIngester(index, stubEmbedder{})
	ret := knowledge.NewRetriever(index, stubEmbedder{})

	srv := New(Config{Addr: ":0", KnowledgeDir: dir}, st, orch, g, ing, ret)
	return srv, st, executor
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleRunTextMode(t *testing.T) {
	srv, st, _ := testServer(t)

	rec := postJSON(t, srv.Handler(), "/run", map[string]any{"mode": "text", "text": "Hi there"})
	require.Equal(t, http.StatusOK, rec.Code)

	var out pipeline.RunOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, "Hi there", out.Transcript)
	require.NotEmpty(t, out.ActionsPreview)
	assert.Contains(t, out.ActionsPreview[0].Preview, "would ")

	run, err := st.Get(context.Background(), out.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPreviewed, run.Status)
}

func TestHandleRunRejectsBadMode(t *testing.T) {
	srv, _, _ := testServer(t)

	rec := postJSON(t, srv.Handler(), "/run", map[string]any{"mode": "video", "text": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRunRejectsMissingPayload(t *testing.T) {
	srv, _, _ := testServer(t)

	rec := postJSON(t, srv.Handler(), "/run", map[string]any{"mode": "audio"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, srv.Handler(), "/run", map[string]any{"mode": "text"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleConfirmExecutesAndRecordsResults(t *testing.T) {
	srv, st, executor := testServer(t)

	rec := postJSON(t, srv.Handler(), "/run", map[string]any{"mode": "text", "text": "Hi there"})
	require.Equal(t, http.StatusOK, rec.Code)
	var out pipeline.RunOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))

	actions := out.ActionsPreview
	for i := range actions {
		actions[i].Confirmed = true
	}

	rec = postJSON(t, srv.Handler(), "/confirm", ConfirmRequest{RunID: out.RunID, Actions: actions})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConfirmResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, out.RunID, resp.RunID)
	require.Len(t, resp.Results, len(actions))
	for _, result := range resp.Results {
		assert.Equal(t, types.ResultSuccess, result.Status)
	}
	assert.NotEmpty(t, executor.executed)

	run, err := st.Get(context.Background(), out.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusExecuted, run.Status)
	assert.Len(t, run.Results, len(actions))
}

func TestHandleConfirmUnknownRun(t *testing.T) {
	srv, _, _ := testServer(t)

	rec := postJSON(t, srv.Handler(), "/confirm", ConfirmRequest{
		RunID:   "missing",
		Actions: []types.Action{{ActionType: types.ActionSendSlackSummary}},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleConfirmValidation(t *testing.T) {
	srv, _, _ := testServer(t)

	rec := postJSON(t, srv.Handler(), "/confirm", map[string]any{"actions": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAdjustTimeRejectsNonMeeting(t *testing.T) {
	srv, _, _ := testServer(t)

	rec := postJSON(t, srv.Handler(), "/adjust-time", map[string]any{
		"mode": "text",
		"text": "move it to friday",
		"action": map[string]any{
			"action_type": "send_slack_summary",
			"payload":     map[string]any{"message": "x", "channel": "#general"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleIngestRebuildsIndex(t *testing.T) {
	srv, _, _ := testServer(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pricing.md"), []byte("Pro plan costs $99."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "faq.txt"), []byte("We support webm audio."), 0o644))

	rec := postJSON(t, srv.Handler(), "/ingest", IngestRequest{Dir: dir})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, float64(2), resp["docs"])
}

func TestHandleGetRun(t *testing.T) {
	srv, st, _ := testServer(t)

	_, err := st.Create(context.Background(), "run-1", types.ModeText, "hello")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/runs/run-1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var run types.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, types.StatusCreated, run.Status)
}

func TestHandleGetRunNotFound(t *testing.T) {
	srv, _, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/runs/nope", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	srv, _, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleRunExtractionFailureReturns422(t *testing.T) {
	st := &recordingStore{Store: store.NewMemoryStore()}
	orch := pipeline.NewOrchestrator(
		st,
		stubTranscriber{text: "hello"},
		stubExtractor{err: &extraction.Error{Message: "extraction output invalid after repair"}},
		stubRetriever{},
		stubDrafter{},
		stubPreviewer{},
		nil,
	)
	g := gate.New(&stubExecutor{}, nil)

	dir := t.TempDir()
	index, err := knowledge.OpenIndex(filepath.Join(dir, "kb.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	srv := New(Config{Addr: ":0"}, st, orch, g,
		knowledge.NewIngester(index, stubEmbedder{}), knowledge.NewRetriever(index, stubEmbedder{}))

	rec := postJSON(t, srv.Handler(), "/run", map[string]any{"mode": "text", "text": "hello"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "invalid after repair")

	run, err := st.Get(context.Background(), st.lastID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, run.Status)
	assert.Contains(t, run.Error, "invalid after repair")
}

func TestHandleConfirmInFlightReturns409(t *testing.T) {
	srv, st, _ := testServer(t)

	blocked := &blockingExecutor{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	srv.gate = gate.New(blocked, nil)

	_, err := st.Create(context.Background(), "run-9", types.ModeText, "hello")
	require.NoError(t, err)

	body := ConfirmRequest{
		RunID: "run-9",
		Actions: []types.Action{{
			ActionType: types.ActionSendSlackSummary,
			Payload:    &types.SlackPayload{Message: "hi", Channel: "#general"},
			Confirmed:  true,
		}},
	}

	first := make(chan *httptest.ResponseRecorder)
	go func() {
		first <- postJSON(t, srv.Handler(), "/confirm", body)
	}()
	<-blocked.entered

	rec := postJSON(t, srv.Handler(), "/confirm", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(blocked.release)
	assert.Equal(t, http.StatusOK, (<-first).Code)
}

type blockingExecutor struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingExecutor) Execute(_ context.Context, a types.Action) (types.ActionResult, error) {
	b.entered <- struct{}{}
	<-b.release
	return types.ActionResult{ActionType: a.ActionType, Status: types.ResultSuccess, Result: map[string]any{}}, nil
}

// recordingStore captures the id of the most recently created run.
type recordingStore struct {
	store.Store
	lastID string
}

func (r *recordingStore) Create(ctx context.Context, id string, mode types.Mode, rawInput string) (*types.Run, error) {
	r.lastID = id
	return r.Store.Create(ctx, id, mode, rawInput)
}

func TestWriteErrorInternalDetailBounded(t *testing.T) {
	srv, _, _ := testServer(t)

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	rec := httptest.NewRecorder()
	srv.writeError(rec, fmt.Errorf("upstream exploded: %s", long))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.LessOrEqual(t, len(resp["error"]), len("Internal error: ")+200)
}
