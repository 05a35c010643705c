package answer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SakshamDixitSBH/docrag/internal/errors"
	"github.com/SakshamDixitSBH/docrag/internal/store"
)

type fakeSearcher struct {
	hits  []store.Hit
	query string
	kind  store.Kind
	k     int
}

func (f *fakeSearcher) Search(query string, kind store.Kind, k int) []store.Hit {
	f.query, f.kind, f.k = query, kind, k
	return f.hits
}

type fakeGenerator struct {
	calls  int
	prompt string
	reply  string
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, _, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.reply, f.err
}

func sampleHits() []store.Hit {
	return []store.Hit{
		{Rank: 1, Text: "Invoices are due within 30 days.", Metadata: store.Metadata{store.MetaSourceKind: "pdf", store.MetaPage: "4"}},
		{Rank: 2, Text: "Please pay by Friday.", Metadata: store.Metadata{store.MetaSourceKind: "email"}},
		{Rank: 3, Text: "Unrelated appendix.", Metadata: store.Metadata{store.MetaSourceKind: "pdf", store.MetaPage: "9"}},
	}
}

func TestCitation(t *testing.T) {
	assert.Equal(t, "[pdf p.4]", Citation(store.Metadata{store.MetaSourceKind: "pdf", store.MetaPage: "4"}))
	assert.Equal(t, "[pdf]", Citation(store.Metadata{store.MetaSourceKind: "pdf"}))
	assert.Equal(t, "[email]", Citation(store.Metadata{store.MetaSourceKind: "email"}))
	assert.Equal(t, "[unknown]", Citation(nil))
}

func TestBuildPrompt_LimitsAndTagsContext(t *testing.T) {
	prompt := BuildPrompt("  When are invoices due? ", sampleHits(), 2)

	assert.Contains(t, prompt, "Use ONLY the context below")
	assert.Contains(t, prompt, "Question: When are invoices due?\n")
	assert.Contains(t, prompt, "Context:\n[pdf p.4] Invoices are due within 30 days.\n\n[email] Please pay by Friday.\n\nAnswer with:")
	assert.NotContains(t, prompt, "Unrelated appendix")
}

func TestBuildPrompt_TopNBounds(t *testing.T) {
	all := BuildPrompt("q", sampleHits(), 0)
	assert.Contains(t, all, "Unrelated appendix")
	assert.Equal(t, all, BuildPrompt("q", sampleHits(), 10))
}

func TestService_Ask_GeneratesFromHits(t *testing.T) {
	// Given: a searcher with hits and a generator with a canned reply
	searcher := &fakeSearcher{hits: sampleHits()}
	gen := &fakeGenerator{reply: "  Within 30 days [pdf p.4].\n"}
	svc := &Service{Searcher: searcher, Generator: gen, ContextHits: 1}

	// When
	ans, err := svc.Ask(context.Background(), "When are invoices due?", store.KindPDF, 3)

	// Then: the search parameters pass through and the reply is trimmed
	require.NoError(t, err)
	assert.Equal(t, "When are invoices due?", searcher.query)
	assert.Equal(t, store.KindPDF, searcher.kind)
	assert.Equal(t, 3, searcher.k)
	assert.Equal(t, 1, gen.calls)
	assert.NotContains(t, gen.prompt, "Please pay by Friday")
	assert.Equal(t, "Within 30 days [pdf p.4].", ans.Text)
	assert.Len(t, ans.Hits, 3)
}

func TestService_Ask_NoHitsSkipsGenerator(t *testing.T) {
	gen := &fakeGenerator{reply: "should not be used"}
	svc := &Service{Searcher: &fakeSearcher{}, Generator: gen}

	ans, err := svc.Ask(context.Background(), "anything", store.KindAll, 5)
	require.NoError(t, err)
	assert.Equal(t, NoContext, ans.Text)
	assert.Zero(t, gen.calls)
}

func TestService_Ask_Errors(t *testing.T) {
	svc := &Service{Searcher: &fakeSearcher{hits: sampleHits()}, Generator: &fakeGenerator{err: errors.NetworkError("down", nil)}}

	_, err := svc.Ask(context.Background(), "   ", store.KindAll, 5)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidQuery, errors.GetCode(err))

	_, err = svc.Ask(context.Background(), "q", store.KindAll, 5)
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

// fakeChatServer answers chat completion requests with the given
// statuses in turn, then succeeds.
func fakeChatServer(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		assert.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "test-model", req["model"])

		w.Header().Set("Content-Type", "application/json")
		if n <= len(statuses) {
			w.WriteHeader(statuses[n-1])
			_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"server_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"test-model",` +
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Pay by Friday [email]."}}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func fastRetry() errors.RetryConfig {
	return errors.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	srv, calls := fakeChatServer(t)
	gen, err := NewOpenAIGenerator(OpenAIConfig{Model: "test-model", BaseURL: srv.URL, APIKey: "k", Retry: fastRetry()})
	require.NoError(t, err)

	text, err := gen.Generate(context.Background(), SystemPrompt, "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Pay by Friday [email].", text)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIGenerator_RetriesServerErrors(t *testing.T) {
	srv, calls := fakeChatServer(t, http.StatusServiceUnavailable, http.StatusTooManyRequests)
	gen, err := NewOpenAIGenerator(OpenAIConfig{Model: "test-model", BaseURL: srv.URL, Retry: fastRetry()})
	require.NoError(t, err)

	text, err := gen.Generate(context.Background(), SystemPrompt, "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Pay by Friday [email].", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIGenerator_ClientErrorsAreNotRetried(t *testing.T) {
	srv, calls := fakeChatServer(t, http.StatusBadRequest)
	gen, err := NewOpenAIGenerator(OpenAIConfig{Model: "test-model", BaseURL: srv.URL, Retry: fastRetry()})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), SystemPrompt, "prompt")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAnswerFailed, errors.GetCode(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewOpenAIGenerator_RequiresKeyOrBaseURL(t *testing.T) {
	t.Setenv("DOCRAG_TEST_KEY", "")

	_, err := NewOpenAIGenerator(OpenAIConfig{Model: "m", APIKeyEnv: "DOCRAG_TEST_KEY"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))

	t.Setenv("DOCRAG_TEST_KEY", "secret")
	_, err = NewOpenAIGenerator(OpenAIConfig{Model: "m", APIKeyEnv: "DOCRAG_TEST_KEY"})
	assert.NoError(t, err)

	_, err = NewOpenAIGenerator(OpenAIConfig{APIKey: "k"})
	assert.Error(t, err)
}
