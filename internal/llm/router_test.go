package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider scripts per-call behaviour for router tests.
type fakeProvider struct {
	name     string
	response string
	vector   []float32
	err      error
	calls    int
	// failFirst makes the provider fail this many calls before succeeding.
	failFirst int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(_ context.Context, _ Request) (string, error) {
	f.calls++
	if f.err != nil && f.calls <= f.failFirst {
		return "", f.err
	}
	if f.err != nil && f.failFirst == 0 {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeProvider) ReasoningVector(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.err != nil && f.failFirst == 0 {
		return nil, f.err
	}
	return f.vector, nil
}

func newTestRouter(t *testing.T, providers ...Provider) *Router {
	t.Helper()
	return NewRouter(RouterConfig{
		Providers:       providers,
		Dims:            64,
		ProviderTimeout: 2 * time.Second,
	}, slog.New(slog.DiscardHandler))
}

func TestRouterFirstProviderWins(t *testing.T) {
	primary := &fakeProvider{name: "primary", response: `{"ok":true}`}
	secondary := &fakeProvider{name: "secondary", response: `{"ok":false}`}
	r := newTestRouter(t, primary, secondary)

	res, err := r.Complete(context.Background(), Request{Prompt: "p", JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, res.Text)
	assert.Equal(t, "primary", res.Provider)
	assert.False(t, res.Degraded)
	assert.Zero(t, secondary.calls)
}

func TestRouterFailsOverOn5xx(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: &StatusError{Provider: "primary", Code: 503}}
	secondary := &fakeProvider{name: "secondary", response: `{"ok":true}`}
	r := newTestRouter(t, primary, secondary)

	res, err := r.Complete(context.Background(), Request{Prompt: "p", JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, "secondary", res.Provider)
	assert.False(t, res.Degraded)
	// 5xx must not be retried against the same provider.
	assert.Equal(t, 1, primary.calls)
}

func TestRouterRetries429ThenFailsOver(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: &StatusError{Provider: "primary", Code: 429}}
	secondary := &fakeProvider{name: "secondary", response: `{"ok":true}`}
	r := newTestRouter(t, primary, secondary)

	res, err := r.Complete(context.Background(), Request{Prompt: "p", JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, "secondary", res.Provider)
	// Initial attempt plus two retries.
	assert.Equal(t, 3, primary.calls)
}

func TestRouterMalformedJSONFailsProvider(t *testing.T) {
	primary := &fakeProvider{name: "primary", response: "not json at all"}
	secondary := &fakeProvider{name: "secondary", response: "```json\n{\"ok\":true}\n```"}
	r := newTestRouter(t, primary, secondary)

	res, err := r.Complete(context.Background(), Request{Prompt: "p", JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, "secondary", res.Provider)
	assert.JSONEq(t, `{"ok":true}`, res.Text)
}

func TestRouterDeterministicTerminal(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: &StatusError{Provider: "primary", Code: 503}}
	r := newTestRouter(t, primary)

	res, err := r.Complete(context.Background(), Request{Prompt: "p", JSONMode: true, Schema: SchemaExtraction})
	require.NoError(t, err)
	assert.Equal(t, "deterministic", res.Provider)
	assert.True(t, res.Degraded)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Text), &payload))
	assert.Contains(t, payload, "line_items")
}

func TestRouterVectorSkipsUnsupported(t *testing.T) {
	noEmbed := &fakeProvider{name: "cloud", err: ErrUnsupported}
	local := &fakeProvider{name: "local", vector: []float32{1, 2, 3}}
	r := newTestRouter(t, noEmbed, local)

	res, err := r.ReasoningVector(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "local", res.Provider)
	assert.Equal(t, []float32{1, 2, 3}, res.Vector)
	assert.False(t, res.Degraded)
}

func TestRouterVectorDeterministicIsStable(t *testing.T) {
	r := newTestRouter(t)

	a, err := r.ReasoningVector(context.Background(), "same prompt")
	require.NoError(t, err)
	b, err := r.ReasoningVector(context.Background(), "same prompt")
	require.NoError(t, err)
	c, err := r.ReasoningVector(context.Background(), "different prompt")
	require.NoError(t, err)

	assert.Equal(t, a.Vector, b.Vector)
	assert.NotEqual(t, a.Vector, c.Vector)
	assert.Len(t, a.Vector, 64)
}

func TestRouterHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newTestRouter(t, &fakeProvider{name: "p", response: "x"})
	_, err := r.Complete(ctx, Request{Prompt: "p"})
	assert.Error(t, err)
}
