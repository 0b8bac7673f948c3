package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ultraflow/internal/aiengine"
	"ultraflow/internal/diagram"
	"ultraflow/internal/extract"
	"ultraflow/internal/llm"
	"ultraflow/internal/llmclient"
	"ultraflow/internal/observability"
	"ultraflow/internal/render"
)

const article = "Customers place an order, the warehouse packs it and a courier delivers it."

func scriptedEngine(t *testing.T, replies ...llmclient.FakeReply) (*aiengine.Engine, *llmclient.FakeClient) {
	t.Helper()
	fc := llmclient.NewScriptedClient(replies...)
	reg := llm.NewInMemoryModelRegistry()
	require.NoError(t, reg.RegisterModel(llmclient.ModelRegistration{
		Provider:  "scripted",
		Model:     "replay",
		Level:     llmclient.ModelLevelMiddle,
		MaxTokens: 4096,
		Factory: func(context.Context, int) (llmclient.LLMClient, error) {
			return fc, nil
		},
	}))
	engine, err := aiengine.New(t.Context(), reg, aiengine.Config{Provider: "scripted"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine, fc
}

func flow(title string) string {
	return `{"title":"` + title + `","nodes":[{"id":"a","label":"A"},{"id":"b","label":"B"}],"edges":[{"from":"a","to":"b"}]}`
}

func reply(diagrams ...string) llmclient.FakeReply {
	return llmclient.FakeReply{Text: `{"diagrams":[` + strings.Join(diagrams, ",") + `]}`}
}

func fixedID() string { return "req-1" }

func TestRun_StepsAlignForEveryValidCount(t *testing.T) {
	reg := llm.NewInMemoryModelRegistry()
	require.NoError(t, llmclient.RegisterFakeModels(reg))
	engine, err := aiengine.New(t.Context(), reg, aiengine.Config{Provider: "fake"})
	require.NoError(t, err)
	exec := New(extract.New(engine), render.New())

	for count := 1; count <= 10; count++ {
		res, err := exec.Run(t.Context(), Request{Article: article, Count: count})
		require.NoError(t, err, "count %d", count)
		assert.Equal(t, res.Step1.Count, res.Step2.Count)
		assert.Len(t, res.Step1.Diagrams, res.Step1.Count)
		assert.Len(t, res.Step2.Diagrams, res.Step2.Count)
		assert.LessOrEqual(t, res.Step1.Count, count)
		assert.GreaterOrEqual(t, res.Step1.Count, 1)
		for i := range res.Step1.Diagrams {
			assert.Equal(t, res.Step1.Diagrams[i].Title, res.Step2.Diagrams[i].SourceTitle)
		}
	}
}

func TestRun_ShortArticleMakesNoBackendCall(t *testing.T) {
	engine, fc := scriptedEngine(t, reply(flow("x")))
	_, err := New(extract.New(engine), render.New()).Run(t.Context(), Request{Article: "hi", Count: 3})

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageExtract, perr.Stage)
	var xe *extract.ExtractError
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, extract.KindValidation, xe.Kind)
	assert.Empty(t, fc.Requests())
}

func TestRun_CountIsNormalisedBeforeAsking(t *testing.T) {
	cases := []struct {
		count int
		want  string
	}{
		{15, "exactly 10 diagrams"},
		{0, "exactly 3 diagrams"},
		{-2, "exactly 3 diagrams"},
	}
	for _, tc := range cases {
		engine, fc := scriptedEngine(t, reply(flow("x")))
		_, err := New(extract.New(engine), render.New()).Run(t.Context(), Request{Article: article, Count: tc.count})
		require.NoError(t, err)
		require.Len(t, fc.Requests(), 1)
		assert.Contains(t, fc.Requests()[0].Prompt, tc.want, "count %d", tc.count)
	}
}

func TestRun_TwoOfThreeIsNotAnError(t *testing.T) {
	engine, _ := scriptedEngine(t, reply(flow("first"), flow("second")))
	res, err := New(extract.New(engine), render.New()).Run(t.Context(), Request{Article: article, Count: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Step1.Count)
	assert.Equal(t, 2, res.Step2.Count)
	assert.Equal(t, "replay", res.Model)
}

// stubExtractor hands specs straight to the renderer, including ones the real
// extractor would have filtered.
type stubExtractor struct {
	specs []diagram.DiagramSpec
	err   error
}

func (s stubExtractor) Extract(context.Context, string, string, int) (extract.Extraction, error) {
	if s.err != nil {
		return extract.Extraction{}, s.err
	}
	return extract.Extraction{Diagrams: s.specs, Count: len(s.specs), Requested: len(s.specs), Model: "stub"}, nil
}

func spec(title string, edges ...diagram.EdgeSpec) diagram.DiagramSpec {
	return diagram.DiagramSpec{
		Title: title,
		Type:  diagram.TypeFlowchart,
		Nodes: []diagram.NodeSpec{{ID: "a", Label: "A"}, {ID: "b", Label: "B"}},
		Edges: edges,
	}
}

func TestRun_UnrenderableDiagramIsProjectedOut(t *testing.T) {
	specs := []diagram.DiagramSpec{
		spec("one", diagram.EdgeSpec{From: "a", To: "b"}),
		spec("broken", diagram.EdgeSpec{From: "a", To: "ghost"}),
		spec("three", diagram.EdgeSpec{From: "b", To: "a"}),
	}
	metrics := observability.NewCollector("test")
	core, logs := observer.New(zapcore.WarnLevel)
	var events []Event

	exec := New(stubExtractor{specs: specs}, render.New(),
		WithRecorder(metrics), WithLogger(zap.New(core)), WithIDGenerator(fixedID))
	res, err := exec.Run(t.Context(), Request{Article: article, Count: 3},
		WithObserver(ObserverFunc(func(ev Event) { events = append(events, ev) })))
	require.NoError(t, err)

	require.Equal(t, 2, res.Step1.Count)
	require.Equal(t, 2, res.Step2.Count)
	assert.Equal(t, "one", res.Step1.Diagrams[0].Title)
	assert.Equal(t, "three", res.Step1.Diagrams[1].Title)
	assert.Equal(t, "one", res.Step2.Diagrams[0].SourceTitle)
	assert.Equal(t, "three", res.Step2.Diagrams[1].SourceTitle)
	assert.Equal(t, "req-1", res.RequestID)

	assert.Equal(t, 1, logs.FilterMessage("dropping unrenderable diagram").Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DiagramsDropped.WithLabelValues("render", "invalid_reference")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PipelineRuns.WithLabelValues("partial")))

	var kinds []EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
		assert.Equal(t, "req-1", ev.RequestID)
	}
	assert.Equal(t, []EventKind{
		EventStageStarted, EventStageFinished,
		EventStageStarted, EventDiagramDropped, EventStageFinished,
	}, kinds)
	assert.Equal(t, 1, events[3].Index)
}

func TestRun_NothingRenderedIsARenderError(t *testing.T) {
	specs := []diagram.DiagramSpec{spec("broken", diagram.EdgeSpec{From: "x", To: "y"})}
	_, err := New(stubExtractor{specs: specs}, render.New()).Run(t.Context(), Request{Article: article, Count: 1})

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageRender, perr.Stage)
	var re *render.RenderError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, render.KindInvalidReference, re.Kind)
}

func TestRun_NetworkFailureIsSingleBackendError(t *testing.T) {
	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	engine, fc := scriptedEngine(t, llmclient.FakeReply{Err: netErr})
	metrics := observability.NewCollector("test")

	res, err := New(extract.New(engine), render.New(), WithRecorder(metrics)).
		Run(t.Context(), Request{Article: article, Count: 3})
	require.Error(t, err)
	assert.Empty(t, res.Step1.Diagrams)
	assert.Empty(t, res.Step2.Diagrams)

	var ae *aiengine.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, aiengine.KindTransport, ae.Kind)
	assert.Len(t, fc.Requests(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PipelineRuns.WithLabelValues("extract_failed")))
}

func TestRun_PropagatesCallerRequestID(t *testing.T) {
	ctx := llm.WithRequestID(t.Context(), "from-caller")
	res, err := New(stubExtractor{specs: []diagram.DiagramSpec{spec("one")}}, render.New()).
		Run(ctx, Request{Article: article, Count: 1})
	require.NoError(t, err)
	assert.Equal(t, "from-caller", res.RequestID)
}

func TestRun_HonoursCancellation(t *testing.T) {
	engine, _ := scriptedEngine(t, reply(flow("x")))
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := New(extract.New(engine), render.New()).Run(ctx, Request{Article: article, Count: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNormalizeCount(t *testing.T) {
	cases := []struct {
		in   any
		want int
	}{
		{nil, 3},
		{0, 3},
		{-4, 1},
		{-0.5, 3},
		{math.Inf(-1), 1},
		{1, 1},
		{7, 7},
		{10, 10},
		{15, 10},
		{float64(4), 4},
		{2.9, 2},
		{"5", 5},
		{" 8 ", 8},
		{"many", 3},
		{"", 3},
		{"99", 10},
		{true, 3},
		{[]int{1}, 3},
		{float64(1e19), 10},
		{math.Inf(1), 10},
		{math.NaN(), 3},
		{int64(math.MaxInt64), 10},
		{json.Number("1e19"), 10},
		{json.Number("1e400"), 10},
		{json.Number("-1e400"), 1},
		{"1e19", 10},
		{"1e400", 10},
		{"1e-400", 3},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeCount(tc.in), "%#v", tc.in)
	}
}
