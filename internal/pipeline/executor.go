// Package pipeline runs the two stages of a flowchart request: structured
// extraction followed by Mermaid rendering.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ultraflow/internal/diagram"
	"ultraflow/internal/extract"
	"ultraflow/internal/llm"
	"ultraflow/internal/render"
)

type Extractor interface {
	Extract(ctx context.Context, article, themeInstructions string, count int) (extract.Extraction, error)
}

type Renderer interface {
	Render(specs []diagram.DiagramSpec) ([]diagram.RenderedDiagram, []render.Failure)
}

// Recorder receives run-level metrics.
type Recorder interface {
	ObservePipeline(outcome string, rendered int, elapsed time.Duration)
	DiagramDropped(stage, reason string)
}

type Request struct {
	Article           string
	ThemeInstructions string
	Count             int
}

type Step1 struct {
	Diagrams []diagram.DiagramSpec `json:"diagrams"`
	Count    int                   `json:"diagramCount"`
}

type Step2 struct {
	Diagrams []diagram.RenderedDiagram `json:"diagrams"`
	Count    int                       `json:"diagramCount"`
}

// Result pairs every structured diagram with its rendering: Step1.Diagrams[i]
// is the source of Step2.Diagrams[i] and both counts are equal.
type Result struct {
	RequestID string `json:"requestId"`
	Model     string `json:"model,omitempty"`
	Step1     Step1  `json:"step1"`
	Step2     Step2  `json:"step2"`
}

type Option func(*Executor)

func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(e *Executor) { e.metrics = r }
}

// WithIDGenerator replaces the uuid request id source.
func WithIDGenerator(fn func() string) Option {
	return func(e *Executor) {
		if fn != nil {
			e.newID = fn
		}
	}
}

type RunOption func(*runOptions)

type runOptions struct {
	observer Observer
}

// WithObserver streams progress events of a single run to o.
func WithObserver(o Observer) RunOption {
	return func(r *runOptions) { r.observer = o }
}

type Executor struct {
	extractor Extractor
	renderer  Renderer
	logger    *zap.Logger
	metrics   Recorder
	newID     func() string
}

func New(x Extractor, r Renderer, opts ...Option) *Executor {
	e := &Executor{
		extractor: x,
		renderer:  r,
		logger:    zap.NewNop(),
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run extracts structured diagrams from the article and renders them. An
// extraction failure stops the run; diagrams that fail to render are dropped
// from both steps so the two stay aligned.
func (e *Executor) Run(ctx context.Context, req Request, opts ...RunOption) (Result, error) {
	var ro runOptions
	for _, o := range opts {
		o(&ro)
	}
	started := time.Now()

	reqID := llm.RequestIDFrom(ctx)
	if reqID == "" {
		reqID = e.newID()
		ctx = llm.WithRequestID(ctx, reqID)
	}
	log := e.logger.With(zap.String("request_id", reqID))
	emit := func(ev Event) {
		if ro.observer == nil {
			return
		}
		ev.RequestID = reqID
		ro.observer.OnEvent(ev)
	}

	count := NormalizeCount(req.Count)
	log.Info("pipeline started", zap.Int("count", count), zap.Int("article_bytes", len(req.Article)))

	emit(Event{Kind: EventStageStarted, Stage: StageExtract, Count: count})
	stageStart := time.Now()
	ex, err := e.extractor.Extract(ctx, req.Article, strings.TrimSpace(req.ThemeInstructions), count)
	if err != nil {
		log.Warn("extraction failed", zap.Error(err))
		e.observe("extract_failed", 0, started)
		return Result{}, &Error{Stage: StageExtract, Msg: "structured extraction failed", Err: err}
	}
	for _, d := range ex.Dropped {
		emit(Event{Kind: EventDiagramDropped, Stage: StageExtract, Index: d.Index, Title: d.Title, Reason: d.Reason})
	}
	emit(Event{Kind: EventStageFinished, Stage: StageExtract, Count: ex.Count, ElapsedMS: time.Since(stageStart).Milliseconds()})

	emit(Event{Kind: EventStageStarted, Stage: StageRender, Count: len(ex.Diagrams)})
	stageStart = time.Now()
	rendered, failures := e.renderer.Render(ex.Diagrams)
	failed := make(map[int]struct{}, len(failures))
	for _, f := range failures {
		failed[f.Index] = struct{}{}
		reason := string(f.Reason())
		if reason == "" {
			reason = "unknown"
		}
		log.Warn("dropping unrenderable diagram",
			zap.Int("index", f.Index),
			zap.String("title", f.Title),
			zap.Error(f.Err))
		if e.metrics != nil {
			e.metrics.DiagramDropped(string(StageRender), reason)
		}
		emit(Event{Kind: EventDiagramDropped, Stage: StageRender, Index: f.Index, Title: f.Title, Reason: f.Err.Error()})
	}

	kept := make([]diagram.DiagramSpec, 0, len(rendered))
	for i, spec := range ex.Diagrams {
		if _, skip := failed[i]; !skip {
			kept = append(kept, spec)
		}
	}
	if len(rendered) == 0 {
		e.observe("render_failed", 0, started)
		var cause error
		if len(failures) > 0 {
			cause = failures[0].Err
		}
		return Result{}, &Error{Stage: StageRender, Msg: "no diagram could be rendered", Err: cause}
	}
	if len(kept) != len(rendered) {
		e.observe("render_failed", 0, started)
		return Result{}, &Error{Stage: StageRender, Msg: "rendered diagrams do not line up with their sources"}
	}
	emit(Event{Kind: EventStageFinished, Stage: StageRender, Count: len(rendered), ElapsedMS: time.Since(stageStart).Milliseconds()})

	res := Result{
		RequestID: reqID,
		Model:     ex.Model,
		Step1:     Step1{Diagrams: kept, Count: len(kept)},
		Step2:     Step2{Diagrams: rendered, Count: len(rendered)},
	}
	outcome := "ok"
	if res.Step2.Count < count {
		outcome = "partial"
	}
	e.observe(outcome, res.Step2.Count, started)
	log.Info("pipeline finished",
		zap.String("outcome", outcome),
		zap.Int("requested", count),
		zap.Int("rendered", res.Step2.Count),
		zap.Duration("elapsed", time.Since(started)))
	return res, nil
}

func (e *Executor) observe(outcome string, rendered int, started time.Time) {
	if e.metrics != nil {
		e.metrics.ObservePipeline(outcome, rendered, time.Since(started))
	}
}
