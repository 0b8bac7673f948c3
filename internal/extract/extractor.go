// Package extract turns article text into structured diagram specs with a
// single backend call per request.
package extract

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"ultraflow/internal/aiengine"
	"ultraflow/internal/diagram"
	"ultraflow/internal/llmclient"
	"ultraflow/internal/llmtool"
	"ultraflow/internal/util/textutil"
)

const (
	MinArticleLength    = 10
	MinCount            = 1
	MaxCount            = 10
	DefaultMaxReprompts = 1
)

// Asker is the slice of aiengine.Engine the extractor needs.
type Asker interface {
	Ask(ctx context.Context, prompt string, opts ...aiengine.AskOption) (aiengine.Answer, error)
}

// DropRecorder counts discarded diagrams, typically in Prometheus.
type DropRecorder interface {
	DiagramDropped(stage, reason string)
}

// Drop describes one candidate that failed validation.
type Drop struct {
	Index  int    `json:"index"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
}

// Extraction is the Stage 1 result. Count is len(Diagrams) and may be below Requested.
type Extraction struct {
	Diagrams  []diagram.DiagramSpec
	Count     int
	Requested int
	Dropped   []Drop
	Model     string
	Attempts  int
}

type Option func(*Extractor)

func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxReprompts sets how many times a structurally malformed answer is sent
// back for correction. 0 disables re-prompting.
func WithMaxReprompts(n int) Option {
	return func(e *Extractor) {
		if n >= 0 {
			e.maxReprompts = n
		}
	}
}

func WithDropRecorder(r DropRecorder) Option {
	return func(e *Extractor) { e.drops = r }
}

type Extractor struct {
	ai           Asker
	logger       *zap.Logger
	maxReprompts int
	drops        DropRecorder
	schema       *llmclient.Schema
	fields       []llmtool.PromptField
}

func New(ai Asker, opts ...Option) *Extractor {
	e := &Extractor{
		ai:           ai,
		logger:       zap.NewNop(),
		maxReprompts: DefaultMaxReprompts,
		schema:       mustSchema(),
		fields:       llmtool.MustFieldsFromStruct(wireDiagram{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func mustSchema() *llmclient.Schema {
	s, err := llmtool.SchemaFromStruct(wireResponse{})
	if err != nil {
		panic(err)
	}
	return s
}

// Extract asks the backend for count diagrams describing article and returns
// the ones that pass validation, in the order the backend produced them.
func (e *Extractor) Extract(ctx context.Context, article, themeInstructions string, count int) (Extraction, error) {
	article = textutil.CleanMarkdown(article)
	if utf8.RuneCountInString(article) < MinArticleLength {
		return Extraction{}, &ExtractError{Kind: KindValidation, Msg: fmt.Sprintf("article must be at least %d characters", MinArticleLength)}
	}
	if count < MinCount || count > MaxCount {
		return Extraction{}, &ExtractError{Kind: KindValidation, Msg: fmt.Sprintf("count must be between %d and %d, got %d", MinCount, MaxCount, count)}
	}

	prompt, err := e.buildPrompt(article, themeInstructions, count)
	if err != nil {
		return Extraction{}, &ExtractError{Kind: KindValidation, Msg: "cannot build prompt", Err: err}
	}

	var (
		history    []llmclient.Message
		candidates []candidate
		model      string
		attempts   int
	)
	for {
		attempts++
		ans, err := e.ai.Ask(ctx, prompt,
			aiengine.WithSystem(systemInstruction),
			aiengine.WithJSON(e.schema),
			aiengine.WithTemperature(0.2),
			aiengine.WithHistory(history),
		)
		if err != nil {
			return Extraction{}, &ExtractError{Kind: KindBackend, Msg: "diagram generation failed", Err: err}
		}
		model = ans.Model

		parsed, perr := parseResponse(ans.Text)
		if perr == nil {
			candidates = parsed
			break
		}
		e.logger.Warn("malformed diagram response",
			zap.Int("attempt", attempts),
			zap.Int("response_bytes", len(ans.Text)),
			zap.Error(perr))
		if attempts > e.maxReprompts {
			return Extraction{}, &ExtractError{Kind: KindMalformedResponse, Msg: "backend response did not contain diagram data", Err: perr}
		}
		history = append(history,
			llmclient.Message{Role: llmclient.RoleUser, Content: prompt},
			llmclient.Message{Role: llmclient.RoleAssistant, Content: ans.Text},
		)
		prompt = repairPrompt(count, perr)
	}

	out := Extraction{Requested: count, Model: model, Attempts: attempts}
	specs := make([]diagram.DiagramSpec, len(candidates))
	for i, c := range candidates {
		specs[i] = c.spec
	}
	for _, chk := range diagram.Check(specs) {
		switch c := candidates[chk.Index]; {
		case c.err != nil:
			out.Dropped = append(out.Dropped, e.drop(chk.Index, "", "not_an_object", c.err.Error()))
		case !chk.OK():
			out.Dropped = append(out.Dropped, e.drop(chk.Index, chk.Spec.Title, string(chk.Issues[0].Code), chk.Issues.Error()))
		default:
			out.Diagrams = append(out.Diagrams, chk.Spec)
		}
	}
	if len(out.Diagrams) == 0 {
		return Extraction{}, &ExtractError{Kind: KindNoValidDiagrams, Msg: fmt.Sprintf("none of the %d returned diagrams passed validation", len(candidates))}
	}
	if len(out.Diagrams) > count {
		e.logger.Debug("truncating surplus diagrams", zap.Int("returned", len(out.Diagrams)), zap.Int("requested", count))
		out.Diagrams = out.Diagrams[:count]
	}
	out.Count = len(out.Diagrams)
	return out, nil
}

func (e *Extractor) drop(index int, title, code, reason string) Drop {
	e.logger.Warn("dropping invalid diagram",
		zap.Int("index", index),
		zap.String("title", title),
		zap.String("reason", reason))
	if e.drops != nil {
		e.drops.DiagramDropped("extract", code)
	}
	return Drop{Index: index, Title: title, Reason: reason}
}

const systemInstruction = "You convert articles into diagram descriptions. You answer with JSON only."

func (e *Extractor) buildPrompt(article, theme string, count int) (string, error) {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		theme = "Cover the most important processes, decisions and interactions in the article."
	}
	noun := "diagrams"
	if count == 1 {
		noun = "diagram"
	}
	spec := llmtool.StructuredPromptSpec{
		Purpose: fmt.Sprintf("Read the article and produce exactly %d %s that explain it visually.", count, noun),
		Background: "Each diagram is rendered as a Mermaid flowchart or sequence diagram. " +
			"Diagrams should be distinct from each other and each should stand on its own.",
		Inputs: []llmtool.PromptInput{
			{Title: "THEME", Body: theme},
			{Title: "ARTICLE", Body: article},
		},
		OutputFields: e.fields,
		Rules: []string{
			"Return an object with a single key \"diagrams\" holding an array of " + strconv.Itoa(count) + " diagram objects.",
			"Keep each diagram between 3 and 15 nodes.",
			"Use type \"sequence\" only when the content is messages exchanged between actors; nodes are then the actors.",
		},
		OutputFormat: `{"diagrams":[{"title":"...","type":"flowchart","direction":"TD","nodes":[{"id":"start","label":"..."}],"edges":[{"from":"start","to":"next","label":"..."}]}]}`,
		Language:     "Match the language of the article.",
	}
	spec = llmtool.ApplyPresets(spec,
		llmtool.PresetStrictJSON(),
		llmtool.PresetGraphIntegrity(),
		llmtool.PresetNoInvent(),
		llmtool.PresetCautious(),
	)
	return spec.Build()
}

func repairPrompt(count int, cause error) string {
	return fmt.Sprintf("Your previous answer could not be parsed (%v). "+
		"Reply again with only the JSON object {\"diagrams\": [...]} containing exactly %d diagrams, "+
		"with no prose and no markdown.", cause, count)
}
