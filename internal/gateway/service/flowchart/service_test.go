package flowchart

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ultraflow/internal/aiengine"
	"ultraflow/internal/extract"
	"ultraflow/internal/pipeline"
	"ultraflow/internal/render"
)

type recordingRunner struct {
	got   []pipeline.Request
	reply pipeline.Result
	err   error
}

func (r *recordingRunner) Run(_ context.Context, req pipeline.Request, _ ...pipeline.RunOption) (pipeline.Result, error) {
	r.got = append(r.got, req)
	return r.reply, r.err
}

func TestGenerate_ValidatesBeforeRunning(t *testing.T) {
	runner := &recordingRunner{}
	svc := New(runner, nil)

	for _, article := range []string{"", "hi", "   short    "} {
		_, err := svc.Generate(t.Context(), GenerateInput{Article: article})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "%q", article)
		cat, code := Classify(err)
		assert.Equal(t, CategoryInvalid, cat)
		assert.Equal(t, "validation_error", code)
	}
	assert.Empty(t, runner.got)
}

func TestGenerate_MessagesNameTheField(t *testing.T) {
	_, err := New(&recordingRunner{}, nil).Generate(t.Context(), GenerateInput{Article: "tiny"})
	assert.EqualError(t, err, "article must be at least 10 characters")
}

func TestGenerate_NormalisesCount(t *testing.T) {
	cases := []struct {
		count any
		want  int
	}{
		{nil, 3},
		{float64(0), 3},
		{float64(15), 10},
		{"4", 4},
		{"lots", 3},
	}
	for _, tc := range cases {
		runner := &recordingRunner{}
		_, err := New(runner, nil).Generate(t.Context(), GenerateInput{
			Article:           "  A long enough article body.  ",
			ThemeInstructions: "steps",
			Count:             tc.count,
		})
		require.NoError(t, err)
		require.Len(t, runner.got, 1)
		assert.Equal(t, tc.want, runner.got[0].Count, "%#v", tc.count)
		assert.Equal(t, "A long enough article body.", runner.got[0].Article)
		assert.Equal(t, "steps", runner.got[0].ThemeInstructions)
	}
}

func TestClassify(t *testing.T) {
	backend := func(k aiengine.Kind) error {
		return &pipeline.Error{Stage: pipeline.StageExtract, Err: &extract.ExtractError{
			Kind: extract.KindBackend, Err: &aiengine.Error{Kind: k},
		}}
	}
	cases := []struct {
		err  error
		cat  Category
		code string
	}{
		{&extract.ExtractError{Kind: extract.KindValidation}, CategoryInvalid, "validation_error"},
		{backend(aiengine.KindTransport), CategoryInternal, "ai_error"},
		{backend(aiengine.KindTimeout), CategoryTimeout, "ai_timeout"},
		{backend(aiengine.KindInvalidInput), CategoryInvalid, "validation_error"},
		{&pipeline.Error{Stage: pipeline.StageExtract, Err: &extract.ExtractError{Kind: extract.KindNoValidDiagrams}}, CategoryInternal, "no_valid_diagrams"},
		{&pipeline.Error{Stage: pipeline.StageRender, Err: &render.RenderError{Kind: render.KindInvalidReference}}, CategoryInternal, "render_error"},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), CategoryTimeout, "timeout"},
		{errors.New("boom"), CategoryInternal, "internal_error"},
	}
	for _, tc := range cases {
		cat, code := Classify(tc.err)
		assert.Equal(t, tc.cat, cat, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}
