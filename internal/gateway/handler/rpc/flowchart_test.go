package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ultraflow/internal/aiengine"
	"ultraflow/internal/diagram"
	"ultraflow/internal/extract"
	"ultraflow/internal/gateway/service/flowchart"
	"ultraflow/internal/pipeline"
)

type stubGenerator struct {
	res pipeline.Result
	err error
	got []flowchart.GenerateInput
}

func (s *stubGenerator) Generate(_ context.Context, in flowchart.GenerateInput, _ ...pipeline.RunOption) (pipeline.Result, error) {
	s.got = append(s.got, in)
	return s.res, s.err
}

func newServer(t *testing.T, gen Generator) *httptest.Server {
	t.Helper()
	path, h := NewServiceHandler(NewFlowchartHandler(gen, nil))
	mux := http.NewServeMux()
	mux.Handle(path, h)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerate_RoundTrip(t *testing.T) {
	gen := &stubGenerator{res: pipeline.Result{
		RequestID: "r-1",
		Step1:     pipeline.Step1{Diagrams: []diagram.DiagramSpec{{Title: "t"}}, Count: 1},
		Step2:     pipeline.Step2{Diagrams: []diagram.RenderedDiagram{{MMD: "flowchart TD\n    a --> b", SourceTitle: "t"}}, Count: 1},
	}}
	srv := newServer(t, gen)

	client := NewClient(srv.Client(), srv.URL)
	resp, err := client.CallUnary(t.Context(), connect.NewRequest(&flowchart.GenerateInput{
		Article: "An article that is long enough.",
		Count:   "1",
	}))
	require.NoError(t, err)
	assert.True(t, resp.Msg.Success)
	assert.Equal(t, "r-1", resp.Msg.RequestID)
	assert.Equal(t, "flowchart TD\n    a --> b", resp.Msg.Step2.Diagrams[0].MMD)

	require.Len(t, gen.got, 1)
	assert.Equal(t, "1", gen.got[0].Count)
}

func TestGenerate_ErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		code connect.Code
	}{
		{&flowchart.ValidationError{Problems: []string{"article is required"}}, connect.CodeInvalidArgument},
		{&pipeline.Error{Stage: pipeline.StageExtract, Err: &extract.ExtractError{Kind: extract.KindBackend, Err: &aiengine.Error{Kind: aiengine.KindTimeout}}}, connect.CodeDeadlineExceeded},
		{&pipeline.Error{Stage: pipeline.StageExtract, Err: &extract.ExtractError{Kind: extract.KindMalformedResponse}}, connect.CodeInternal},
	}
	for _, tc := range cases {
		srv := newServer(t, &stubGenerator{err: tc.err})
		_, err := NewClient(srv.Client(), srv.URL).CallUnary(t.Context(), connect.NewRequest(&flowchart.GenerateInput{Article: "whatever text"}))
		require.Error(t, err)
		assert.Equal(t, tc.code, connect.CodeOf(err), tc.err.Error())
	}
}
