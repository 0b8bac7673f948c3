package llmclient

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClient_DerivesCountFromPrompt(t *testing.T) {
	cli := NewFakeClient("", 0)
	out, err := cli.Generate(t.Context(), Request{Prompt: "Produce exactly 4 diagrams for this article."})
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(out, `"title"`))
	assert.True(t, strings.HasPrefix(out, "```json"))
}

func TestScriptedClient_ReplaysAndRepeatsLast(t *testing.T) {
	boom := errors.New("boom")
	cli := NewScriptedClient(FakeReply{Text: "one"}, FakeReply{Err: boom})

	out, err := cli.Generate(t.Context(), Request{Prompt: "a"})
	require.NoError(t, err)
	assert.Equal(t, "one", out)

	_, err = cli.Generate(t.Context(), Request{Prompt: "b"})
	assert.ErrorIs(t, err, boom)
	_, err = cli.Generate(t.Context(), Request{Prompt: "c"})
	assert.ErrorIs(t, err, boom)

	reqs := cli.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "c", reqs[2].Prompt)
}

func TestFakeClient_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := NewFakeClient("", 0).Generate(ctx, Request{Prompt: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
