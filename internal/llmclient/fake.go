package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

var fakeCountPattern = regexp.MustCompile(`(?i)exactly (\d+) diagrams?`)

// FakeClient answers offline. With no script it derives a deterministic set of
// flowcharts from the prompt; with a script it replays the queued replies in order.
type FakeClient struct {
	model    string
	tokenCap int

	mu       sync.Mutex
	script   []FakeReply
	requests []Request
}

// FakeReply is one scripted answer. A non-nil Err is returned instead of Text.
type FakeReply struct {
	Text string
	Err  error
}

func NewFakeClient(model string, tokenCap int) *FakeClient {
	if tokenCap <= 0 {
		tokenCap = 4096
	}
	if model == "" {
		model = "fake-middle"
	}
	return &FakeClient{model: model, tokenCap: tokenCap}
}

// NewScriptedClient returns a FakeClient that replays replies. Once the script
// is exhausted the last reply repeats.
func NewScriptedClient(replies ...FakeReply) *FakeClient {
	f := NewFakeClient("fake-scripted", 0)
	f.script = replies
	return f
}

func (f *FakeClient) Name() string { return "Fake:" + f.model }
func (f *FakeClient) Close() error { return nil }
func (f *FakeClient) CountTokens(text string) int {
	return CountTokens(text)
}
func (f *FakeClient) TokenCapacity() int { return f.tokenCap }

// Requests returns a copy of every request seen so far.
func (f *FakeClient) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *FakeClient) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	var reply *FakeReply
	if n := len(f.script); n > 0 {
		idx := len(f.requests) - 1
		if idx >= n {
			idx = n - 1
		}
		r := f.script[idx]
		reply = &r
	}
	f.mu.Unlock()

	if reply != nil {
		if reply.Err != nil {
			return "", reply.Err
		}
		return reply.Text, nil
	}
	return fakeDiagrams(req.Prompt), nil
}

func fakeDiagrams(prompt string) string {
	count := 1
	if m := fakeCountPattern.FindStringSubmatch(prompt); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			count = n
		}
	}
	type node struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	}
	type edge struct {
		From  string `json:"from"`
		To    string `json:"to"`
		Label string `json:"label,omitempty"`
	}
	type spec struct {
		Title string `json:"title"`
		Type  string `json:"type"`
		Nodes []node `json:"nodes"`
		Edges []edge `json:"edges"`
	}
	out := struct {
		Diagrams []spec `json:"diagrams"`
	}{}
	for i := 1; i <= count; i++ {
		out.Diagrams = append(out.Diagrams, spec{
			Title: fmt.Sprintf("Fake flow %d", i),
			Type:  "flowchart",
			Nodes: []node{
				{ID: "start", Label: "Start"},
				{ID: "step", Label: fmt.Sprintf("Step %d", i)},
				{ID: "done", Label: "Done"},
			},
			Edges: []edge{
				{From: "start", To: "step"},
				{From: "step", To: "done", Label: "ok"},
			},
		})
	}
	b, _ := json.Marshal(out)
	return "```json\n" + string(b) + "\n```"
}

func RegisterFakeModels(reg ModelRegistrar) error {
	models := []struct {
		name   string
		level  ModelLevel
		tokens int
	}{
		{name: "fake-low", level: ModelLevelLow, tokens: 2048},
		{name: "fake-middle", level: ModelLevelMiddle, tokens: 4096},
		{name: "fake-high", level: ModelLevelHigh, tokens: 8192},
		{name: "fake-xhigh", level: ModelLevelXHigh, tokens: 16384},
	}
	for _, m := range models {
		name := m.name
		tokens := m.tokens
		if err := reg.RegisterModel(ModelRegistration{
			Provider:  "fake",
			Model:     name,
			Level:     m.level,
			MaxTokens: tokens,
			Factory: func(_ context.Context, tokenCap int) (LLMClient, error) {
				if tokenCap <= 0 {
					tokenCap = tokens
				}
				return NewFakeClient(name, tokenCap), nil
			},
		}); err != nil {
			return err
		}
	}
	return nil
}

// IsFakeProvider reports whether provider selects the offline backend.
func IsFakeProvider(provider string) bool {
	return strings.EqualFold(strings.TrimSpace(provider), "fake")
}
