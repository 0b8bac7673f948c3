package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ultraflow/internal/util/jsonutil"
)

const article = "Customers sign up, confirm their email and then complete onboarding with a guided tour."

func TestRunPrintsDiagrams(t *testing.T) {
	var out, errOut bytes.Buffer
	err := run(t.Context(), []string{"--provider", "fake", "-n", "2", "--no-color"}, strings.NewReader(article), &out, &errOut)
	require.NoError(t, err)

	text := out.String()
	assert.Equal(t, 2, strings.Count(text, "flowchart TD"))
	assert.Contains(t, text, "%% [1] Fake flow 1")
	assert.Contains(t, text, "%% [2] Fake flow 2")
	assert.Contains(t, text, "start --> step")
}

func TestRunRenderFlags(t *testing.T) {
	var out, errOut bytes.Buffer
	args := []string{"--provider", "fake", "-n", "1", "--no-color", "--indent", "2", "--mermaid-init", `{"theme":"dark"}`}
	err := run(t.Context(), args, strings.NewReader(article), &out, &errOut)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "%%{init: {\"theme\":\"dark\"}}%%\nflowchart TD\n  start")

	err = run(t.Context(), []string{"--provider", "fake", "--indent", "-1"}, strings.NewReader(article), &out, &errOut)
	assert.Error(t, err)
}

func TestRunJSON(t *testing.T) {
	var out, errOut bytes.Buffer
	err := run(t.Context(), []string{"--provider", "fake", "--count", "3", "--json"}, strings.NewReader(article), &out, &errOut)
	require.NoError(t, err)

	var res struct {
		Step1 struct {
			DiagramCount int `json:"diagramCount"`
		} `json:"step1"`
		Step2 struct {
			Diagrams []struct {
				MMD string `json:"mmd"`
			} `json:"diagrams"`
		} `json:"step2"`
	}
	require.NoError(t, jsonutil.UnmarshalFlex(out.Bytes(), &res))
	assert.Equal(t, 3, res.Step1.DiagramCount)
	assert.Len(t, res.Step2.Diagrams, 3)
}

func TestRunWritesFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "article.txt")
	require.NoError(t, os.WriteFile(src, []byte(article), 0o644))
	outDir := filepath.Join(dir, "out")

	var out, errOut bytes.Buffer
	err := run(t.Context(), []string{"--provider", "fake", "-n", "2", "-f", src, "-o", outDir, "--no-color"}, strings.NewReader(""), &out, &errOut)
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(outDir, "01-fake-flow-1.mmd"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "flowchart TD\n"))
	assert.FileExists(t, filepath.Join(outDir, "02-fake-flow-2.mmd"))
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "wrote")
}

func TestRunShortArticleFails(t *testing.T) {
	var out, errOut bytes.Buffer
	err := run(t.Context(), []string{"--provider", "fake"}, strings.NewReader("too short"), &out, &errOut)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 10 characters")
}

func TestRunListModels(t *testing.T) {
	var out, errOut bytes.Buffer
	err := run(t.Context(), []string{"--list-models", "fake", "--no-color"}, strings.NewReader(""), &out, &errOut)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "fake-middle")
	assert.Contains(t, out.String(), "fake-xhigh")
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Fake flow 1":          "fake-flow-1",
		"  Sign-up / Login!  ": "sign-up-login",
		"???":                  "diagram",
		"ÜberFlow":             "berflow",
	}
	for in, want := range cases {
		assert.Equal(t, want, slug(in), in)
	}
}
