// Command flowchart turns an article into Mermaid diagrams from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"ultraflow/internal/aiengine"
	"ultraflow/internal/extract"
	"ultraflow/internal/llmclient"
	"ultraflow/internal/observability"
	"ultraflow/internal/pipeline"
	"ultraflow/internal/render"
	"ultraflow/internal/safeio"
	"ultraflow/internal/util/jsonutil"
)

type options struct {
	file        string
	theme       string
	count       int
	provider    string
	model       string
	level       string
	jsonOut     bool
	outDir      string
	listModels  string
	timeout     time.Duration
	mermaidInit string
	indent      int
	noColor     bool
	verbose     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		}
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("flowchart", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&o.file, "file", "f", "", "article file (reads stdin when empty or \"-\")")
	fs.StringVarP(&o.theme, "theme", "t", "", "extra instructions for what the diagrams should focus on")
	fs.IntVarP(&o.count, "count", "n", pipeline.DefaultCount, "number of diagrams (1-10)")
	fs.StringVar(&o.provider, "provider", "", "llm provider: gemini, groq or fake (default from LLM_PROVIDER)")
	fs.StringVar(&o.model, "model", "", "model id (default: the provider's default for --level)")
	fs.StringVar(&o.level, "level", "middle", "model level: low, middle, high, xhigh")
	fs.BoolVar(&o.jsonOut, "json", false, "print the full result as JSON")
	fs.StringVarP(&o.outDir, "out", "o", "", "write each diagram to NN-title.mmd in this directory")
	fs.StringVar(&o.listModels, "list-models", "", "list the models of a provider and exit")
	fs.DurationVar(&o.timeout, "timeout", aiengine.DefaultTimeout, "backend call timeout")
	fs.StringVar(&o.mermaidInit, "mermaid-init", os.Getenv("MERMAID_INIT"), "JSON body of a %%{init: ...}%% line, e.g. {\"theme\":\"dark\"}")
	fs.IntVar(&o.indent, "indent", 4, "statement indentation in spaces")
	fs.BoolVar(&o.noColor, "no-color", false, "disable colored output")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "log backend calls to stderr")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.indent < 0 || o.indent > 8 {
		return o, fmt.Errorf("--indent must be between 0 and 8, got %d", o.indent)
	}
	if o.file == "" && fs.NArg() > 0 {
		o.file = fs.Arg(0)
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	_ = godotenv.Load()
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if o.noColor {
		color.NoColor = true
	}

	level := "warn"
	if o.verbose {
		level = "debug"
	}
	logger, err := observability.NewLogger("cli", level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	reg, err := aiengine.BuildRegistry(aiengine.ProviderSettings{
		Gemini:     llmclient.ProviderOptions{APIKey: os.Getenv("GEMINI_API_KEY"), Tier: os.Getenv("GEMINI_TIER")},
		Groq:       llmclient.ProviderOptions{APIKey: os.Getenv("GROQ_API_KEY"), Tier: os.Getenv("GROQ_TIER"), BaseURL: os.Getenv("GROQ_BASE_URL")},
		ModelsFile: os.Getenv("ULTRAFLOW_MODELS_FILE"),
	})
	if err != nil {
		return err
	}

	if o.listModels != "" {
		return listModels(stdout, reg, o.listModels)
	}

	article, err := readArticle(o.file, stdin)
	if err != nil {
		return err
	}

	provider := firstNonEmpty(o.provider, os.Getenv("LLM_PROVIDER"), "gemini")
	engine, err := aiengine.New(ctx, reg, aiengine.Config{
		Provider: provider,
		Model:    firstNonEmpty(o.model, os.Getenv("LLM_MODEL")),
		Level:    llmclient.ModelLevel(o.level),
		Timeout:  o.timeout,
	}, aiengine.WithLogger(logger.Named("llm")))
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	exec := pipeline.New(
		extract.New(engine, extract.WithLogger(logger.Named("extract"))),
		render.New(
			render.WithInitDirective(o.mermaidInit),
			render.WithIndent(strings.Repeat(" ", o.indent)),
		),
		pipeline.WithLogger(logger.Named("pipeline")),
	)
	count := pipeline.NormalizeCount(o.count)
	res, err := exec.Run(ctx, pipeline.Request{Article: article, ThemeInstructions: o.theme, Count: count})
	if err != nil {
		return err
	}

	if o.outDir != "" {
		paths, err := writeDiagrams(o.outDir, res)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintln(stderr, color.GreenString("wrote"), p)
		}
	}
	if o.jsonOut {
		b, err := jsonutil.MarshalNoEscape(res)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, string(b))
		return err
	}
	if o.outDir == "" {
		printDiagrams(stdout, res)
	}
	if res.Step2.Count < count {
		fmt.Fprintln(stderr, color.YellowString("note:"), fmt.Sprintf("%d of %d requested diagrams were usable", res.Step2.Count, count))
	}
	return nil
}

func readArticle(path string, stdin io.Reader) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "" || path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read article: %w", err)
	}
	return string(b), nil
}

func listModels(w io.Writer, reg aiengine.Registry, provider string) error {
	models, err := reg.Descriptors(strings.ToLower(strings.TrimSpace(provider)))
	if err != nil {
		return err
	}
	head := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintln(w, head(provider))
	for _, m := range models {
		levels := make([]string, len(m.Levels))
		for i, l := range m.Levels {
			levels[i] = string(l)
		}
		fmt.Fprintf(w, "  %-28s levels=%s max_tokens=%d\n", m.Model, strings.Join(levels, ","), m.MaxTokens)
	}
	return nil
}

func printDiagrams(w io.Writer, res pipeline.Result) {
	head := color.New(color.FgCyan, color.Bold).SprintfFunc()
	for i, d := range res.Step2.Diagrams {
		fmt.Fprintln(w, head("%%%% [%d] %s", i+1, d.SourceTitle))
		fmt.Fprintln(w, d.MMD)
		fmt.Fprintln(w)
	}
}

func writeDiagrams(dir string, res pipeline.Result) ([]string, error) {
	out, err := safeio.NewSafeFS(dir, true)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(res.Step2.Diagrams))
	for i, d := range res.Step2.Diagrams {
		name := fmt.Sprintf("%02d-%s.mmd", i+1, slug(d.SourceTitle))
		p, err := out.SafeWriteFile(name, []byte(d.MMD+"\n"))
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	if b.Len() == 0 {
		return "diagram"
	}
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
