// Package flowchart adapts transport requests to the pipeline: it validates
// input, normalises the count and classifies failures for the handlers.
package flowchart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"ultraflow/internal/aiengine"
	"ultraflow/internal/extract"
	"ultraflow/internal/pipeline"
	"ultraflow/internal/render"
)

// GenerateInput is the request body shared by REST, RPC and WebSocket.
// Count may be a number, a numeric string or absent.
type GenerateInput struct {
	Article           string `json:"article" validate:"required,min=10,max=100000"`
	ThemeInstructions string `json:"themeInstructions,omitempty" validate:"max=4000"`
	Count             any    `json:"count,omitempty"`
}

type Runner interface {
	Run(ctx context.Context, req pipeline.Request, opts ...pipeline.RunOption) (pipeline.Result, error)
}

type Service struct {
	runner   Runner
	validate *validator.Validate
	logger   *zap.Logger
}

func New(runner Runner, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{runner: runner, validate: validator.New(), logger: logger}
}

// Generate validates in and runs the pipeline. Validation failures never reach the backend.
func (s *Service) Generate(ctx context.Context, in GenerateInput, opts ...pipeline.RunOption) (pipeline.Result, error) {
	in.Article = strings.TrimSpace(in.Article)
	if err := s.validate.Struct(in); err != nil {
		return pipeline.Result{}, toValidationError(err)
	}
	return s.runner.Run(ctx, pipeline.Request{
		Article:           in.Article,
		ThemeInstructions: in.ThemeInstructions,
		Count:             pipeline.NormalizeCount(in.Count),
	}, opts...)
}

// ValidationError lists every rejected field.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string { return strings.Join(e.Problems, "; ") }

func toValidationError(err error) error {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return &ValidationError{Problems: []string{err.Error()}}
	}
	out := &ValidationError{}
	for _, f := range fields {
		out.Problems = append(out.Problems, formatFieldError(f))
	}
	return out
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field()[:1]) + e.Field()[1:]
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// Category groups failures by how a transport should report them.
type Category int

const (
	CategoryInternal Category = iota
	CategoryInvalid
	CategoryTimeout
)

// Classify maps a Generate error to a Category and a stable machine code.
func Classify(err error) (Category, string) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return CategoryInvalid, "validation_error"
	}
	var xerr *extract.ExtractError
	if errors.As(err, &xerr) && xerr.Kind == extract.KindValidation {
		return CategoryInvalid, "validation_error"
	}
	var aerr *aiengine.Error
	if errors.As(err, &aerr) {
		switch aerr.Kind {
		case aiengine.KindInvalidInput:
			return CategoryInvalid, "validation_error"
		case aiengine.KindTimeout:
			return CategoryTimeout, "ai_timeout"
		default:
			return CategoryInternal, "ai_error"
		}
	}
	if xerr != nil {
		return CategoryInternal, string(xerr.Kind)
	}
	var rerr *render.RenderError
	if errors.As(err, &rerr) {
		return CategoryInternal, "render_error"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout, "timeout"
	}
	return CategoryInternal, "internal_error"
}
