package rpc

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"go.uber.org/zap"

	"ultraflow/internal/gateway/service/flowchart"
	"ultraflow/internal/llm"
	"ultraflow/internal/pipeline"
)

const (
	ServiceName       = "ultraflow.v1.FlowchartService"
	GenerateProcedure = "/" + ServiceName + "/Generate"
)

type Generator interface {
	Generate(ctx context.Context, in flowchart.GenerateInput, opts ...pipeline.RunOption) (pipeline.Result, error)
}

type GenerateResponse struct {
	Success bool `json:"success"`
	pipeline.Result
}

type FlowchartHandler struct {
	gen    Generator
	logger *zap.Logger
}

func NewFlowchartHandler(gen Generator, logger *zap.Logger) *FlowchartHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlowchartHandler{gen: gen, logger: logger}
}

func (h *FlowchartHandler) Generate(ctx context.Context, req *connect.Request[flowchart.GenerateInput]) (*connect.Response[GenerateResponse], error) {
	if id := req.Header().Get("X-Request-ID"); id != "" {
		ctx = llm.WithRequestID(ctx, id)
	}
	res, err := h.gen.Generate(ctx, *req.Msg)
	if err != nil {
		h.logger.Warn("rpc generate failed", zap.Error(err))
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GenerateResponse{Success: true, Result: res}), nil
}

// NewServiceHandler returns the mount path and handler, mirroring generated
// connect constructors.
func NewServiceHandler(h *FlowchartHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	generate := connect.NewUnaryHandler(GenerateProcedure, h.Generate, opts...)
	mux := http.NewServeMux()
	mux.Handle(GenerateProcedure, generate)
	return "/" + ServiceName + "/", mux
}

// NewClient calls Generate on a server at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *connect.Client[flowchart.GenerateInput, GenerateResponse] {
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return connect.NewClient[flowchart.GenerateInput, GenerateResponse](httpClient, baseURL+GenerateProcedure, opts...)
}

func toConnectError(err error) error {
	switch cat, _ := flowchart.Classify(err); cat {
	case flowchart.CategoryInvalid:
		return connect.NewError(connect.CodeInvalidArgument, err)
	case flowchart.CategoryTimeout:
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
