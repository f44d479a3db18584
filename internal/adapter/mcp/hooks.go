package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/guillermoBallester/whydiff/internal/core/port"
)

// callState holds per-request timing and span data.
type callState struct {
	start time.Time
	span  trace.Span
}

// toolCalls tracks in-flight tool calls by request id.
type toolCalls struct {
	logger *slog.Logger
	tracer trace.Tracer
	inst   port.Instrumentation
	calls  sync.Map // id -> *callState
}

// ToolCallHooks creates MCP hooks that log every tool call, time it and,
// when a tracer is given, wrap it in a span. Tool results flagged as errors
// log at Warn since they report bad requests; protocol errors log at Error.
func ToolCallHooks(logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.Hooks {
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	tc := &toolCalls{logger: logger, tracer: tracer, inst: inst}

	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(tc.before)
	hooks.AddAfterCallTool(tc.after)
	hooks.AddOnError(tc.onError)
	return hooks
}

func (tc *toolCalls) before(ctx context.Context, id any, req *mcp.CallToolRequest) {
	state := &callState{start: time.Now()}
	if tc.tracer != nil {
		_, state.span = tc.tracer.Start(ctx, "mcp.tool.call",
			trace.WithAttributes(attribute.String("mcp.tool", req.Params.Name)),
		)
	}
	tc.calls.Store(id, state)
}

func (tc *toolCalls) after(ctx context.Context, id any, req *mcp.CallToolRequest, result any) {
	duration, span := tc.finish(ctx, id)

	r, _ := result.(*mcp.CallToolResult)
	isErr := r != nil && r.IsError
	level := slog.LevelInfo
	if isErr {
		level = slog.LevelWarn
	}
	tc.logger.LogAttrs(ctx, level, "tool call",
		slog.String("rpc.method", "tools/call"),
		slog.String("mcp.tool", req.Params.Name),
		slog.Duration("duration", duration),
		slog.Bool("error", isErr),
	)

	if span != nil {
		if isErr {
			span.SetStatus(codes.Error, "tool returned error")
			span.RecordError(fmt.Errorf("tool %s returned error", req.Params.Name))
		}
		span.End()
	}
}

func (tc *toolCalls) onError(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
	req, ok := message.(*mcp.CallToolRequest)
	if !ok {
		return
	}
	duration, span := tc.finish(ctx, id)

	tc.logger.LogAttrs(ctx, slog.LevelError, "tool call",
		slog.String("rpc.method", string(method)),
		slog.String("mcp.tool", req.Params.Name),
		slog.Duration("duration", duration),
		slog.Bool("error", true),
		slog.String("error.message", err.Error()),
	)

	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
	}
}

// finish forgets the call and records its duration.
func (tc *toolCalls) finish(ctx context.Context, id any) (time.Duration, trace.Span) {
	v, ok := tc.calls.LoadAndDelete(id)
	if !ok {
		return 0, nil
	}
	state := v.(*callState)
	duration := time.Since(state.start)
	tc.inst.RecordToolDuration(ctx, float64(duration.Milliseconds()))
	return duration, state.span
}
