package mcp

import (
	"context"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/xid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/novadb/novadb-mcp-demo/internal/correlation"
	"pkt.systems/pslog"
)

const instrumentationName = "github.com/novadb/novadb-mcp-demo/mcp"

// toolInstruments records spans, metrics and begin/end log lines for every
// tool call. Instruments come from the global providers, so they are no-ops
// until telemetry is configured.
type toolInstruments struct {
	tracer   trace.Tracer
	calls    metric.Int64Counter
	duration metric.Float64Histogram
	logger   pslog.Logger
}

func newToolInstruments(logger pslog.Logger) *toolInstruments {
	meter := otel.Meter(instrumentationName)
	ti := &toolInstruments{
		tracer: otel.Tracer(instrumentationName),
		logger: logger,
	}
	var err error
	ti.calls, err = meter.Int64Counter("novadb.mcp.tool.calls",
		metric.WithDescription("MCP tool calls by tool and outcome"))
	if err != nil {
		logger.Warn("mcp.tools.metric_init_failed", "metric", "novadb.mcp.tool.calls", "error", err)
	}
	ti.duration, err = meter.Float64Histogram("novadb.mcp.tool.duration",
		metric.WithDescription("MCP tool call latency"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("mcp.tools.metric_init_failed", "metric", "novadb.mcp.tool.duration", "error", err)
	}
	return ti
}

func instrumentTool[In, Out any](ti *toolInstruments, name string, h mcpsdk.ToolHandlerFor[In, Out]) mcpsdk.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input In) (*mcpsdk.CallToolResult, Out, error) {
		callID := xid.New().String()
		ctx = correlation.Ensure(ctx)
		ctx, span := ti.tracer.Start(ctx, "novadb.mcp.tool."+name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("mcp.tool.name", name),
				attribute.String("mcp.tool.call_id", callID),
			))
		defer span.End()

		logger := ti.logger.With("tool", name, "call_id", callID, "cid", correlation.ID(ctx))
		logger.Debug("mcp.tool.call.begin")
		start := time.Now()

		res, out, err := h(ctx, req, input)

		elapsed := time.Since(start)
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("mcp.tool.call.end", "outcome", outcome, "elapsed", elapsed, "error", err)
		} else {
			logger.Debug("mcp.tool.call.end", "outcome", outcome, "elapsed", elapsed)
		}
		attrs := metric.WithAttributes(
			attribute.String("tool", name),
			attribute.String("outcome", outcome),
		)
		if ti.calls != nil {
			ti.calls.Add(ctx, 1, attrs)
		}
		if ti.duration != nil {
			ti.duration.Record(ctx, elapsed.Seconds(), attrs)
		}
		return res, out, err
	}
}
