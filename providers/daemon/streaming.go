package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	codexpc "github.com/haowjy/codexpc-go"
	"github.com/haowjy/codexpc-go/bridge"
	"github.com/haowjy/codexpc-go/telemetry"
)

// run is one in-flight request: the pump goroutine owns the handle and is
// the only reader of events.
type run struct {
	provider *Provider
	prompt   *codexpc.Prompt
	handle   *bridge.Handle
	events   *bridge.EventStream
	stream   *codexpc.ResponseStream
	span     trace.Span
	logger   *slog.Logger
	started  time.Time
}

// pump moves bridge events through the decoder into the response stream
// until a terminal event, source exhaustion, or cancellation. On
// cancellation it asks the daemon to stop and keeps draining, bounded by the
// drain timeout, before releasing the handle.
func (r *run) pump(ctx context.Context) {
	p := r.provider
	status := telemetry.StatusClosed
	var streamErr error

	defer func() {
		r.handle.Release()

		elapsed := time.Since(r.started)
		if p.metrics != nil {
			p.metrics.RequestFinished(string(p.mode), status, elapsed.Seconds())
		}
		p.tracer.SetAttributes(r.span, "codexpc.status", status)
		p.tracer.RecordError(r.span, streamErr)
		r.span.End()
		r.logger.Debug("request finished", "status", status, "duration_ms", elapsed.Milliseconds())
		r.stream.CloseSend()
	}()

	decoderOpts := []codexpc.DecoderOption{codexpc.WithDecoderLogger(r.logger)}
	if p.metrics != nil {
		decoderOpts = append(decoderOpts, codexpc.WithMetricsObserver(p.metrics))
	}
	dec := codexpc.NewDecoder(decoderOpts...)
	firstDelta := true

	for {
		ev, err := r.events.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			status = telemetry.StatusCancelled
			r.cancelAndDrain()
			return
		}

		for _, out := range dec.Step(ev) {
			switch out.Type {
			case codexpc.ResponseEventOutputTextDelta:
				if firstDelta {
					firstDelta = false
					p.tracer.AddEvent(r.span, "first_delta", "elapsed_ms", time.Since(r.started).Milliseconds())
				}
			case codexpc.ResponseEventOutputItemDone:
				r.checkToolCall(out.Item)
			case codexpc.ResponseEventCompleted:
				status = telemetry.StatusCompleted
				if p.metrics != nil {
					p.metrics.RecordUsage(out.Usage)
				}
			case codexpc.ResponseEventError:
				streamErr = out.Err
				status = telemetry.StatusError
				if se, ok := codexpc.IsStreamError(out.Err); ok && se.IsCancelled() {
					status = telemetry.StatusCancelled
				}
				r.logger.Warn("daemon reported error", "error", out.Err)
			}

			if !r.stream.Send(ctx, out) {
				status = telemetry.StatusCancelled
				r.cancelAndDrain()
				return
			}
		}
	}

	if dec.Finish() {
		r.logger.Warn("stream ended without a terminal event")
	}
}

// cancelAndDrain cancels the request and discards events until the daemon
// acknowledges with a terminal event, the queue closes, or the drain timeout
// elapses.
func (r *run) cancelAndDrain() {
	r.handle.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), r.provider.drainTimeout)
	defer cancel()

	discarded := 0
	for {
		ev, err := r.events.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.logger.Warn("drain timed out after cancel", "discarded", discarded, "timeout", r.provider.drainTimeout)
				return
			}
			break
		}
		discarded++
		if codexpc.IsTerminal(ev) {
			break
		}
	}
	r.logger.Debug("drained after cancel", "discarded", discarded)
}

// checkToolCall warns when a tool call's input does not match the schema of
// the tool it names. The call is still delivered.
func (r *run) checkToolCall(item *codexpc.ResponseItem) {
	if item == nil || !item.IsToolCall() {
		return
	}
	tool, ok := codexpc.FindTool(r.prompt.Tools, item.Name)
	if !ok {
		r.logger.Warn("tool call names an unknown tool", "tool", item.Name, "call_id", item.CallID)
		return
	}
	if err := tool.ValidateInput(item.Input); err != nil {
		r.logger.Warn("tool call input does not match schema", "tool", item.Name, "call_id", item.CallID, "error", err)
	}
}
