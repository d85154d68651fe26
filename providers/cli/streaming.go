package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	codexpc "github.com/haowjy/codexpc-go"
	"github.com/haowjy/codexpc-go/bridge"
	"github.com/haowjy/codexpc-go/telemetry"
)

// ResponseID is reported for every completed CLI response; the binary does
// not print one.
const ResponseID = "codexpc"

// Stdout markers printed by codexpc-cli.
const (
	markerCreated   = "[created]"
	markerCompleted = "[completed]"
)

const (
	readBufferSize = 4096
	errorCode      = "stream_error"
)

// ParseChunk classifies one stdout read. A chunk that is exactly [created]
// (ignoring surrounding whitespace) starts the response; a chunk containing
// [completed] ends it; anything else is response text, verbatim.
func ParseChunk(chunk string) (ev codexpc.Event, final bool) {
	switch {
	case strings.TrimSpace(chunk) == markerCreated:
		return codexpc.CreatedEvent{}, false
	case strings.Contains(chunk, markerCompleted):
		return codexpc.CompletedEvent{ResponseID: ResponseID}, true
	default:
		return codexpc.OutputTextDeltaEvent{Text: chunk}, false
	}
}

// run is one codexpc-cli invocation. Three producers (stdout, stderr and the
// exit status) push into one queue; pump is the only consumer.
type run struct {
	provider *Provider
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	stderr   io.ReadCloser
	queue    *bridge.Queue
	stream   *codexpc.ResponseStream
	span     trace.Span
	logger   *slog.Logger
	started  time.Time
}

func (r *run) start() error {
	var err error
	if r.stdout, err = r.cmd.StdoutPipe(); err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if r.stderr, err = r.cmd.StderrPipe(); err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	r.queue = bridge.NewQueue()
	return r.cmd.Start()
}

// produce starts the producers. The returned channel is closed once the
// process has exited and every producer has finished.
func (r *run) produce() <-chan struct{} {
	done := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		r.readStdout()
	}()
	go func() {
		defer readers.Done()
		r.readStderr()
	}()
	go func() {
		defer close(done)
		// Wait must not run before the pipes are fully read.
		readers.Wait()
		r.wait()
		r.queue.CloseSend()
	}()
	return done
}

func (r *run) readStdout() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.stdout.Read(buf)
		if n > 0 {
			chunk := strings.ToValidUTF8(string(buf[:n]), "\uFFFD")
			ev, final := ParseChunk(chunk)
			r.queue.Push(ev)
			if final {
				// Keep the pipe drained so the child never blocks on a full buffer.
				_, _ = io.Copy(io.Discard, r.stdout)
				return
			}
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			r.queue.Push(codexpc.ErrorEvent{Code: errorCode, Message: fmt.Sprintf("read stdout error: %v", err)})
			return
		}
	}
}

func (r *run) readStderr() {
	data, err := io.ReadAll(r.stderr)
	if err != nil {
		r.logger.Debug("read stderr failed", "error", err)
	}
	if len(data) > 0 {
		r.queue.Push(codexpc.ErrorEvent{Code: errorCode, Message: strings.ToValidUTF8(string(data), "\uFFFD")})
	}
}

func (r *run) wait() {
	err := r.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		r.queue.Push(codexpc.ErrorEvent{
			Code:    errorCode,
			Message: fmt.Sprintf("codexpc-cli exited with status %d", exitErr.ExitCode()),
		})
		return
	}
	if err != nil {
		r.logger.Debug("wait failed", "error", err)
	}
}

// pump feeds the queue through the decoder into the response stream. Events
// after the first terminal one are ignored by the decoder.
func (r *run) pump(ctx context.Context) {
	p := r.provider
	status := telemetry.StatusClosed
	var streamErr error
	done := r.produce()

	defer func() {
		elapsed := time.Since(r.started)
		if p.metrics != nil {
			p.metrics.RequestFinished(Mode, status, elapsed.Seconds())
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

	for {
		ev, err := r.queue.Recv(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			status = telemetry.StatusCancelled
			r.abandon(done)
			return
		}

		for _, out := range dec.Step(ev) {
			switch out.Type {
			case codexpc.ResponseEventCompleted:
				status = telemetry.StatusCompleted
			case codexpc.ResponseEventError:
				status = telemetry.StatusError
				streamErr = out.Err
				r.logger.Warn("codexpc-cli reported error", "error", out.Err)
			}
			if !r.stream.Send(ctx, out) {
				status = telemetry.StatusCancelled
				r.abandon(done)
				return
			}
		}
	}

	if dec.Finish() {
		r.logger.Warn("codexpc-cli ended without a terminal marker")
	}
}

// abandon discards further output and waits, bounded by the drain timeout,
// for the killed process to be reaped.
func (r *run) abandon(done <-chan struct{}) {
	r.queue.Detach()
	timer := time.NewTimer(r.provider.drainTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		r.logger.Warn("codexpc-cli did not exit after cancel", "timeout", r.provider.drainTimeout)
	}
}
