package probe

import (
	"context"
	"fmt"
	"log/slog"

	"xprobe/internal/logger"
	pkgerrors "xprobe/pkg/errors"
)

// ConfigSource supplies the raw configuration. An absent value is "".
type ConfigSource interface {
	RawConfiguration(ctx context.Context) (string, error)
}

// ConfigSourceFunc adapts a function to ConfigSource.
type ConfigSourceFunc func(ctx context.Context) (string, error)

func (f ConfigSourceFunc) RawConfiguration(ctx context.Context) (string, error) {
	return f(ctx)
}

// Remover deletes staged artifacts.
type Remover interface {
	Remove(path string) error
}

// Pipeline runs one probe: read config, build request, invoke, decode.
type Pipeline struct {
	source    ConfigSource
	builder   *RequestBuilder
	invoker   *Invoker
	remover   Remover
	sock5Port int
	log       *slog.Logger
}

// NewPipeline wires the probe stages. remover may be nil, in which case
// staged files are left in place.
func NewPipeline(source ConfigSource, builder *RequestBuilder, invoker *Invoker, remover Remover, sock5Port int) *Pipeline {
	return &Pipeline{
		source:    source,
		builder:   builder,
		invoker:   invoker,
		remover:   remover,
		sock5Port: sock5Port,
		log:       logger.WithComponent("probe.pipeline"),
	}
}

// Run performs one probe and returns the measured latency in ms. The raw
// configuration is read fresh on every call. The staged file is removed
// on every path out, including cancellation.
func (p *Pipeline) Run(ctx context.Context) (int, error) {
	raw, err := p.source.RawConfiguration(ctx)
	if err != nil {
		return 0, &pkgerrors.ProbeError{Stage: StageBuild, Err: fmt.Errorf("failed to read raw configuration: %w", err)}
	}

	req, err := p.builder.Build(raw, p.sock5Port)
	if err != nil {
		return 0, err
	}
	defer p.release(req.ConfigPath)

	response, err := p.invoker.Invoke(ctx, req)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return Decode(response)
}

func (p *Pipeline) release(path string) {
	if p.remover == nil || path == "" {
		return
	}
	if err := p.remover.Remove(path); err != nil {
		p.log.Warn("failed to remove staged config", "path", path, "error", err)
	}
}
