// Package probe measures round-trip latency through the tunnel's local SOCKS
// proxy on a fixed cadence while the tunnel is connected.
//
// One probe is: read the raw configuration, build and stage an effective
// config (RequestBuilder), hand an encoded request to the native engine
// (Invoker), and decode the engine's answer (Decode). The Scheduler drives
// probes and publishes Outcomes; Classify maps a latency to a Severity.
package probe

import (
	"fmt"
	"strings"
	"unicode/utf8"

	pkgerrors "xprobe/pkg/errors"
)

// Pipeline stages used in ProbeError.
const (
	StageBuild  = "build"
	StageInvoke = "invoke"
	StageDecode = "decode"
)

// Defaults for the probe request.
const (
	DefaultTimeout     = 30
	DefaultURL         = "https://www.google.com"
	DefaultInboundPort = 10808
	DefaultTrafficPort = 49227
)

// ConfigBuilder merges a raw configuration into an effective document.
type ConfigBuilder interface {
	BuildConfigurationData(inboundPort, trafficPort int, raw string) ([]byte, error)
}

// Stager materializes content and returns a readable path to it.
type Stager interface {
	Stage(content string) (string, error)
}

// Request is the document handed to the probe engine.
type Request struct {
	DatDir     *string `json:"datDir"`
	ConfigPath string  `json:"configPath"`
	Timeout    int     `json:"timeout"`
	URL        string  `json:"url"`
	Proxy      string  `json:"proxy"`
}

// RequestOptions tunes what RequestBuilder produces. Zero values fall back
// to the defaults above.
type RequestOptions struct {
	InboundPort int
	TrafficPort int
	DatDir      string
	Timeout     int
	URL         string
}

// RequestBuilder turns a raw configuration into a Request whose
// ConfigPath points at a staged copy of the effective configuration.
type RequestBuilder struct {
	builder ConfigBuilder
	stager  Stager
	opts    RequestOptions
}

// NewRequestBuilder creates a RequestBuilder.
func NewRequestBuilder(builder ConfigBuilder, stager Stager, opts RequestOptions) *RequestBuilder {
	if opts.InboundPort == 0 {
		opts.InboundPort = DefaultInboundPort
	}
	if opts.TrafficPort == 0 {
		opts.TrafficPort = DefaultTrafficPort
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	return &RequestBuilder{builder: builder, stager: stager, opts: opts}
}

// Build validates raw, builds and stages the effective configuration and
// returns the request for sock5Port. Empty input fails before any I/O.
func (b *RequestBuilder) Build(raw string, sock5Port int) (*Request, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, buildError(pkgerrors.ErrEmptyConfiguration)
	}
	if b.builder == nil {
		return nil, buildError(fmt.Errorf("%w: no configuration builder", pkgerrors.ErrConfigurationBuild))
	}

	data, err := b.builder.BuildConfigurationData(b.opts.InboundPort, b.opts.TrafficPort, raw)
	if err != nil {
		return nil, buildError(fmt.Errorf("%w: %w", pkgerrors.ErrConfigurationBuild, err))
	}
	if len(data) == 0 {
		return nil, buildError(fmt.Errorf("%w: builder returned no data", pkgerrors.ErrConfigurationBuild))
	}
	if !utf8.Valid(data) {
		return nil, buildError(fmt.Errorf("%w: configuration is not valid UTF-8", pkgerrors.ErrEncoding))
	}

	path, err := b.stager.Stage(string(data))
	if err != nil {
		return nil, buildError(fmt.Errorf("%w: %w", pkgerrors.ErrFileWrite, err))
	}

	req := &Request{
		ConfigPath: path,
		Timeout:    b.opts.Timeout,
		URL:        b.opts.URL,
		Proxy:      ProxyURI(sock5Port),
	}
	if b.opts.DatDir != "" {
		datDir := b.opts.DatDir
		req.DatDir = &datDir
	}
	return req, nil
}

// ProxyURI returns the local SOCKS5 proxy address for port.
func ProxyURI(port int) string {
	return fmt.Sprintf("socks5://127.0.0.1:%d", port)
}

func buildError(err error) error {
	return &pkgerrors.ProbeError{Stage: StageBuild, Err: err}
}
