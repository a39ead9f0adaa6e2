package probe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	pkgerrors "xprobe/pkg/errors"
)

// Engine is the native probe engine. It takes a base64 encoded request and
// always answers with a base64 encoded response, possibly malformed.
type Engine interface {
	Ping(ctx context.Context, encoded string) string
}

// availabilityChecker is implemented by engines that can tell up front
// that they cannot run.
type availabilityChecker interface {
	Available() error
}

// Invoker encodes requests and calls the engine.
type Invoker struct {
	engine Engine
}

// NewInvoker creates an Invoker. A nil engine makes every call fail with
// ErrEngineUnavailable.
func NewInvoker(engine Engine) *Invoker {
	return &Invoker{engine: engine}
}

// EncodeRequest serializes req as JSON wrapped in standard base64.
func EncodeRequest(req *Request) (string, error) {
	if req == nil {
		return "", fmt.Errorf("%w: nil request", pkgerrors.ErrEncoding)
	}
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", pkgerrors.ErrEncoding, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Invoke sends req to the engine and returns its response untouched. The
// call blocks for as long as the engine does unless ctx ends first, in
// which case the engine's eventual answer is dropped.
func (i *Invoker) Invoke(ctx context.Context, req *Request) (string, error) {
	encoded, err := EncodeRequest(req)
	if err != nil {
		return "", invokeError(err)
	}

	if i.engine == nil {
		return "", invokeError(pkgerrors.ErrEngineUnavailable)
	}
	if checker, ok := i.engine.(availabilityChecker); ok {
		if err := checker.Available(); err != nil {
			return "", invokeError(fmt.Errorf("%w: %w", pkgerrors.ErrEngineUnavailable, err))
		}
	}

	type result struct {
		response string
		err      error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: engine panicked: %v", pkgerrors.ErrEngineUnavailable, r)}
			}
		}()
		done <- result{response: i.engine.Ping(ctx, encoded)}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", invokeError(r.err)
		}
		return r.response, nil
	}
}

func invokeError(err error) error {
	return &pkgerrors.ProbeError{Stage: StageInvoke, Err: err}
}
