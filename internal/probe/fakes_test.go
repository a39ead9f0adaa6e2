package probe

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"xprobe/internal/core/types"
)

type fakeBuilder struct {
	data  []byte
	err   error
	calls atomic.Int32
	got   struct{ inbound, traffic int }
}

func (b *fakeBuilder) BuildConfigurationData(inboundPort, trafficPort int, raw string) ([]byte, error) {
	b.calls.Add(1)
	b.got.inbound, b.got.traffic = inboundPort, trafficPort
	if b.err != nil {
		return nil, b.err
	}
	if b.data != nil {
		return b.data, nil
	}
	return []byte(fmt.Sprintf(`{"raw":%q}`, raw)), nil
}

type memStager struct {
	mu      sync.Mutex
	err     error
	next    int
	staged  map[string]string
	removed []string
}

func newMemStager() *memStager {
	return &memStager{staged: map[string]string{}}
}

func (s *memStager) Stage(content string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.next++
	path := fmt.Sprintf("/staged/probe-%d.json", s.next)
	s.staged[path] = content
	return path, nil
}

func (s *memStager) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.staged, path)
	s.removed = append(s.removed, path)
	return nil
}

func (s *memStager) live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.staged)
}

func (s *memStager) stageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

type engineFunc func(ctx context.Context, encoded string) string

func (f engineFunc) Ping(ctx context.Context, encoded string) string {
	return f(ctx, encoded)
}

type unavailableEngine struct{}

func (unavailableEngine) Ping(ctx context.Context, encoded string) string { return "" }
func (unavailableEngine) Available() error { return errors.New("xray missing") }

func respond(body string) string {
	return base64.StdEncoding.EncodeToString([]byte(body))
}

func staticEngine(body string) Engine {
	return engineFunc(func(ctx context.Context, encoded string) string {
		return respond(body)
	})
}

type fakeTunnel struct {
	state atomic.Value
}

func newFakeTunnel(state types.TunnelState) *fakeTunnel {
	t := &fakeTunnel{}
	t.state.Store(state)
	return t
}

func (t *fakeTunnel) State() types.TunnelState {
	return t.state.Load().(types.TunnelState)
}

func (t *fakeTunnel) set(state types.TunnelState) {
	t.state.Store(state)
}

func staticSource(raw string) ConfigSource {
	return ConfigSourceFunc(func(ctx context.Context) (string, error) {
		return raw, nil
	})
}
