package probe

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xprobe/internal/core/types"
	pkgerrors "xprobe/pkg/errors"
)

type runnerFunc func(ctx context.Context) (int, error)

func (f runnerFunc) Run(ctx context.Context) (int, error) {
	return f(ctx)
}

func newTestScheduler(t *testing.T, runner Runner, tunnel TunnelStateProvider) (*Scheduler, chan Outcome) {
	t.Helper()
	s, err := NewScheduler(runner, tunnel, time.Hour)
	require.NoError(t, err)

	outcomes := make(chan Outcome, 16)
	s.Subscribe(func(o Outcome) {
		outcomes <- o
	})
	return s, outcomes
}

func waitOutcome(t *testing.T, outcomes <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-outcomes:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for probe outcome")
		return Outcome{}
	}
}

func TestSchedulerConnectedProbeUpdatesReading(t *testing.T) {
	stager := newMemStager()
	pipeline := newTestPipeline(staticSource("valid-config-blob"), staticEngine(`{"success":true,"data":250}`), stager)
	s, outcomes := newTestScheduler(t, pipeline, newFakeTunnel(types.TunnelConnected))

	assert.True(t, s.Tick(context.Background()))

	o := waitOutcome(t, outcomes)
	require.NoError(t, o.Err)
	assert.True(t, o.Updated())
	assert.Equal(t, 250, o.Reading.MS)
	assert.Equal(t, SeverityGood, o.Reading.Severity())

	s.wg.Wait()
	assert.Equal(t, Reading{MS: 250, Valid: true, At: o.Reading.At}, s.Reading())
	assert.NoError(t, s.LastError())
	assert.False(t, s.Probing())
	assert.Zero(t, stager.live())
}

func TestSchedulerSkipsWhenNotConnected(t *testing.T) {
	states := []types.TunnelState{types.TunnelDisconnected, types.TunnelConnecting, types.TunnelDisconnecting}

	for _, state := range states {
		t.Run(string(state), func(t *testing.T) {
			var calls atomic.Int32
			runner := runnerFunc(func(ctx context.Context) (int, error) {
				calls.Add(1)
				return 1, nil
			})
			s, outcomes := newTestScheduler(t, runner, newFakeTunnel(state))

			assert.False(t, s.Tick(context.Background()))
			s.wg.Wait()
			assert.Zero(t, calls.Load())
			assert.Empty(t, outcomes)
			assert.False(t, s.Reading().Valid)
		})
	}
}

func TestSchedulerFailureKeepsLastReading(t *testing.T) {
	raw := "valid-config-blob"
	source := ConfigSourceFunc(func(ctx context.Context) (string, error) {
		return raw, nil
	})
	pipeline := newTestPipeline(source, staticEngine(`{"success":true,"data":250}`), newMemStager())
	s, outcomes := newTestScheduler(t, pipeline, newFakeTunnel(types.TunnelConnected))

	require.True(t, s.Tick(context.Background()))
	first := waitOutcome(t, outcomes)
	require.NoError(t, first.Err)
	s.wg.Wait()

	raw = ""
	require.True(t, s.Tick(context.Background()))
	second := waitOutcome(t, outcomes)
	assert.ErrorIs(t, second.Err, pkgerrors.ErrEmptyConfiguration)
	assert.False(t, second.Updated())
	assert.Equal(t, first.Reading, second.Reading)

	s.wg.Wait()
	assert.Equal(t, 250, s.Reading().MS)
	assert.ErrorIs(t, s.LastError(), pkgerrors.ErrEmptyConfiguration)
}

func TestSchedulerUnsuccessfulIsNegative(t *testing.T) {
	pipeline := newTestPipeline(staticSource("cfg"), staticEngine(`{"success":false,"error":"timeout"}`), newMemStager())
	s, outcomes := newTestScheduler(t, pipeline, newFakeTunnel(types.TunnelConnected))

	require.True(t, s.Tick(context.Background()))
	o := waitOutcome(t, outcomes)
	assert.True(t, o.Negative())
	assert.False(t, o.Reading.Valid)
}

func TestSchedulerDropsTickWhileProbing(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	runner := runnerFunc(func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 300, nil
	})
	s, outcomes := newTestScheduler(t, runner, newFakeTunnel(types.TunnelConnected))

	require.True(t, s.Tick(context.Background()))
	assert.True(t, s.Probing())
	assert.False(t, s.Tick(context.Background()), "second tick must be dropped")
	assert.False(t, s.Tick(context.Background()))

	close(release)
	o := waitOutcome(t, outcomes)
	assert.Equal(t, 300, o.Reading.MS)
	s.wg.Wait()
	assert.Equal(t, int32(1), calls.Load())

	assert.True(t, s.Tick(context.Background()), "slot is free again")
	waitOutcome(t, outcomes)
}

func blockingRunner(started chan<- struct{}) Runner {
	return runnerFunc(func(ctx context.Context) (int, error) {
		started <- struct{}{}
		<-ctx.Done()
		// Pretend the engine answered anyway.
		return 10, nil
	})
}

func TestSchedulerDisconnectCancelsInFlight(t *testing.T) {
	started := make(chan struct{}, 1)
	tunnel := newFakeTunnel(types.TunnelConnected)
	s, outcomes := newTestScheduler(t, blockingRunner(started), tunnel)

	require.True(t, s.Tick(context.Background()))
	<-started

	tunnel.set(types.TunnelDisconnected)
	s.HandleTunnelState(types.TunnelDisconnected)
	s.wg.Wait()

	assert.Empty(t, outcomes, "late result must be discarded")
	assert.False(t, s.Reading().Valid)
	assert.False(t, s.Probing())
}

func TestSchedulerTickWhileDisconnectedCancelsInFlight(t *testing.T) {
	started := make(chan struct{}, 1)
	tunnel := newFakeTunnel(types.TunnelConnected)
	s, outcomes := newTestScheduler(t, blockingRunner(started), tunnel)

	require.True(t, s.Tick(context.Background()))
	<-started

	tunnel.set(types.TunnelDisconnecting)
	assert.False(t, s.Tick(context.Background()))
	s.wg.Wait()

	assert.Empty(t, outcomes)
	assert.False(t, s.Reading().Valid)
}

func TestSchedulerConnectedStateKeepsProbe(t *testing.T) {
	release := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context) (int, error) {
		<-release
		return 20, nil
	})
	s, outcomes := newTestScheduler(t, runner, newFakeTunnel(types.TunnelConnected))

	require.True(t, s.Tick(context.Background()))
	s.HandleTunnelState(types.TunnelConnected)
	close(release)

	assert.Equal(t, 20, waitOutcome(t, outcomes).Reading.MS)
}

func TestSchedulerStartStop(t *testing.T) {
	started := make(chan struct{}, 1)
	var calls atomic.Int32
	runner := runnerFunc(func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			return 120, nil
		}
		started <- struct{}{}
		<-ctx.Done()
		return 0, ctx.Err()
	})
	s, outcomes := newTestScheduler(t, runner, newFakeTunnel(types.TunnelConnected))

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start(context.Background()))

	o := waitOutcome(t, outcomes)
	assert.Equal(t, 120, o.Reading.MS)

	s.wg.Wait()
	require.True(t, s.Tick(context.Background()))
	<-started

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.Empty(t, outcomes)
	assert.Equal(t, 120, s.Reading().MS)
	assert.Error(t, s.Stop())
}

func TestNewSchedulerValidates(t *testing.T) {
	_, err := NewScheduler(nil, newFakeTunnel(types.TunnelConnected), time.Second)
	assert.Error(t, err)

	s, err := NewScheduler(runnerFunc(func(ctx context.Context) (int, error) { return 0, nil }), newFakeTunnel(types.TunnelConnected), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, s.interval)
}

func TestSchedulerProbeNow(t *testing.T) {
	var calls atomic.Int32
	runner := runnerFunc(func(ctx context.Context) (int, error) {
		return int(calls.Add(1)) * 100, nil
	})
	s, outcomes := newTestScheduler(t, runner, newFakeTunnel(types.TunnelConnected))

	assert.False(t, s.ProbeNow())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.Equal(t, 100, waitOutcome(t, outcomes).Reading.MS)

	s.wg.Wait()
	require.True(t, s.ProbeNow())
	assert.Equal(t, 200, waitOutcome(t, outcomes).Reading.MS)
}
