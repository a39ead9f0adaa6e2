package probe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "xprobe/pkg/errors"
)

func TestBuildRejectsEmptyWithoutIO(t *testing.T) {
	for _, raw := range []string{"", " ", "\n\t "} {
		builder := &fakeBuilder{}
		stager := newMemStager()
		rb := NewRequestBuilder(builder, stager, RequestOptions{})

		req, err := rb.Build(raw, 10808)
		assert.Nil(t, req)
		assert.ErrorIs(t, err, pkgerrors.ErrEmptyConfiguration)
		assert.Zero(t, builder.calls.Load())
		assert.Zero(t, stager.stageCount())
	}
}

func TestBuildRequest(t *testing.T) {
	builder := &fakeBuilder{}
	stager := newMemStager()
	rb := NewRequestBuilder(builder, stager, RequestOptions{})

	req, err := rb.Build("valid-config-blob", 10808)
	require.NoError(t, err)

	assert.Equal(t, DefaultTimeout, req.Timeout)
	assert.Equal(t, DefaultURL, req.URL)
	assert.Equal(t, "socks5://127.0.0.1:10808", req.Proxy)
	assert.Nil(t, req.DatDir)
	assert.Equal(t, `{"raw":"valid-config-blob"}`, stager.staged[req.ConfigPath])
	assert.Equal(t, DefaultInboundPort, builder.got.inbound)
	assert.Equal(t, DefaultTrafficPort, builder.got.traffic)
}

func TestBuildRequestOptions(t *testing.T) {
	rb := NewRequestBuilder(&fakeBuilder{}, newMemStager(), RequestOptions{
		InboundPort: 20808,
		TrafficPort: 59227,
		DatDir:      "/usr/share/xray",
		Timeout:     5,
		URL:         "https://cp.cloudflare.com",
	})

	req, err := rb.Build("x", 1080)
	require.NoError(t, err)
	require.NotNil(t, req.DatDir)
	assert.Equal(t, "/usr/share/xray", *req.DatDir)
	assert.Equal(t, 5, req.Timeout)
	assert.Equal(t, "https://cp.cloudflare.com", req.URL)
	assert.Equal(t, "socks5://127.0.0.1:1080", req.Proxy)
}

func TestProxyURIForm(t *testing.T) {
	for _, port := range []int{1, 1080, 10808, 65535} {
		rb := NewRequestBuilder(&fakeBuilder{}, newMemStager(), RequestOptions{})
		req, err := rb.Build("x", port)
		require.NoError(t, err)
		assert.Equal(t, ProxyURI(port), req.Proxy)
		assert.Regexp(t, `^socks5://127\.0\.0\.1:\d+$`, req.Proxy)
	}
}

func TestBuildFailures(t *testing.T) {
	tests := []struct {
		name    string
		builder *fakeBuilder
		stagErr error
		want    error
	}{
		{"builder error", &fakeBuilder{err: errors.New("no outbounds")}, nil, pkgerrors.ErrConfigurationBuild},
		{"empty document", &fakeBuilder{data: []byte{}}, nil, pkgerrors.ErrConfigurationBuild},
		{"invalid utf-8", &fakeBuilder{data: []byte{0xff, 0xfe, '{'}}, nil, pkgerrors.ErrEncoding},
		{"stage error", &fakeBuilder{}, errors.New("disk full"), pkgerrors.ErrFileWrite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stager := newMemStager()
			stager.err = tt.stagErr
			rb := NewRequestBuilder(tt.builder, stager, RequestOptions{})

			_, err := rb.Build("raw", 10808)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var probeErr *pkgerrors.ProbeError
			require.ErrorAs(t, err, &probeErr)
			assert.Equal(t, StageBuild, probeErr.Stage)
		})
	}
}

func TestBuildWithoutBuilder(t *testing.T) {
	rb := NewRequestBuilder(nil, newMemStager(), RequestOptions{})
	_, err := rb.Build("raw", 10808)
	assert.ErrorIs(t, err, pkgerrors.ErrConfigurationBuild)
}
