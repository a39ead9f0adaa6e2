package probe

import (
	"encoding/base64"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "xprobe/pkg/errors"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
		want    int
		wantErr error
	}{
		{"success", respond(`{"success":true,"data":250}`), 250, nil},
		{"zero latency", respond(`{"success":true,"data":0}`), 0, nil},
		{"extra fields ignored", respond(`{"success":true,"data":42,"error":"","node":"x"}`), 42, nil},
		{"whitespace around object", respond(" \n{\"success\":true,\"data\":7}\n"), 7, nil},

		{"not base64", "%%%not-base64", 0, pkgerrors.ErrBase64Decode},
		{"url alphabet rejected", "-_-_", 0, pkgerrors.ErrBase64Decode},
		{"invalid utf-8", base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe}), 0, pkgerrors.ErrEncoding},
		{"not json", respond("hello"), 0, pkgerrors.ErrMalformedResponse},
		{"json array", respond(`[1,2]`), 0, pkgerrors.ErrMalformedResponse},
		{"json null", respond(`null`), 0, pkgerrors.ErrMalformedResponse},
		{"truncated", respond(`{"success":true,`), 0, pkgerrors.ErrMalformedResponse},
		{"empty", "", 0, pkgerrors.ErrMalformedResponse},

		{"success false", respond(`{"success":false,"data":250,"error":"timeout"}`), 0, pkgerrors.ErrProbeUnsuccessful},
		{"success absent", respond(`{"data":250}`), 0, pkgerrors.ErrProbeUnsuccessful},
		{"success null", respond(`{"success":null,"data":250}`), 0, pkgerrors.ErrProbeUnsuccessful},
		{"success not bool", respond(`{"success":"true","data":250}`), 0, pkgerrors.ErrMalformedResponse},

		{"data absent", respond(`{"success":true}`), 0, pkgerrors.ErrMalformedResponse},
		{"data null", respond(`{"success":true,"data":null}`), 0, pkgerrors.ErrMalformedResponse},
		{"data string", respond(`{"success":true,"data":"250"}`), 0, pkgerrors.ErrMalformedResponse},
		{"data float", respond(`{"success":true,"data":250.5}`), 0, pkgerrors.ErrMalformedResponse},
		{"data exponent", respond(`{"success":true,"data":2e2}`), 0, pkgerrors.ErrMalformedResponse},
		{"data negative", respond(`{"success":true,"data":-1}`), 0, pkgerrors.ErrMalformedResponse},
		{"data overflow", respond(`{"success":true,"data":99999999999999999999999}`), 0, pkgerrors.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.encoded)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, got)
		})
	}
}

func TestDecodeUnsuccessfulCarriesReason(t *testing.T) {
	_, err := Decode(respond(`{"success":false,"error":"proxy handshake failed"}`))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNegativeResult(err))

	var unsuccessful *pkgerrors.UnsuccessfulError
	require.ErrorAs(t, err, &unsuccessful)
	assert.Equal(t, "proxy handshake failed", unsuccessful.Reason)
	assert.Contains(t, err.Error(), "proxy handshake failed")
}

func TestDecodeRoundTrip(t *testing.T) {
	values := []int{0, 1, 999, 1000, 4999, 5000, 30000, 1<<31 - 1}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		values = append(values, rng.Intn(1<<30))
	}

	for _, n := range values {
		got, err := Decode(respond(fmt.Sprintf(`{"success":true,"data":%d}`, n)))
		require.NoError(t, err, "n=%d", n)
		assert.Equal(t, n, got)
	}
}

func TestDecodeIsTotal(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		buf := make([]byte, rng.Intn(48))
		rng.Read(buf)

		inputs := []string{string(buf), base64.StdEncoding.EncodeToString(buf)}
		for _, in := range inputs {
			assert.NotPanics(t, func() {
				ms, err := Decode(in)
				if err == nil {
					assert.GreaterOrEqual(t, ms, 0)
				}
			})
		}
	}
}
