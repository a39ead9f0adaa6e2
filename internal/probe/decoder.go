package probe

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"

	pkgerrors "xprobe/pkg/errors"
)

// Response is the engine's answer. Fields are kept raw so presence and
// type can be checked separately; unknown fields are ignored.
type Response struct {
	Success json.RawMessage `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

var strictBase64 = base64.StdEncoding.Strict()

// Decode extracts the latency in milliseconds from an encoded engine
// response. It never panics: every input yields a latency or an error
// matching one of ErrBase64Decode, ErrEncoding, ErrMalformedResponse or
// ErrProbeUnsuccessful.
func Decode(encoded string) (int, error) {
	raw, err := strictBase64.DecodeString(encoded)
	if err != nil {
		return 0, decodeError(fmt.Errorf("%w: %v", pkgerrors.ErrBase64Decode, err))
	}

	if !utf8.Valid(raw) {
		return 0, decodeError(fmt.Errorf("%w: response is not valid UTF-8", pkgerrors.ErrEncoding))
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return 0, decodeError(fmt.Errorf("%w: response is not a JSON object", pkgerrors.ErrMalformedResponse))
	}

	var resp Response
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return 0, decodeError(fmt.Errorf("%w: %v", pkgerrors.ErrMalformedResponse, err))
	}

	success, err := parseSuccess(resp.Success)
	if err != nil {
		return 0, decodeError(err)
	}
	if !success {
		return 0, decodeError(&pkgerrors.UnsuccessfulError{Reason: parseReason(resp.Error)})
	}

	ms, err := parseLatency(resp.Data)
	if err != nil {
		return 0, decodeError(err)
	}
	return ms, nil
}

// parseSuccess treats an absent or null field as false.
func parseSuccess(raw json.RawMessage) (bool, error) {
	if isAbsent(raw) {
		return false, nil
	}
	var success bool
	if err := json.Unmarshal(raw, &success); err != nil {
		return false, fmt.Errorf("%w: success is not a boolean", pkgerrors.ErrMalformedResponse)
	}
	return success, nil
}

// parseLatency accepts a non-negative JSON integer literal only; 250.0 and
// "250" are rejected.
func parseLatency(raw json.RawMessage) (int, error) {
	if isAbsent(raw) {
		return 0, fmt.Errorf("%w: data is missing", pkgerrors.ErrMalformedResponse)
	}
	ms, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: data %s is not an integer", pkgerrors.ErrMalformedResponse, raw)
	}
	if ms < 0 {
		return 0, fmt.Errorf("%w: data %d is negative", pkgerrors.ErrMalformedResponse, ms)
	}
	return ms, nil
}

func parseReason(raw json.RawMessage) string {
	if isAbsent(raw) {
		return ""
	}
	var reason string
	if err := json.Unmarshal(raw, &reason); err != nil {
		return string(raw)
	}
	return reason
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func decodeError(err error) error {
	return &pkgerrors.ProbeError{Stage: StageDecode, Err: err}
}
