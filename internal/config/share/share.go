// Package share parses proxy share links (vless://, vmess://, trojan://,
// ss://) and subscription bodies into a flat Link description that the xray
// config generator turns into an outbound.
package share

import (
	"encoding/base64"
	"fmt"
	"strings"

	pkgerrors "xprobe/pkg/errors"
)

// Link is one parsed share link.
type Link struct {
	Protocol string // vless, vmess, trojan, shadowsocks
	Name     string
	Address  string
	Port     int

	// Credentials
	UUID     string
	AlterID  int
	Security string // vmess cipher
	Flow     string
	Password string
	Method   string // shadowsocks cipher

	// Transport
	Network     string // tcp, ws, grpc, http, h2, quic
	Path        string
	Host        string
	ServiceName string
	GRPCMode    string
	HeaderType  string

	// TLS / Reality
	TLS           string // "", "tls", "reality"
	SNI           string
	ALPN          []string
	Fingerprint   string
	AllowInsecure bool
	PublicKey     string
	ShortID       string
	SpiderX       string
}

type parseFunc func(uri string) (*Link, error)

var parsers = map[string]parseFunc{
	"vless":       parseVLESS,
	"trojan":      parseTrojan,
	"vmess":       parseVMess,
	"ss":          parseShadowsocks,
	"shadowsocks": parseShadowsocks,
}

// Parse detects the link scheme and parses it.
func Parse(uri string) (*Link, error) {
	uri = strings.TrimSpace(uri)

	idx := strings.Index(uri, "://")
	if idx == -1 {
		return nil, fmt.Errorf("%w: missing protocol scheme", pkgerrors.ErrURIInvalid)
	}

	scheme := strings.ToLower(uri[:idx])
	parse, ok := parsers[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pkgerrors.ErrProtocolUnsupported, scheme)
	}

	link, err := parse(uri)
	if err != nil {
		return nil, err
	}
	if link.Network == "" {
		link.Network = "tcp"
	}
	if link.Name == "" {
		link.Name = fmt.Sprintf("%s:%d", link.Address, link.Port)
	}
	return link, nil
}

// IsLink reports whether s starts with a supported share link scheme.
func IsLink(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for scheme := range parsers {
		if strings.HasPrefix(s, scheme+"://") {
			return true
		}
	}
	return false
}

// DecodeSubscription splits a subscription body, base64 encoded or plain,
// into the share links it contains.
func DecodeSubscription(content []byte) ([]string, error) {
	text := strings.TrimSpace(string(content))
	if text == "" {
		return nil, pkgerrors.ErrSubscriptionEmpty
	}

	if decoded, err := decodeBase64(text); err == nil {
		text = string(decoded)
	}

	var links []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && IsLink(line) {
			links = append(links, line)
		}
	}

	if len(links) == 0 {
		return nil, pkgerrors.ErrSubscriptionEmpty
	}
	return links, nil
}

// decodeBase64 accepts standard and URL-safe alphabets, padded or not.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		decoded, err := enc.DecodeString(s)
		if err == nil {
			return decoded, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed to decode base64: %w", lastErr)
}
