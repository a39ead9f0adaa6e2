package share

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "xprobe/pkg/errors"
)

func TestParseVLESSReality(t *testing.T) {
	uri := "vless://0b7b6f4e-1111-4c2d-9a7e-2f1c3b5d6e7f@example.com:443" +
		"?type=grpc&serviceName=svc&security=reality&sni=www.microsoft.com&fp=chrome&pbk=PUBKEY&sid=ab12&flow=xtls-rprx-vision#edge-1"

	link, err := Parse(uri)
	require.NoError(t, err)

	assert.Equal(t, "vless", link.Protocol)
	assert.Equal(t, "edge-1", link.Name)
	assert.Equal(t, "example.com", link.Address)
	assert.Equal(t, 443, link.Port)
	assert.Equal(t, "0b7b6f4e-1111-4c2d-9a7e-2f1c3b5d6e7f", link.UUID)
	assert.Equal(t, "xtls-rprx-vision", link.Flow)
	assert.Equal(t, "grpc", link.Network)
	assert.Equal(t, "svc", link.ServiceName)
	assert.Equal(t, "reality", link.TLS)
	assert.Equal(t, "PUBKEY", link.PublicKey)
	assert.Equal(t, "ab12", link.ShortID)
}

func TestParseTrojanDefaultsToTLS(t *testing.T) {
	link, err := Parse("trojan://secret@t.example.org:8443?sni=t.example.org")
	require.NoError(t, err)

	assert.Equal(t, "trojan", link.Protocol)
	assert.Equal(t, "secret", link.Password)
	assert.Equal(t, "tls", link.TLS)
	assert.Equal(t, "t.example.org", link.SNI)
	assert.Equal(t, "tcp", link.Network)
	assert.Equal(t, "t.example.org:8443", link.Name)
}

func TestParseVMess(t *testing.T) {
	body := `{"v":"2","ps":"vm","add":"vm.example.com","port":"8080","id":"uuid-1","aid":"","net":"ws","path":"/ray","host":"cdn.example.com","tls":"tls","sni":"vm.example.com"}`
	uri := "vmess://" + base64.StdEncoding.EncodeToString([]byte(body))

	link, err := Parse(uri)
	require.NoError(t, err)

	assert.Equal(t, "vmess", link.Protocol)
	assert.Equal(t, 8080, link.Port)
	assert.Equal(t, 0, link.AlterID)
	assert.Equal(t, "auto", link.Security)
	assert.Equal(t, "ws", link.Network)
	assert.Equal(t, "/ray", link.Path)
	assert.Equal(t, "cdn.example.com", link.Host)
	assert.Equal(t, "tls", link.TLS)
}

func TestParseShadowsocks(t *testing.T) {
	userinfo := base64.RawURLEncoding.EncodeToString([]byte("aes-256-gcm:pa:ss"))
	legacy := base64.StdEncoding.EncodeToString([]byte("chacha20-ietf-poly1305:pw@10.0.0.1:8388"))

	tests := []struct {
		name     string
		uri      string
		method   string
		password string
		address  string
		port     int
	}{
		{"sip002 base64 userinfo", "ss://" + userinfo + "@ss.example.com:8388#my%20ss", "aes-256-gcm", "pa:ss", "ss.example.com", 8388},
		{"sip002 plain userinfo", "ss://2022-blake3-aes-128-gcm:a2V5@[2001:db8::1]:443", "2022-blake3-aes-128-gcm", "a2V5", "2001:db8::1", 443},
		{"legacy", "ss://" + legacy + "#old", "chacha20-ietf-poly1305", "pw", "10.0.0.1", 8388},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, err := Parse(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, "shadowsocks", link.Protocol)
			assert.Equal(t, tt.method, link.Method)
			assert.Equal(t, tt.password, link.Password)
			assert.Equal(t, tt.address, link.Address)
			assert.Equal(t, tt.port, link.Port)
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want error
	}{
		{"no scheme", "example.com:443", pkgerrors.ErrURIInvalid},
		{"unknown scheme", "wireguard://key@host:51820", pkgerrors.ErrProtocolUnsupported},
		{"vless without uuid", "vless://@host:443", pkgerrors.ErrURIInvalid},
		{"vless without port", "vless://id@host", pkgerrors.ErrURIInvalid},
		{"vmess garbage", "vmess://%%%", pkgerrors.ErrURIInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.uri)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeSubscription(t *testing.T) {
	plain := "vless://id@a.example.com:443#a\n\n# comment\ntrojan://pw@b.example.com:443#b\n"

	links, err := DecodeSubscription([]byte(plain))
	require.NoError(t, err)
	assert.Equal(t, []string{"vless://id@a.example.com:443#a", "trojan://pw@b.example.com:443#b"}, links)

	encoded := base64.StdEncoding.EncodeToString([]byte(plain))
	links, err = DecodeSubscription([]byte(encoded))
	require.NoError(t, err)
	assert.Len(t, links, 2)

	_, err = DecodeSubscription([]byte("   "))
	assert.ErrorIs(t, err, pkgerrors.ErrSubscriptionEmpty)

	_, err = DecodeSubscription([]byte("just some text"))
	assert.ErrorIs(t, err, pkgerrors.ErrSubscriptionEmpty)
}
