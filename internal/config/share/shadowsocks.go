package share

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	pkgerrors "xprobe/pkg/errors"
)

// Accepted forms:
//
//	ss://base64(method:password)@host:port#remark   (SIP002)
//	ss://method:password@host:port#remark           (SIP002, 2022 ciphers)
//	ss://base64(method:password@host:port)#remark   (legacy)
func parseShadowsocks(uri string) (*Link, error) {
	rest := uri[strings.Index(uri, "://")+3:]

	var name string
	if i := strings.Index(rest, "#"); i >= 0 {
		name, _ = url.QueryUnescape(rest[i+1:])
		rest = rest[:i]
	}
	if i := strings.Index(rest, "?"); i >= 0 {
		rest = rest[:i]
	}
	rest = strings.TrimSuffix(rest, "/")

	if !strings.Contains(rest, "@") {
		decoded, err := decodeBase64(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", pkgerrors.ErrURIInvalid, err)
		}
		rest = string(decoded)
	}

	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return nil, fmt.Errorf("%w: invalid Shadowsocks URI format", pkgerrors.ErrURIInvalid)
	}
	userinfo, hostport := rest[:at], rest[at+1:]

	if !strings.Contains(userinfo, ":") {
		decoded, err := decodeBase64(userinfo)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", pkgerrors.ErrURIInvalid, err)
		}
		userinfo = string(decoded)
	} else if unescaped, err := url.PathUnescape(userinfo); err == nil {
		userinfo = unescaped
	}

	method, password, ok := strings.Cut(userinfo, ":")
	if !ok || method == "" {
		return nil, fmt.Errorf("%w: invalid credentials format", pkgerrors.ErrURIInvalid)
	}

	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid address:port format", pkgerrors.ErrURIInvalid)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid port: %v", pkgerrors.ErrURIInvalid, err)
	}

	return &Link{
		Protocol: "shadowsocks",
		Name:     name,
		Address:  host,
		Port:     port,
		Method:   method,
		Password: password,
		Network:  "tcp",
	}, nil
}
