package share

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	pkgerrors "xprobe/pkg/errors"
)

// vless://uuid@host:port?type=ws&security=reality&pbk=...#remark
func parseVLESS(uri string) (*Link, error) {
	link, query, err := parseURLLink(uri, "vless")
	if err != nil {
		return nil, err
	}
	link.Flow = query.Get("flow")
	return link, nil
}

// trojan://password@host:port?sni=...#remark
func parseTrojan(uri string) (*Link, error) {
	link, query, err := parseURLLink(uri, "trojan")
	if err != nil {
		return nil, err
	}
	// Trojan is TLS unless explicitly disabled.
	if query.Get("security") == "" {
		link.TLS = "tls"
		link.SNI = query.Get("sni")
		link.Fingerprint = query.Get("fp")
	}
	return link, nil
}

// parseURLLink handles the userinfo@host:port?query#fragment layout shared by
// vless and trojan links.
func parseURLLink(uri, protocol string) (*Link, url.Values, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", pkgerrors.ErrURIInvalid, err)
	}

	secret := u.User.Username()
	if secret == "" {
		return nil, nil, fmt.Errorf("%w: %s link without credentials", pkgerrors.ErrURIInvalid, protocol)
	}

	host := u.Hostname()
	port, err := strconv.Atoi(u.Port())
	if host == "" || err != nil {
		return nil, nil, fmt.Errorf("%w: address and port are required", pkgerrors.ErrURIInvalid)
	}

	query := u.Query()
	link := &Link{
		Protocol: protocol,
		Name:     u.Fragment,
		Address:  host,
		Port:     port,
		Network:  query.Get("type"),
	}
	if protocol == "trojan" {
		link.Password = secret
	} else {
		link.UUID = secret
	}

	switch link.Network {
	case "ws", "http", "h2":
		link.Path = query.Get("path")
		link.Host = query.Get("host")
	case "grpc":
		link.ServiceName = query.Get("serviceName")
		link.GRPCMode = query.Get("mode")
	case "quic":
		link.Security = query.Get("quicSecurity")
		link.Path = query.Get("key")
	}
	link.HeaderType = query.Get("headerType")

	switch security := query.Get("security"); security {
	case "tls", "reality":
		link.TLS = security
		link.SNI = query.Get("sni")
		link.Fingerprint = query.Get("fp")
		if alpn := query.Get("alpn"); alpn != "" {
			link.ALPN = strings.Split(alpn, ",")
		}
		link.AllowInsecure = query.Get("allowInsecure") == "1" || query.Get("allowInsecure") == "true"
		if security == "reality" {
			link.PublicKey = query.Get("pbk")
			link.ShortID = query.Get("sid")
			link.SpiderX = query.Get("spx")
		}
	}

	return link, query, nil
}
