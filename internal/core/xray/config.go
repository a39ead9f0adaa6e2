package xray

import (
	"encoding/json"
	"fmt"
	"strings"

	"xprobe/internal/config/share"
)

// XrayConfig represents the root Xray configuration
type XrayConfig struct {
	Log       *LogConfig       `json:"log,omitempty"`
	Stats     *StatsConfig     `json:"stats,omitempty"`
	API       *APIConfig       `json:"api,omitempty"`
	Policy    *PolicyConfig    `json:"policy,omitempty"`
	Inbounds  []InboundConfig  `json:"inbounds"`
	Outbounds []OutboundConfig `json:"outbounds"`
	Routing   *RoutingConfig   `json:"routing,omitempty"`
}

// StatsConfig enables xray statistics
type StatsConfig struct{}

// APIConfig configures xray gRPC API
type APIConfig struct {
	Tag      string   `json:"tag"`
	Services []string `json:"services"`
}

// PolicyConfig sets system-level policies
type PolicyConfig struct {
	System *SystemPolicy `json:"system,omitempty"`
}

// SystemPolicy controls system-level stats collection
type SystemPolicy struct {
	StatsInboundUplink    bool `json:"statsInboundUplink"`
	StatsInboundDownlink  bool `json:"statsInboundDownlink"`
	StatsOutboundUplink   bool `json:"statsOutboundUplink"`
	StatsOutboundDownlink bool `json:"statsOutboundDownlink"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	LogLevel string `json:"loglevel"`
}

// InboundConfig represents an inbound configuration
type InboundConfig struct {
	Tag      string                 `json:"tag"`
	Port     int                    `json:"port"`
	Listen   string                 `json:"listen,omitempty"`
	Protocol string                 `json:"protocol"`
	Settings map[string]interface{} `json:"settings,omitempty"`
	Sniffing *SniffingConfig        `json:"sniffing,omitempty"`
}

// SniffingConfig represents traffic sniffing configuration
type SniffingConfig struct {
	Enabled      bool     `json:"enabled"`
	DestOverride []string `json:"destOverride"`
	RouteOnly    bool     `json:"routeOnly,omitempty"`
}

// OutboundConfig represents an outbound configuration
type OutboundConfig struct {
	Tag            string                 `json:"tag"`
	Protocol       string                 `json:"protocol"`
	Settings       map[string]interface{} `json:"settings,omitempty"`
	StreamSettings *StreamSettings        `json:"streamSettings,omitempty"`
	Mux            *MuxConfig             `json:"mux,omitempty"`
}

// MuxConfig represents multiplexing settings
type MuxConfig struct {
	Enabled     bool `json:"enabled"`
	Concurrency int  `json:"concurrency"`
}

// StreamSettings represents stream settings (transport + TLS)
type StreamSettings struct {
	Network         string           `json:"network"`
	Security        string           `json:"security,omitempty"`
	TLSSettings     *TLSSettings     `json:"tlsSettings,omitempty"`
	RealitySettings *RealitySettings `json:"realitySettings,omitempty"`
	TCPSettings     *TCPSettings     `json:"tcpSettings,omitempty"`
	WSSettings      *WSSettings      `json:"wsSettings,omitempty"`
	GRPCSettings    *GRPCSettings    `json:"grpcSettings,omitempty"`
	HTTPSettings    *HTTPSettings    `json:"httpSettings,omitempty"`
	QUICSettings    *QUICSettings    `json:"quicSettings,omitempty"`
}

// TLSSettings represents TLS settings
type TLSSettings struct {
	ServerName    string   `json:"serverName,omitempty"`
	AllowInsecure bool     `json:"allowInsecure,omitempty"`
	ALPN          []string `json:"alpn,omitempty"`
	Fingerprint   string   `json:"fingerprint,omitempty"`
}

// RealitySettings represents xray Reality protocol settings
type RealitySettings struct {
	ServerName  string `json:"serverName,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	PublicKey   string `json:"publicKey,omitempty"`
	ShortID     string `json:"shortId,omitempty"`
	SpiderX     string `json:"spiderX,omitempty"`
}

// TCPSettings carries the optional http header obfuscation.
type TCPSettings struct {
	Header map[string]interface{} `json:"header,omitempty"`
}

// WSSettings represents WebSocket settings
type WSSettings struct {
	Path    string            `json:"path,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// GRPCSettings represents gRPC settings
type GRPCSettings struct {
	ServiceName string `json:"serviceName,omitempty"`
	MultiMode   bool   `json:"multiMode,omitempty"`
}

// HTTPSettings represents HTTP settings
type HTTPSettings struct {
	Path string   `json:"path,omitempty"`
	Host []string `json:"host,omitempty"`
}

// QUICSettings represents QUIC settings
type QUICSettings struct {
	Security string                 `json:"security,omitempty"`
	Key      string                 `json:"key,omitempty"`
	Header   map[string]interface{} `json:"header,omitempty"`
}

// RoutingConfig represents routing configuration
type RoutingConfig struct {
	DomainStrategy string        `json:"domainStrategy,omitempty"`
	Rules          []RoutingRule `json:"rules,omitempty"`
}

// RoutingRule represents a routing rule
type RoutingRule struct {
	Type        string   `json:"type,omitempty"`
	Domain      []string `json:"domain,omitempty"`
	IP          []string `json:"ip,omitempty"`
	Port        string   `json:"port,omitempty"`
	Network     string   `json:"network,omitempty"`
	OutboundTag string   `json:"outboundTag"`
	InboundTag  []string `json:"inboundTag,omitempty"`
}

const (
	socksInboundTag = "socks-in"
	apiInboundTag   = "api-in"
	apiTag          = "api"
)

// Builder produces effective xray configurations from raw user input.
type Builder struct {
	LogLevel string
}

// BuildConfigurationData turns raw into an xray configuration with a SOCKS
// inbound on inboundPort and a stats API inbound on trafficPort.
//
// raw may be a full xray JSON document, a single share link, or a
// subscription body (base64 or plain) whose first parseable link is used.
func (b Builder) BuildConfigurationData(inboundPort, trafficPort int, raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty configuration")
	}
	if err := validatePorts(inboundPort, trafficPort); err != nil {
		return nil, err
	}

	if strings.HasPrefix(raw, "{") {
		return b.mergeDocument(inboundPort, trafficPort, raw)
	}

	link, err := firstLink(raw)
	if err != nil {
		return nil, err
	}
	cfg, err := b.generateFromLink(inboundPort, trafficPort, link)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(cfg, "", "  ")
}

// BuildConfigurationData builds with the default log level.
func BuildConfigurationData(inboundPort, trafficPort int, raw string) ([]byte, error) {
	return Builder{}.BuildConfigurationData(inboundPort, trafficPort, raw)
}

func validatePorts(inboundPort, trafficPort int) error {
	for _, p := range []int{inboundPort, trafficPort} {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid port %d", p)
		}
	}
	if inboundPort == trafficPort {
		return fmt.Errorf("inbound and traffic ports must differ (both %d)", inboundPort)
	}
	return nil
}

func firstLink(raw string) (*share.Link, error) {
	if share.IsLink(raw) {
		return share.Parse(raw)
	}

	uris, err := share.DecodeSubscription([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("unrecognised configuration: %w", err)
	}
	var lastErr error
	for _, uri := range uris {
		link, err := share.Parse(uri)
		if err == nil {
			return link, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no usable link in subscription: %w", lastErr)
}

func (b Builder) logLevel() string {
	if b.LogLevel == "" {
		return "none"
	}
	return b.LogLevel
}

func socksInbound(port int) InboundConfig {
	return InboundConfig{
		Tag:      socksInboundTag,
		Port:     port,
		Listen:   "127.0.0.1",
		Protocol: "socks",
		Settings: map[string]interface{}{
			"auth": "noauth",
			"udp":  true,
		},
		Sniffing: &SniffingConfig{
			Enabled:      true,
			DestOverride: []string{"http", "tls"},
			RouteOnly:    true,
		},
	}
}

func apiInbound(port int) InboundConfig {
	return InboundConfig{
		Tag:      apiInboundTag,
		Port:     port,
		Listen:   "127.0.0.1",
		Protocol: "dokodemo-door",
		Settings: map[string]interface{}{
			"address": "127.0.0.1",
		},
	}
}

func apiRule() RoutingRule {
	return RoutingRule{
		Type:        "field",
		InboundTag:  []string{apiInboundTag},
		OutboundTag: apiTag,
	}
}

func statsSections() (*StatsConfig, *APIConfig, *PolicyConfig) {
	return &StatsConfig{},
		&APIConfig{Tag: apiTag, Services: []string{"StatsService"}},
		&PolicyConfig{System: &SystemPolicy{
			StatsInboundUplink:    true,
			StatsInboundDownlink:  true,
			StatsOutboundUplink:   true,
			StatsOutboundDownlink: true,
		}}
}

// mergeDocument keeps the user's outbounds and routing but owns inbounds and
// the stats plumbing.
func (b Builder) mergeDocument(inboundPort, trafficPort int, raw string) ([]byte, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("invalid xray JSON: %w", err)
	}

	outbounds, ok := doc["outbounds"].([]interface{})
	if !ok || len(outbounds) == 0 {
		return nil, fmt.Errorf("xray JSON has no outbounds")
	}

	if _, ok := doc["log"]; !ok {
		doc["log"] = &LogConfig{LogLevel: b.logLevel()}
	}
	doc["inbounds"] = []InboundConfig{socksInbound(inboundPort), apiInbound(trafficPort)}
	doc["stats"], doc["api"], doc["policy"] = statsSections()

	routing, _ := doc["routing"].(map[string]interface{})
	if routing == nil {
		routing = map[string]interface{}{}
	}
	rules, _ := routing["rules"].([]interface{})
	routing["rules"] = append([]interface{}{apiRule()}, rules...)
	doc["routing"] = routing

	return json.MarshalIndent(doc, "", "  ")
}

func (b Builder) generateFromLink(inboundPort, trafficPort int, link *share.Link) (*XrayConfig, error) {
	cfg := &XrayConfig{
		Log:      &LogConfig{LogLevel: b.logLevel()},
		Inbounds: []InboundConfig{socksInbound(inboundPort), apiInbound(trafficPort)},
	}
	cfg.Stats, cfg.API, cfg.Policy = statsSections()

	outbound, err := generateOutbound(link)
	if err != nil {
		return nil, fmt.Errorf("failed to generate outbound: %w", err)
	}
	outbound.Tag = "proxy"

	if shouldEnableMux(link) {
		outbound.Mux = &MuxConfig{
			Enabled:     true,
			Concurrency: 8,
		}
	}

	cfg.Outbounds = []OutboundConfig{
		*outbound,
		{
			Tag:      "direct",
			Protocol: "freedom",
			Settings: map[string]interface{}{
				"domainStrategy": "UseIPv4",
			},
		},
		{
			Tag:      "block",
			Protocol: "blackhole",
		},
	}

	cfg.Routing = &RoutingConfig{
		DomainStrategy: "AsIs",
		Rules: []RoutingRule{
			apiRule(),
			{
				Type:        "field",
				IP:          []string{"geoip:private"},
				OutboundTag: "direct",
			},
			{
				Type:        "field",
				Network:     "tcp,udp",
				OutboundTag: "proxy",
			},
		},
	}

	return cfg, nil
}

// shouldEnableMux returns true for transports that benefit from multiplexing.
// Mux breaks XTLS flows and QUIC.
func shouldEnableMux(link *share.Link) bool {
	if link.Network == "quic" || link.Flow != "" {
		return false
	}
	switch link.Network {
	case "tcp", "ws", "grpc", "http", "h2", "":
		return true
	}
	return false
}

func generateOutbound(link *share.Link) (*OutboundConfig, error) {
	outbound := &OutboundConfig{
		Protocol: link.Protocol,
		Settings: map[string]interface{}{},
	}

	switch link.Protocol {
	case "vmess":
		outbound.Settings["vnext"] = []map[string]interface{}{
			{
				"address": link.Address,
				"port":    link.Port,
				"users": []map[string]interface{}{
					{
						"id":       link.UUID,
						"alterId":  link.AlterID,
						"security": link.Security,
					},
				},
			},
		}
	case "vless":
		user := map[string]interface{}{
			"id":         link.UUID,
			"encryption": "none",
		}
		if link.Flow != "" {
			user["flow"] = link.Flow
		}
		outbound.Settings["vnext"] = []map[string]interface{}{
			{
				"address": link.Address,
				"port":    link.Port,
				"users":   []map[string]interface{}{user},
			},
		}
	case "trojan":
		outbound.Settings["servers"] = []map[string]interface{}{
			{
				"address":  link.Address,
				"port":     link.Port,
				"password": link.Password,
			},
		}
	case "shadowsocks":
		outbound.Settings["servers"] = []map[string]interface{}{
			{
				"address":  link.Address,
				"port":     link.Port,
				"method":   link.Method,
				"password": link.Password,
			},
		}
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", link.Protocol)
	}

	outbound.StreamSettings = generateStreamSettings(link)
	return outbound, nil
}

func generateStreamSettings(link *share.Link) *StreamSettings {
	streamSettings := &StreamSettings{
		Network: link.Network,
	}

	fingerprint := link.Fingerprint
	if fingerprint == "" {
		fingerprint = "chrome"
	}

	switch link.TLS {
	case "reality":
		streamSettings.Security = "reality"
		streamSettings.RealitySettings = &RealitySettings{
			ServerName:  link.SNI,
			Fingerprint: fingerprint,
			PublicKey:   link.PublicKey,
			ShortID:     link.ShortID,
			SpiderX:     link.SpiderX,
		}
	case "tls":
		streamSettings.Security = "tls"
		serverName := link.SNI
		if serverName == "" {
			serverName = link.Host
		}
		streamSettings.TLSSettings = &TLSSettings{
			ServerName:    serverName,
			AllowInsecure: link.AllowInsecure,
			ALPN:          link.ALPN,
			Fingerprint:   fingerprint,
		}
	}

	switch link.Network {
	case "tcp":
		if link.HeaderType == "http" {
			header := map[string]interface{}{"type": "http"}
			if link.Host != "" || link.Path != "" {
				request := map[string]interface{}{}
				if link.Path != "" {
					request["path"] = []string{link.Path}
				}
				if link.Host != "" {
					request["headers"] = map[string]interface{}{"Host": []string{link.Host}}
				}
				header["request"] = request
			}
			streamSettings.TCPSettings = &TCPSettings{Header: header}
		}
	case "ws":
		streamSettings.WSSettings = &WSSettings{Path: link.Path}
		if link.Host != "" {
			streamSettings.WSSettings.Headers = map[string]string{"Host": link.Host}
		}
	case "grpc":
		streamSettings.GRPCSettings = &GRPCSettings{
			ServiceName: link.ServiceName,
			MultiMode:   link.GRPCMode == "multi",
		}
	case "http", "h2":
		streamSettings.HTTPSettings = &HTTPSettings{Path: link.Path}
		if link.Host != "" {
			streamSettings.HTTPSettings.Host = strings.Split(link.Host, ",")
		}
	case "quic":
		streamSettings.QUICSettings = &QUICSettings{
			Security: link.Security,
			Key:      link.Path,
		}
		if link.HeaderType != "" {
			streamSettings.QUICSettings.Header = map[string]interface{}{"type": link.HeaderType}
		}
	}

	return streamSettings
}
