package share

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	pkgerrors "xprobe/pkg/errors"
)

// vmessJSON is the v2rayN link body. Port and aid are strings or numbers
// depending on the exporter.
type vmessJSON struct {
	PS   string  `json:"ps"`
	Add  string  `json:"add"`
	Port flexInt `json:"port"`
	ID   string  `json:"id"`
	AID  flexInt `json:"aid"`
	Scy  string  `json:"scy"`
	Net  string  `json:"net"`
	Type string  `json:"type"`
	Host string  `json:"host"`
	Path string  `json:"path"`
	TLS  string  `json:"tls"`
	SNI  string  `json:"sni"`
	ALPN string  `json:"alpn"`
	FP   string  `json:"fp"`
}

// flexInt accepts 443, "443" and "".
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// vmess://base64(json)
func parseVMess(uri string) (*Link, error) {
	decoded, err := decodeBase64(strings.TrimPrefix(uri, "vmess://"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrURIInvalid, err)
	}

	var v vmessJSON
	if err := json.Unmarshal(decoded, &v); err != nil {
		return nil, fmt.Errorf("%w: failed to parse VMess JSON: %v", pkgerrors.ErrURIInvalid, err)
	}

	if v.Port <= 0 || v.Add == "" || v.ID == "" {
		return nil, fmt.Errorf("%w: vmess link needs address, port and id", pkgerrors.ErrURIInvalid)
	}

	link := &Link{
		Protocol:   "vmess",
		Name:       v.PS,
		Address:    v.Add,
		Port:       int(v.Port),
		UUID:       v.ID,
		AlterID:    int(v.AID),
		Security:   v.Scy,
		Network:    v.Net,
		HeaderType: v.Type,
		Host:       v.Host,
		Path:       v.Path,
	}
	if link.Security == "" {
		link.Security = "auto"
	}
	if link.Network == "grpc" {
		link.ServiceName = v.Path
		link.GRPCMode = v.Type
	}
	if v.TLS == "tls" {
		link.TLS = "tls"
		link.SNI = v.SNI
		link.Fingerprint = v.FP
		if v.ALPN != "" {
			link.ALPN = strings.Split(v.ALPN, ",")
		}
	}

	return link, nil
}
