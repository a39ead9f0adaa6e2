package xray

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"xprobe/internal/core/types"
)

// statsCollector queries xray's stats API for traffic data.
type statsCollector struct {
	xrayPath string
	apiAddr  string

	mu sync.Mutex

	// Cached totals from last successful query.
	lastUpload   uint64
	lastDownload uint64
	lastQueryAt  time.Time

	upSpeed   uint64
	downSpeed uint64
}

func newStatsCollector(xrayPath string, apiPort int) *statsCollector {
	return &statsCollector{
		xrayPath: xrayPath,
		apiAddr:  fmt.Sprintf("127.0.0.1:%d", apiPort),
	}
}

// GetStats queries the API; on failure the cached totals are returned.
func (sc *statsCollector) GetStats() (*types.Stats, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	up, down, err := QueryStats(sc.xrayPath, sc.apiAddr)
	if err == nil {
		sc.record(up, down, time.Now())
	}

	return &types.Stats{
		TotalUpload:   sc.lastUpload,
		TotalDownload: sc.lastDownload,
		UploadSpeed:   sc.upSpeed,
		DownloadSpeed: sc.downSpeed,
	}, nil
}

// record updates totals and derives speeds from the delta since the
// previous sample.
func (sc *statsCollector) record(up, down uint64, now time.Time) {
	if !sc.lastQueryAt.IsZero() {
		elapsed := now.Sub(sc.lastQueryAt).Seconds()
		if elapsed > 0 {
			sc.upSpeed, sc.downSpeed = 0, 0
			if up >= sc.lastUpload {
				sc.upSpeed = uint64(float64(up-sc.lastUpload) / elapsed)
			}
			if down >= sc.lastDownload {
				sc.downSpeed = uint64(float64(down-sc.lastDownload) / elapsed)
			}
		}
	}
	sc.lastUpload = up
	sc.lastDownload = down
	sc.lastQueryAt = now
}

// QueryStats runs `xray api stats` against apiAddr and sums traffic.
func QueryStats(xrayPath, apiAddr string) (upload, download uint64, err error) {
	if xrayPath == "" {
		return 0, 0, fmt.Errorf("xray binary not set")
	}
	output, err := exec.Command(xrayPath, "api", "stats", "-s", apiAddr, "-pattern", "").Output()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query xray stats: %w", err)
	}
	up, down := parseStatsOutput(string(output))
	return up, down, nil
}

// parseStatsOutput parses the JSON output from `xray api stats`.
// Output format: {"stat":[{"name":"inbound>>>socks-in>>>traffic>>>uplink","value":"12345"}, ...]}
// Only outbound counters are summed so proxied bytes are not counted twice;
// api traffic is ignored.
func parseStatsOutput(output string) (upload, download uint64) {
	var result struct {
		Stat []struct {
			Name  string          `json:"name"`
			Value json.RawMessage `json:"value"`
		} `json:"stat"`
	}

	if err := json.Unmarshal([]byte(output), &result); err != nil {
		return parseStatsLines(output)
	}

	for _, s := range result.Stat {
		val, _ := strconv.ParseUint(strings.Trim(string(s.Value), `"`), 10, 64)
		up, down := classifyCounter(s.Name, val)
		upload += up
		download += down
	}
	return
}

// parseStatsLines handles the protobuf text format of older xray versions.
func parseStatsLines(output string) (upload, download uint64) {
	var currentName string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "name:") {
			currentName = strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, "name:")), `"`)
		} else if strings.HasPrefix(line, "value:") {
			val, _ := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(line, "value:")), 10, 64)
			up, down := classifyCounter(currentName, val)
			upload += up
			download += down
		}
	}
	return
}

func classifyCounter(name string, val uint64) (up, down uint64) {
	parts := strings.Split(strings.ToLower(name), ">>>")
	if len(parts) != 4 || parts[0] != "outbound" || parts[1] == "api" {
		return 0, 0
	}
	switch parts[3] {
	case "uplink":
		return val, 0
	case "downlink":
		return 0, val
	}
	return 0, 0
}
