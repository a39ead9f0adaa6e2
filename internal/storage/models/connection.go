package models

import "time"

// ActiveConnection represents the currently running tunnel
type ActiveConnection struct {
	ID        int64     `json:"id"` // Always 1 (singleton)
	CoreType  string    `json:"core_type"`
	Name      string    `json:"name"` // remark of the link, or "custom" for JSON configs
	SOCKSPort int       `json:"socks_port"`
	APIPort   int       `json:"api_port"`
	StartedAt time.Time `json:"started_at"`
}
