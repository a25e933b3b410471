package model

import "time"

// Snapshot is the local record of a provider-side disk snapshot taken from
// a running server (spec.md §3).
type Snapshot struct {
	ID           string            `json:"id"`
	SnapshotID   string            `json:"snapshot_id"`
	Game         string            `json:"game"`
	ServerName   string            `json:"server_name"`
	ServerID     string            `json:"server_id"`
	Region       string            `json:"region"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	Config       map[string]string `json:"config"`
	RCONPassword string            `json:"rcon_password"`
}

// WithDefaults mirrors Server.WithDefaults for schema-tolerant decoding.
func (s *Snapshot) WithDefaults() {
	if s.Config == nil {
		s.Config = map[string]string{}
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.Status == "" {
		s.Status = "completed"
	}
}
