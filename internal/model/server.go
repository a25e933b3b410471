package model

import "time"

// Server is the authoritative per-server entity (spec.md §3). Field names
// mirror the spec's wire vocabulary so that JSON round-trips and cloud tag
// derivation stay obvious at the call site.
type Server struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Game      string `json:"game"`
	Region    string `json:"region"`
	Status    Status `json:"status"`

	InstanceID       string `json:"instance_id"`
	PublicIP         string `json:"public_ip"`
	SecurityGroupID  string `json:"security_group_id"`
	ContainerName    string `json:"container_name"`

	// Ports maps "<num>/<proto>" to the numeric port, matching the wire form
	// used in the cloud "ports" tag (pkg/portspec).
	Ports map[string]int `json:"ports"`

	LaunchTime   time.Time         `json:"launch_time"`
	RCONPassword string            `json:"rcon_password"`
	Config       map[string]string `json:"config"`

	EIPAllocationID string `json:"eip_allocation_id"`
	EIPPublicIP     string `json:"eip_public_ip"`
}

// WithDefaults fills in typed zero values for fields a schema-evolution-
// tolerant decode might have left unset (spec.md §4.3). It is called after
// every Store.Get/ListAll decode.
func (s *Server) WithDefaults() {
	if s.Ports == nil {
		s.Ports = map[string]int{}
	}
	if s.Config == nil {
		s.Config = map[string]string{}
	}
	if s.LaunchTime.IsZero() {
		s.LaunchTime = time.Now().UTC()
	}
	if s.Name == "" && s.Game != "" && len(s.ID) >= 6 {
		s.Name = s.Game + "-" + s.ID[:6]
	}
}

// HasPinnedIP reports whether the server has a static elastic IP attached.
func (s *Server) HasPinnedIP() bool {
	return s.EIPAllocationID != ""
}

// Clone returns a deep-enough copy for safe pass-by-value to read-only
// collaborators (spec.md §3 "Ownership").
func (s Server) Clone() Server {
	out := s
	out.Ports = make(map[string]int, len(s.Ports))
	for k, v := range s.Ports {
		out.Ports[k] = v
	}
	out.Config = make(map[string]string, len(s.Config))
	for k, v := range s.Config {
		out.Config[k] = v
	}
	return out
}
