package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gsmc-io/gsmc/internal/cloud"
	"github.com/gsmc-io/gsmc/internal/provisioner"
)

func (s *Server) listServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.p.ListServers()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, servers)
}

func (s *Server) getServer(w http.ResponseWriter, r *http.Request) {
	server, err := s.p.GetServer(idParam(r))
	if err != nil {
		var cfgErr *cloud.ConfigError
		if errors.As(err, &cfgErr) {
			err = &cloud.NotFound{Resource: "server", ID: idParam(r)}
		}
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, server)
}

// createServerRequest is the JSON body POST /servers accepts. ConfigFile
// and Uploads are deliberately omitted: both name paths on the caller's
// local filesystem, which has no meaning across a network API boundary.
type createServerRequest struct {
	Game         string            `json:"game"`
	Region       string            `json:"region"`
	InstanceType string            `json:"instance_type"`
	Name         string            `json:"name"`
	Config       map[string]string `json:"config"`
	FromSnapshot string            `json:"from_snapshot"`
	PinIP        bool              `json:"pin_ip"`
}

func (s *Server) createServer(w http.ResponseWriter, r *http.Request) {
	var req createServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, cloud.NewConfigError("invalid request body: %v", err))
		return
	}
	server, err := s.p.Launch(r.Context(), provisioner.LaunchParams{
		Game:            req.Game,
		Region:          req.Region,
		InstanceType:    req.InstanceType,
		Name:            req.Name,
		ConfigOverrides: req.Config,
		FromSnapshot:    req.FromSnapshot,
		PinIP:           req.PinIP,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, server)
}

func (s *Server) deleteServer(w http.ResponseWriter, r *http.Request) {
	if err := s.p.Destroy(r.Context(), idParam(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) pauseServer(w http.ResponseWriter, r *http.Request) {
	server, err := s.p.Pause(r.Context(), idParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, server)
}

func (s *Server) resumeServer(w http.ResponseWriter, r *http.Request) {
	server, err := s.p.Resume(r.Context(), idParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, server)
}

func (s *Server) stopServer(w http.ResponseWriter, r *http.Request) {
	server, err := s.p.StopContainer(r.Context(), idParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, server)
}

func (s *Server) pinServer(w http.ResponseWriter, r *http.Request) {
	server, err := s.p.PinIP(r.Context(), idParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, server)
}

func (s *Server) unpinServer(w http.ResponseWriter, r *http.Request) {
	server, err := s.p.UnpinIP(r.Context(), idParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, server)
}

func (s *Server) snapshotServer(w http.ResponseWriter, r *http.Request) {
	snap, err := s.p.Snapshot(r.Context(), idParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.p.ListSnapshots()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) deleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.p.DeleteSnapshot(r.Context(), idParam(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}
