package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gsmc-io/gsmc/internal/model"
)

// Syncer represents the upstream-catalog sync collaborator spec.md §1
// places out of scope. Registry does not use it and nothing calls it at
// startup; it has no retry/backoff/merge policy and is not a generalized
// sync engine.
type Syncer interface {
	Sync(ctx context.Context) ([]model.Game, error)
}

// HTTPSyncer fetches a catalog JSON document (the same shape
// LoadCatalogFile reads) from a single HTTP endpoint, grounded on
// original_source/src/gsm/games/lgsm_sync.py's fetch_text/fetch_serverlist
// GitHub-raw pull, simplified to one URL rather than a CSV index plus
// per-game config fetches.
type HTTPSyncer struct {
	URL    string
	Client *http.Client
}

func NewHTTPSyncer(url string) *HTTPSyncer {
	return &HTTPSyncer{URL: url, Client: &http.Client{Timeout: 30 * time.Second}}
}

func (s *HTTPSyncer) Sync(ctx context.Context) ([]model.Game, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("registry: build sync request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry: fetch catalog from %s: %w", s.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry: sync from %s: unexpected status %s", s.URL, resp.Status)
	}

	var raw map[string]catalogEntry
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("registry: decode catalog from %s: %w", s.URL, err)
	}
	games := make([]model.Game, 0, len(raw))
	for name, entry := range raw {
		games = append(games, buildCatalogGame(name, entry))
	}
	return games, nil
}

// sanitizeName trims surrounding whitespace from a catalog entry name; it
// does not reject path-like names.
func sanitizeName(name string) string {
	return strings.TrimSpace(name)
}
