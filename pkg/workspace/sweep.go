package workspace

import (
	"os"
	"path/filepath"
	"time"

	"github.com/aegisai/aegis/pkg/metrics"
)

// StartSweep begins the periodic TTL eviction loop.
func (s *Store) StartSweep() {
	go s.sweepLoop()
}

// StopSweep ends the eviction loop.
func (s *Store) StopSweep() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(time.Now())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep evicts workspaces idle past the TTL and temp files older than
// an hour. Exposed for tests; the loop calls it with time.Now().
func (s *Store) Sweep(now time.Time) {
	s.mu.Lock()
	var expired []string
	for id, ws := range s.workspaces {
		if now.Sub(ws.LastAccessedAt) > s.ttl {
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		if err := s.Delete(id); err != nil {
			s.logger.Warn().Err(err).Str("mission_id", id).Msg("ttl eviction failed")
			continue
		}
		metrics.WorkspacesEvicted.Inc()
		s.logger.Info().Str("mission_id", id).Msg("workspace evicted by ttl")
	}

	entries, err := os.ReadDir(s.tempPath)
	if err != nil {
		return
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || info.IsDir() {
			continue
		}
		if now.Sub(info.ModTime()) > tempFileTTL {
			_ = os.Remove(filepath.Join(s.tempPath, entry.Name()))
		}
	}
}
