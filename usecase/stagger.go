package usecase

import (
	"time"

	"content-distributor/domain/model"
)

// StaggerTable maps a platform to the start delay of its publish tasks. It is
// copied on construction and never mutated afterwards.
type StaggerTable struct {
	delays   map[string]time.Duration
	fallback time.Duration
}

func NewStaggerTable(delays map[string]time.Duration, fallback time.Duration) StaggerTable {
	m := make(map[string]time.Duration, len(delays))
	for p, d := range delays {
		if d < 0 {
			d = 0
		}
		m[model.NormalizePlatform(p)] = d
	}
	if fallback < 0 {
		fallback = 0
	}
	return StaggerTable{delays: m, fallback: fallback}
}

// Delay returns the configured delay for platform, or the fallback.
func (s StaggerTable) Delay(platform string) time.Duration {
	if d, ok := s.delays[model.NormalizePlatform(platform)]; ok {
		return d
	}
	return s.fallback
}
