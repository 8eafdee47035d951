package health

import (
	"context"
	"sort"
	"time"
)

// checkTimeout bounds each dependency probe.
const checkTimeout = 2 * time.Second

// Check probes one dependency.
type Check func(ctx context.Context) error

// Service encapsulates health-related checks.
type Service struct {
	names  []string
	checks map[string]Check
}

// NewService constructs a new health service.
func NewService() *Service {
	return &Service{checks: map[string]Check{}}
}

// Register adds a named dependency probe. A nil check is ignored.
func (s *Service) Register(name string, check Check) {
	if check == nil {
		return
	}
	if _, ok := s.checks[name]; !ok {
		s.names = append(s.names, name)
		sort.Strings(s.names)
	}
	s.checks[name] = check
}

// Status runs every probe and reports "ok" or the error per dependency.
func (s *Service) Status(ctx context.Context) (bool, map[string]string) {
	healthy := true
	out := make(map[string]string, len(s.names))
	for _, name := range s.names {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := s.checks[name](cctx)
		cancel()
		if err != nil {
			healthy = false
			out[name] = err.Error()
			continue
		}
		out[name] = "ok"
	}
	return healthy, out
}
