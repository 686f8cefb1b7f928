package shellcache

import (
	"context"
	"time"
)

// Start runs the agent lifecycle: install, retried every InstallRetry until it succeeds,
// followed by activation. It blocks until the agent is active or ctx ends.
func (s *Shell) Start(ctx context.Context) error {
	s.log.Info().Msgf("Starting install loop with retry interval %s", s.installRetry)
	for {
		err := s.agent.OnInstall(ctx)
		if err == nil {
			break
		}
		s.log.Warn().Err(err).Msgf("Install failed, retrying in %s", s.installRetry)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.installRetry):
		}
	}

	if !s.agent.SkipWaiting() {
		s.log.Info().Msg("Agent installed, waiting for activation")
		return nil
	}
	if err := s.agent.OnActivate(ctx); err != nil {
		return err
	}
	s.readyOnce.Do(func() { close(s.ready) })
	return nil
}

// Ready is closed once the agent is active and controls clients.
func (s *Shell) Ready() <-chan struct{} {
	return s.ready
}

// Status is a snapshot of the hosted agent.
type Status struct {
	Version string   `json:"version"`
	State   string   `json:"state"`
	Claimed bool     `json:"claimed"`
	Cached  []string `json:"cached,omitempty"`
}

// Status reports the agent's lifecycle state and the content of its bucket.
func (s *Shell) Status() Status {
	st := Status{
		Version: s.agent.Version(),
		State:   s.agent.State().String(),
		Claimed: s.agent.Claimed(),
	}
	if cached, err := s.agent.Cached(); err == nil {
		st.Cached = cached
	}
	return st
}
