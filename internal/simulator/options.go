package simulator

import "github.com/riftfeed/riftfeed/pkg/logger"

// Option configures a Simulator.
type Option func(*Simulator)

// WithAddr sets the listen address. Port 0 picks a free port.
func WithAddr(addr string) Option {
	return func(s *Simulator) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithLockfile makes the simulator publish a discovery lockfile at
// path while it runs.
func WithLockfile(path string) Option {
	return func(s *Simulator) {
		s.lockfile = path
	}
}

// WithPassword sets the credential written into the lockfile.
func WithPassword(password string) Option {
	return func(s *Simulator) {
		if password != "" {
			s.password = password
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Simulator) {
		if log != nil {
			s.log = log
		}
	}
}
