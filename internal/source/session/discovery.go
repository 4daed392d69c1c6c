package session

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// lockfileEnvVar overrides lockfile discovery for non-standard installs.
const lockfileEnvVar = "RIFTFEED_LOCKFILE"

// Credentials is the connection material extracted from the client's
// lockfile: `name:pid:port:password:protocol`.
type Credentials struct {
	Port     uint16
	Password string
	Protocol string
}

// WebsocketURL returns the push socket address, wss for https installs.
func (c Credentials) WebsocketURL() string {
	scheme := "ws"
	if strings.EqualFold(c.Protocol, "https") {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://127.0.0.1:%d/", scheme, c.Port)
}

// BaseURL returns the REST base address for the same client.
func (c Credentials) BaseURL() string {
	return fmt.Sprintf("%s://127.0.0.1:%d", c.Protocol, c.Port)
}

// BasicAuth returns the Authorization header value; the client always
// authenticates as user "riot".
func (c Credentials) BasicAuth() string {
	token := base64.StdEncoding.EncodeToString([]byte("riot:" + c.Password))
	return "Basic " + token
}

// parseLockfile extracts credentials from the raw lockfile contents.
func parseLockfile(raw string) (Credentials, error) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return Credentials{}, ErrLockfileEmpty
	}

	parts := strings.Split(line, ":")
	if len(parts) < 5 {
		return Credentials{}, ErrLockfileCorrupt
	}

	port, err := strconv.ParseUint(parts[2], 10, 16)
	if err != nil {
		return Credentials{}, fmt.Errorf("parse lockfile port: %w", err)
	}

	return Credentials{
		Port:     uint16(port),
		Password: parts[3],
		Protocol: strings.ToLower(parts[4]),
	}, nil
}

// discoverCredentials reads the first parseable lockfile among the
// candidate paths.
func discoverCredentials(configured string) (Credentials, error) {
	for _, path := range lockfileCandidates(configured) {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		creds, err := parseLockfile(string(raw))
		if err != nil {
			continue
		}
		return creds, nil
	}
	return Credentials{}, ErrLockfileNotFound
}

// lockfileCandidates orders the paths to probe: explicit configuration
// first, then the environment override, then the OS-conventional install
// locations. Duplicates are dropped.
func lockfileCandidates(configured string) []string {
	seen := make(map[string]bool)
	var candidates []string

	push := func(path string) {
		if path == "" {
			return
		}
		normalized := expandHome(path)
		if !seen[normalized] {
			seen[normalized] = true
			candidates = append(candidates, normalized)
		}
	}

	push(configured)
	push(strings.TrimSpace(os.Getenv(lockfileEnvVar)))
	for _, path := range defaultLockfilePaths() {
		push(path)
	}

	return candidates
}

func expandHome(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func defaultLockfilePaths() []string {
	var paths []string
	home, _ := os.UserHomeDir()

	switch runtime.GOOS {
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			paths = append(paths,
				filepath.Join(local, "Riot Games", "Riot Client", "Config", "lockfile"),
				filepath.Join(local, "Riot Games", "League of Legends", "lockfile"),
			)
		}
		paths = append(paths, `C:\Riot Games\League of Legends\lockfile`)
	case "darwin":
		if home != "" {
			paths = append(paths,
				filepath.Join(home, "Library", "Application Support", "League of Legends", "lockfile"))
		}
		paths = append(paths, "/Applications/League of Legends.app/Contents/LoL/lockfile")
	default:
		if home != "" {
			paths = append(paths,
				filepath.Join(home, ".config", "League of Legends", "lockfile"),
				filepath.Join(home, ".local", "share", "league-of-legends", "lockfile"),
				filepath.Join(home, "Games", "league-of-legends", "lockfile"),
			)
		}
	}

	return paths
}
