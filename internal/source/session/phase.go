package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// gameflowURI is the client topic carrying phase transitions.
const gameflowURI = "/lol-gameflow/v1/gameflow-phase"

// extractPhase digs a gameflow phase out of a push message. The client
// emits the same information in several shapes:
//
//	["OnJsonApiEvent", "/lol-gameflow/v1/gameflow-phase", "Lobby"]
//	[8, "OnJsonApiEvent", {"uri": "...", "data": "ChampSelect"}]
//	[8, "OnJsonApiEvent", {"uri": "...", "data": {"phase": "ReadyCheck"}}]
func extractPhase(value any) (string, bool) {
	switch v := value.(type) {
	case []any:
		if len(v) >= 3 {
			if first, ok := v[0].(string); ok && first == "OnJsonApiEvent" {
				if uri, ok := v[1].(string); ok && uri == gameflowURI {
					if phase, ok := v[2].(string); ok {
						return phase, true
					}
				}
			}
			if second, ok := v[1].(string); ok && second == "OnJsonApiEvent" {
				if phase, ok := extractPhase(v[2]); ok {
					return phase, true
				}
			}
		}
		for _, item := range v {
			if phase, ok := extractPhase(item); ok {
				return phase, true
			}
		}
		return "", false
	case map[string]any:
		if uri, _ := v["uri"].(string); uri != gameflowURI {
			return "", false
		}
		switch data := v["data"].(type) {
		case string:
			return data, true
		case map[string]any:
			if phase, ok := data["phase"].(string); ok {
				return phase, true
			}
			if phase, ok := data["gameflowPhase"].(string); ok {
				return phase, true
			}
		}
		return "", false
	default:
		return "", false
	}
}

// parsePhaseMessage decodes a raw push frame and extracts a phase, if any.
func parsePhaseMessage(payload []byte) (string, bool) {
	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return "", false
	}
	return extractPhase(value)
}

// fetchCurrentPhase asks the client's REST surface for the phase at
// connect time, so subscribers do not wait for the next transition.
// A missing endpoint is not an error; it means no phase is known yet.
func fetchCurrentPhase(ctx context.Context, client *http.Client, creds Credentials) (string, error) {
	url := creds.BaseURL() + gameflowURI
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build phase request: %w", err)
	}
	req.Header.Set("Authorization", creds.BasicAuth())

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch current phase: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch current phase: %w (%d)", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read phase body: %w", err)
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", nil
	}

	var value any
	if err := json.Unmarshal([]byte(trimmed), &value); err == nil {
		if phase, ok := extractPhase(value); ok {
			return phase, nil
		}
		if phase, ok := value.(string); ok {
			return phase, nil
		}
	}

	return strings.Trim(trimmed, `"`), nil
}
