package apisports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

type teamEntry struct {
	Team struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"team"`
}

// ResolveTeamID implements sportsgate.TeamResolver. An exact (case-insensitive)
// name match wins over the first search result.
func (c *Client) ResolveTeamID(ctx context.Context, name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, sportsgate.ErrTeamUnresolved
	}

	raw, err := c.get(ctx, "/teams", url.Values{"search": {name}})
	if errors.Is(err, sportsgate.ErrEmptyPayload) {
		return 0, fmt.Errorf("%w: no team matches %q", sportsgate.ErrTeamUnresolved, name)
	}
	if err != nil {
		return 0, err
	}

	var teams []teamEntry
	if err := json.Unmarshal(raw, &teams); err != nil {
		return 0, fmt.Errorf("decode teams: %w", err)
	}
	for _, t := range teams {
		if strings.EqualFold(t.Team.Name, name) {
			return t.Team.ID, nil
		}
	}
	if len(teams) == 0 || teams[0].Team.ID == 0 {
		return 0, fmt.Errorf("%w: no team matches %q", sportsgate.ErrTeamUnresolved, name)
	}
	return teams[0].Team.ID, nil
}
