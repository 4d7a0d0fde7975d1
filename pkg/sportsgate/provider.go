package sportsgate

import (
	"context"
	"encoding/json"
)

// Provider is the upstream sports-data API. Every method costs one upstream call.
// Implementations return ErrEmptyPayload when the upstream answered without data.
type Provider interface {
	FetchStandings(ctx context.Context, leagueID, season int) (json.RawMessage, error)
	FetchTeamStatistics(ctx context.Context, teamID, leagueID, season int) (json.RawMessage, error)
	FetchTeamLastMatches(ctx context.Context, teamID, limit int) (json.RawMessage, error)
	FetchHeadToHead(ctx context.Context, team1ID, team2ID int) (json.RawMessage, error)
}

// TeamResolver maps a team name to its upstream numeric ID.
// It returns ErrTeamUnresolved when no team matches.
type TeamResolver interface {
	ResolveTeamID(ctx context.Context, name string) (int, error)
}

// isEmptyPayload reports whether a payload carries no usable data
func isEmptyPayload(raw json.RawMessage) bool {
	switch string(raw) {
	case "", "null", "[]", "{}":
		return true
	}
	return false
}
