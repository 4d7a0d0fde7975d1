package apisports

import "strconv"

type fixture struct {
	Fixture struct {
		Date string `json:"date"`
	} `json:"fixture"`
	Teams struct {
		Home fixtureTeam `json:"home"`
		Away fixtureTeam `json:"away"`
	} `json:"teams"`
	Goals struct {
		Home *int `json:"home"`
		Away *int `json:"away"`
	} `json:"goals"`
}

type fixtureTeam struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// HeadToHead is the summarised head-to-head record between two teams
type HeadToHead struct {
	TotalMatches    int           `json:"total_matches"`
	Team1Wins       int           `json:"team1_wins"`
	Team2Wins       int           `json:"team2_wins"`
	Draws           int           `json:"draws"`
	TotalGoalsTeam1 int           `json:"total_goals_team1"`
	TotalGoalsTeam2 int           `json:"total_goals_team2"`
	LastMatches     []MatchResult `json:"last_5_matches"`
}

// MatchResult is one past meeting
type MatchResult struct {
	Date     string `json:"date"`
	HomeTeam string `json:"home_team"`
	AwayTeam string `json:"away_team"`
	Score    string `json:"score"`
}

const (
	h2hCountedMatches = 10
	h2hListedMatches  = 5
)

// summarizeHeadToHead tallies the most recent meetings from team1's side.
// Unplayed fixtures (no goals) count as 0-0.
func summarizeHeadToHead(fixtures []fixture, team1ID int) HeadToHead {
	summary := HeadToHead{TotalMatches: len(fixtures), LastMatches: []MatchResult{}}

	counted := fixtures
	if len(counted) > h2hCountedMatches {
		counted = counted[:h2hCountedMatches]
	}
	for _, f := range counted {
		home, away := goals(f.Goals.Home), goals(f.Goals.Away)
		team1Home := f.Teams.Home.ID == team1ID

		switch {
		case home > away && team1Home, away > home && !team1Home:
			summary.Team1Wins++
		case home == away:
			summary.Draws++
		default:
			summary.Team2Wins++
		}

		if team1Home {
			summary.TotalGoalsTeam1 += home
			summary.TotalGoalsTeam2 += away
		} else {
			summary.TotalGoalsTeam1 += away
			summary.TotalGoalsTeam2 += home
		}

		if len(summary.LastMatches) < h2hListedMatches {
			summary.LastMatches = append(summary.LastMatches, MatchResult{
				Date:     f.Fixture.Date,
				HomeTeam: f.Teams.Home.Name,
				AwayTeam: f.Teams.Away.Name,
				Score:    strconv.Itoa(home) + "-" + strconv.Itoa(away),
			})
		}
	}
	return summary
}

func goals(g *int) int {
	if g == nil {
		return 0
	}
	return *g
}
