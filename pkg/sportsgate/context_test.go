package sportsgate

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGradeQuality(t *testing.T) {
	data := json.RawMessage(`{"ok":true}`)
	tests := []struct {
		name string
		pc   PredictionContext
		want DataQuality
	}{
		{"empty", PredictionContext{}, QualityBasic},
		{"standings only", PredictionContext{Standings: data}, QualityBasic},
		{"form without standings", PredictionContext{Form: PairedData{Home: data, Away: data}}, QualityBasic},
		{"standings and one form", PredictionContext{Standings: data, Form: PairedData{Away: data}}, QualityStandard},
		{
			"standings both form no h2h",
			PredictionContext{Standings: data, Form: PairedData{Home: data, Away: data}},
			QualityStandard,
		},
		{
			"standings both form h2h",
			PredictionContext{Standings: data, Form: PairedData{Home: data, Away: data}, H2H: data},
			QualityPremium,
		},
		{
			"one team statistic is not ultra",
			PredictionContext{
				Standings:      data,
				TeamStatistics: PairedData{Home: data},
				Form:           PairedData{Home: data, Away: data},
				H2H:            data,
			},
			QualityPremium,
		},
		{
			"everything",
			PredictionContext{
				Standings:      data,
				TeamStatistics: PairedData{Home: data, Away: data},
				Form:           PairedData{Home: data, Away: data},
				H2H:            data,
			},
			QualityUltra,
		},
		{
			"statistics without h2h",
			PredictionContext{
				Standings:      data,
				TeamStatistics: PairedData{Home: data, Away: data},
				Form:           PairedData{Home: data},
			},
			QualityStandard,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := tt.pc
			assert.Equal(t, tt.want, gradeQuality(&pc))
		})
	}
}

func TestCacheEfficiency(t *testing.T) {
	assert.Equal(t, "0%", cacheEfficiency(0, 0))
	assert.Equal(t, "0%", cacheEfficiency(0, 4))
	assert.Equal(t, "50%", cacheEfficiency(2, 2))
	assert.Equal(t, "100%", cacheEfficiency(3, 0))
}

func TestPredictionContext_FailedCategories(t *testing.T) {
	pc := PredictionContext{Metadata: ContextMetadata{FailedFetches: []FetchFailure{
		{Category: CategoryForm, Side: SideHome, Reason: ReasonTimeout},
		{Category: CategoryH2H, Reason: ReasonUpstreamError},
		{Category: CategoryForm, Side: SideAway, Reason: ReasonTimeout},
	}}}
	assert.Equal(t, []Category{CategoryForm, CategoryH2H}, pc.FailedCategories())
}

func TestPredictionContext_JSONKeepsNullFields(t *testing.T) {
	date := time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)
	pc := PredictionContext{HomeTeam: "A", AwayTeam: "B", MatchDate: &date}

	raw, err := json.Marshal(pc)
	assert.NoError(t, err)

	var decoded map[string]interface{}
	assert.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Nil(t, decoded["standings"])
	assert.Nil(t, decoded["h2h"])
	assert.Contains(t, decoded, "standings")
	assert.Equal(t, "2025-03-01T15:00:00Z", decoded["match_date"])
}

func TestIsEmptyPayload(t *testing.T) {
	for _, raw := range []string{"", "null", "[]", "{}"} {
		assert.True(t, isEmptyPayload(json.RawMessage(raw)), raw)
	}
	assert.False(t, isEmptyPayload(json.RawMessage(`[{"id":1}]`)))
}

func TestSeasonFor(t *testing.T) {
	assert.Equal(t, 2024, SeasonFor(time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 2025, SeasonFor(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 2025, SeasonFor(time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 2024, SeasonFor(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestRequestTierContext(t *testing.T) {
	_, ok := RequestTierFromContext(context.Background())
	assert.False(t, ok)

	d := RequestTierDecision{Requested: RequestTierPremium, Effective: RequestTierFree, Downgraded: true, Recognized: true}
	got, ok := RequestTierFromContext(WithRequestTier(context.Background(), d))
	assert.True(t, ok)
	assert.Equal(t, d, got)
}
