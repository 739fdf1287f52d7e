package extraction

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findFact(facts []Fact, metricKey string) (Fact, bool) {
	for _, f := range facts {
		if f.MetricKey == metricKey {
			return f, true
		}
	}

	return Fact{}, false
}

func TestExtractFacts_ScaleWords(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		metric string
		want   float64
	}{
		{"million", "Total revenue was $1.2 million for the period.", "revenue", 1_200_000},
		{"billion", "Total revenue was $2 billion.", "revenue", 2_000_000_000},
		{"thousand", "Total revenue was $750 thousand.", "revenue", 750_000},
		{"no scale word", "Total revenue was $1,234,567.", "revenue", 1_234_567},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := ExtractFacts(tt.text)

			fact, ok := findFact(facts, tt.metric)
			require.True(t, ok, "expected a %s fact", tt.metric)
			require.NotNil(t, fact.Value)
			assert.InDelta(t, tt.want, *fact.Value, 0.001)
			assert.Equal(t, UnitUSD, fact.Unit)
		})
	}
}

func TestExtractFacts_LossNegatesValue(t *testing.T) {
	facts := ExtractFacts("Net loss was $3.0 million for the quarter.")

	fact, ok := findFact(facts, "net_income")
	require.True(t, ok)
	require.NotNil(t, fact.Value)
	assert.InDelta(t, -3_000_000, *fact.Value, 0.001)
}

func TestExtractFacts_GrossMarginPercent(t *testing.T) {
	facts := ExtractFacts("Gross margin of 45.2% improved year over year.")

	fact, ok := findFact(facts, "gross_margin_pct")
	require.True(t, ok)
	require.NotNil(t, fact.Value)
	assert.InDelta(t, 45.2, *fact.Value, 0.001)
	assert.Equal(t, UnitPercent, fact.Unit)
}

func TestExtractFacts_PeriodDetection(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"quarter", "For the three months ended June 30, 2024, total revenue was $10 million.", PeriodQuarter},
		{"six months", "For the six months ended June 30, 2024, total revenue was $20 million.", PeriodSixMonths},
		{"nine months", "For the nine months ended September 30, 2024, total revenue was $30 million.", PeriodNineMonths},
		{"fiscal year", "For the fiscal year, total revenue was $40 million.", PeriodYear},
		{"no cue", "Total revenue was $40 million.", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := ExtractFacts(tt.text)

			fact, ok := findFact(facts, "revenue")
			require.True(t, ok)
			assert.Equal(t, tt.want, fact.Period)
		})
	}
}

func TestExtractFacts_Confidence(t *testing.T) {
	withCurrency := ExtractFacts("Total revenue was $10 million.")
	fact, ok := findFact(withCurrency, "revenue")
	require.True(t, ok)
	assert.InDelta(t, confidenceWithCurrency, fact.Confidence, 0.001)

	bare := ExtractFacts("Revenues were 500 in the period.")
	fact, ok = findFact(bare, "revenue")
	require.True(t, ok)
	assert.InDelta(t, confidenceBare, fact.Confidence, 0.001)
}

func TestExtractFacts_RiskFlags(t *testing.T) {
	text := "Management identified a material weakness in internal controls. " +
		"There is substantial doubt about the company's ability to continue as a going concern."

	facts := ExtractFacts(text)

	for _, key := range []string{"risk_material_weakness", "risk_going_concern"} {
		fact, ok := findFact(facts, key)
		require.True(t, ok, "expected %s flag", key)
		require.NotNil(t, fact.Value)
		assert.Equal(t, 1.0, *fact.Value)
		assert.Equal(t, UnitFlag, fact.Unit)
		assert.InDelta(t, confidenceFlag, fact.Confidence, 0.001)
		assert.NotEmpty(t, fact.Snippet)
	}
}

func TestExtractFacts_SnippetCapturesContext(t *testing.T) {
	facts := ExtractFacts("In the reporting period total revenue was $5 million, driven by subscription growth.")

	fact, ok := findFact(facts, "revenue")
	require.True(t, ok)
	assert.Contains(t, fact.Snippet, "total revenue was $5 million")
	assert.Contains(t, fact.Snippet, "subscription growth")
}

func TestExtractFacts_SnippetsStayValidUTF8(t *testing.T) {
	// Pack multi-byte runes against both window edges: byte-indexed slicing
	// would cut a rune in half here.
	padding := strings.Repeat("é", 300)
	text := padding + " Revenues were $500 million for the three months ended March 31, 2024. " + padding

	facts := ExtractFacts(text)
	require.NotEmpty(t, facts)

	for _, fact := range facts {
		assert.True(t, utf8.ValidString(fact.Snippet), "snippet splits a rune: %q", fact.Snippet)
		assert.True(t, utf8.ValidString(fact.ValueRaw), "value raw splits a rune: %q", fact.ValueRaw)
	}
}

func TestWindow_RadiusIsMeasuredInRunes(t *testing.T) {
	text := strings.Repeat("é", 10) + "X" + strings.Repeat("é", 10)
	start := strings.Index(text, "X")

	w := window(text, start, start+1, 4)

	assert.Equal(t, "ééééXéééé", w)
	assert.True(t, utf8.ValidString(w))
}

func TestTruncate_CapsAtRunes(t *testing.T) {
	s := strings.Repeat("é", 5)

	got := truncate(s, 3)

	assert.Equal(t, "ééé", got)
	assert.Equal(t, s, truncate(s, 10))
}

func TestSelectBestFacts_LargerMagnitudeWins(t *testing.T) {
	segment := 2_000_000.0
	total := 10_000_000.0

	facts := []Fact{
		{MetricKey: "revenue", Period: PeriodQuarter, Value: &segment},
		{MetricKey: "revenue", Period: PeriodQuarter, Value: &total},
	}

	best := SelectBestFacts(facts)

	require.Len(t, best, 1)
	require.NotNil(t, best[0].Value)
	assert.Equal(t, total, *best[0].Value)
}

func TestSelectBestFacts_KeyedByMetricAndPeriod(t *testing.T) {
	q := 10_000_000.0
	y := 40_000_000.0

	facts := []Fact{
		{MetricKey: "revenue", Period: PeriodQuarter, Value: &q},
		{MetricKey: "revenue", Period: PeriodYear, Value: &y},
	}

	best := SelectBestFacts(facts)

	assert.Len(t, best, 2, "different periods are distinct facts")
}

func TestSelectBestFacts_NilValueNeverReplaces(t *testing.T) {
	v := 5_000_000.0

	facts := []Fact{
		{MetricKey: "revenue", Period: "", Value: &v},
		{MetricKey: "revenue", Period: "", Value: nil},
	}

	best := SelectBestFacts(facts)

	require.Len(t, best, 1)
	require.NotNil(t, best[0].Value)
	assert.Equal(t, v, *best[0].Value)
}
