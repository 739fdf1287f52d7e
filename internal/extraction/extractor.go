package extraction

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Extraction tuning constants.
const (
	// periodWindowRadius bounds how far around a match the period cue search looks.
	periodWindowRadius = 160

	// snippetRadius bounds the context snippet captured around a match.
	snippetRadius = 120

	maxValueRawLen = 240
	maxSnippetLen  = 320

	confidenceWithCurrency = 0.65
	confidenceBare         = 0.55
	confidenceFlag         = 0.7
)

// Reporting periods inferred from cue phrases near a match.
const (
	PeriodQuarter    = "quarter"
	PeriodSixMonths  = "six_months"
	PeriodNineMonths = "nine_months"
	PeriodYear       = "year"
)

// Fact is one extracted financial fact or risk flag.
type Fact struct {
	MetricKey   string
	MetricLabel string

	// Value is nil when the matched text could not be parsed as a number.
	Value *float64

	// ValueRaw is the matched text, kept for audit.
	ValueRaw string

	Unit string

	// Period is the inferred reporting period, or "" when no cue was found.
	Period string

	// Snippet is the surrounding context, kept for audit and alert evidence.
	Snippet string

	Confidence float64
}

// ExtractFacts scans normalized filing text for every metric and risk pattern
// and returns the raw matches in pattern-table order. Callers deduplicate with
// SelectBestFacts before persisting.
func ExtractFacts(text string) []Fact {
	var facts []Fact

	for _, metric := range metricPatterns {
		for _, pattern := range metric.patterns {
			for _, loc := range pattern.FindAllStringSubmatchIndex(text, -1) {
				facts = append(facts, buildMetricFact(text, metric, loc))
			}
		}
	}

	for _, risk := range riskPatterns {
		loc := risk.pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}

		one := 1.0
		facts = append(facts, Fact{
			MetricKey:   risk.key,
			MetricLabel: risk.label,
			Value:       &one,
			ValueRaw:    truncate(text[loc[0]:loc[1]], maxValueRawLen),
			Unit:        UnitFlag,
			Snippet:     truncate(snippet(text, loc[0], loc[1]), maxSnippetLen),
			Confidence:  confidenceFlag,
		})
	}

	return facts
}

// buildMetricFact turns one submatch location into a Fact: parse the number,
// apply the scale word, negate losses, infer the period and cut the snippet.
func buildMetricFact(text string, metric metricPattern, loc []int) Fact {
	full := text[loc[0]:loc[1]]

	head := ""
	if len(loc) > 3 && loc[2] >= 0 {
		head = strings.ToLower(text[loc[2]:loc[3]])
	}

	rawValue := ""
	if len(loc) > 5 && loc[4] >= 0 {
		rawValue = text[loc[4]:loc[5]]
	}

	scale := ""
	if len(loc) > 7 && loc[6] >= 0 {
		scale = text[loc[6]:loc[7]]
	}

	value := parseNumeric(rawValue)
	if value != nil {
		scaled := *value * scaleFactor(scale)
		// "Net loss of $3 million" reports a positive magnitude; the sign
		// lives in the head phrase.
		if strings.Contains(head, "loss") {
			scaled = -abs(scaled)
		}

		value = &scaled
	}

	confidence := confidenceBare
	if scale != "" || strings.Contains(full, "$") {
		confidence = confidenceWithCurrency
	}

	return Fact{
		MetricKey:   metric.key,
		MetricLabel: metric.label,
		Value:       value,
		ValueRaw:    truncate(full, maxValueRawLen),
		Unit:        metric.unit,
		Period:      detectPeriod(window(text, loc[0], loc[1], periodWindowRadius)),
		Snippet:     truncate(snippet(text, loc[0], loc[1]), maxSnippetLen),
		Confidence:  confidence,
	}
}

// SelectBestFacts deduplicates raw matches per (metric, period), preferring
// the fact with the larger absolute value. Headline statements of a metric
// repeat across a filing; the largest magnitude is the totals line rather than
// a segment breakout. Output preserves first-seen key order for determinism.
func SelectBestFacts(facts []Fact) []Fact {
	type key struct {
		metric string
		period string
	}

	best := make(map[key]Fact)
	order := make([]key, 0, len(facts))

	for _, fact := range facts {
		k := key{metric: fact.MetricKey, period: fact.Period}

		current, seen := best[k]
		if !seen {
			best[k] = fact
			order = append(order, k)

			continue
		}

		if fact.Value == nil {
			continue
		}

		if current.Value == nil || abs(*fact.Value) > abs(*current.Value) {
			best[k] = fact
		}
	}

	selected := make([]Fact, 0, len(order))
	for _, k := range order {
		selected = append(selected, best[k])
	}

	return selected
}

// parseNumeric parses a matched numeric string, tolerating thousands separators.
func parseNumeric(raw string) *float64 {
	cleaned := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if cleaned == "" {
		return nil
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}

	return &value
}

// scaleFactor maps a scale word to its multiplier; unknown words scale by 1.
func scaleFactor(word string) float64 {
	switch strings.ToLower(word) {
	case "thousand":
		return 1e3
	case "million":
		return 1e6
	case "billion":
		return 1e9
	}

	return 1
}

// detectPeriod infers the reporting period from cue phrases in a text window.
func detectPeriod(w string) string {
	lower := strings.ToLower(w)

	switch {
	case strings.Contains(lower, "three months ended") || strings.Contains(lower, "quarter ended"):
		return PeriodQuarter
	case strings.Contains(lower, "six months ended"):
		return PeriodSixMonths
	case strings.Contains(lower, "nine months ended"):
		return PeriodNineMonths
	case strings.Contains(lower, "twelve months ended") ||
		strings.Contains(lower, "year ended") ||
		strings.Contains(lower, "fiscal year"):
		return PeriodYear
	}

	return ""
}

// window cuts the text around a byte-indexed match with a radius measured in
// runes, so the edges never split a multi-byte rune.
func window(text string, start, end, radius int) string {
	left := start
	for i := 0; i < radius && left > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:left])
		left -= size
	}

	right := end
	for i := 0; i < radius && right < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[right:])
		right += size
	}

	return text[left:right]
}

func snippet(text string, start, end int) string {
	return strings.TrimSpace(window(text, start, end, snippetRadius))
}

// truncate caps s at n runes.
func truncate(s string, n int) string {
	count := 0

	for i := range s {
		if count == n {
			return s[:i]
		}

		count++
	}

	return s
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}

	return v
}
