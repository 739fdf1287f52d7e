// Package alerting compares fact snapshots across filings and raises alerts
// when declarative rules match the detected changes.
package alerting

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Alert severities, ordered by rank.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
	SeverityInfo   = "info"
)

// SeverityRank orders severities for comparison; unknown severities rank
// lowest.
func SeverityRank(severity string) int {
	switch severity {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	case SeverityInfo:
		return 0
	}

	return 0
}

// Rule directions.
const (
	DirectionDown    = "down"
	DirectionUp      = "up"
	DirectionPresent = "present"
)

// Rule is one declarative alert condition over a metric change.
//
// Exactly one of ThresholdPct and ThresholdAbs applies for up/down rules;
// present rules fire whenever the metric appears in a change (optionally gated
// on a specific value).
type Rule struct {
	ID           string   `yaml:"id"`
	MetricKey    string   `yaml:"metric_key"`
	Direction    string   `yaml:"direction"`
	ThresholdPct *float64 `yaml:"threshold_pct,omitempty"`
	ThresholdAbs *float64 `yaml:"threshold_abs,omitempty"`
	TriggerValue *float64 `yaml:"trigger_on_value,omitempty"`
	Severity     string   `yaml:"severity"`
	Message      string   `yaml:"message"`
}

// ruleset is the on-disk format of one versioned ruleset file.
type ruleset struct {
	AlertRules []Rule `yaml:"alert_rules"`
}

func pct(v float64) *float64 { return &v }

// DefaultRules returns the built-in ruleset used when no ruleset directory is
// configured or loadable.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID: "revenue_down_10pct", MetricKey: "revenue", Direction: DirectionDown,
			ThresholdPct: pct(-0.10), Severity: SeverityHigh,
			Message: "Revenue down more than 10% vs prior period.",
		},
		{
			ID: "net_income_down_15pct", MetricKey: "net_income", Direction: DirectionDown,
			ThresholdPct: pct(-0.15), Severity: SeverityHigh,
			Message: "Net income down more than 15% vs prior period.",
		},
		{
			ID: "gross_margin_down_200bps", MetricKey: "gross_margin_pct", Direction: DirectionDown,
			ThresholdAbs: pct(-2.0), Severity: SeverityMedium,
			Message: "Gross margin down more than 200 bps.",
		},
		{
			ID: "debt_up_20pct", MetricKey: "total_debt", Direction: DirectionUp,
			ThresholdPct: pct(0.20), Severity: SeverityMedium,
			Message: "Total debt up more than 20% vs prior period.",
		},
		{
			ID: "operating_cf_down_20pct", MetricKey: "operating_cash_flow", Direction: DirectionDown,
			ThresholdPct: pct(-0.20), Severity: SeverityMedium,
			Message: "Operating cash flow down more than 20% vs prior period.",
		},
		{
			ID: "risk_going_concern", MetricKey: "risk_going_concern", Direction: DirectionPresent,
			Severity: SeverityHigh,
			Message:  "Going concern risk disclosed.",
		},
		{
			ID: "risk_material_weakness", MetricKey: "risk_material_weakness", Direction: DirectionPresent,
			Severity: SeverityHigh,
			Message:  "Material weakness disclosed.",
		},
	}
}

// LoadRules loads the newest versioned ruleset file from dir.
//
// Ruleset files are YAML documents named so that lexicographic order is
// version order (e.g. rules-2024-06-01.yaml); the newest file wins. Every
// failure mode degrades gracefully to the built-in defaults: a missing
// directory, no ruleset files, unreadable or malformed YAML, or an empty rule
// list. Alerting must never stop because an operator broke a ruleset file.
func LoadRules(dir string, logger *slog.Logger) []Rule {
	if dir == "" {
		return DefaultRules()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return DefaultRules()
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			files = append(files, name)
		}
	}

	if len(files) == 0 {
		return DefaultRules()
	}

	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	path := filepath.Join(dir, files[0])

	rules, err := loadRulesetFile(path)
	if err != nil {
		if logger != nil {
			logger.Warn("failed to load ruleset file, using default rules",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}

		return DefaultRules()
	}

	if logger != nil {
		logger.Info("loaded alert ruleset",
			slog.String("path", path),
			slog.Int("rules", len(rules)),
		)
	}

	return rules
}

func loadRulesetFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ruleset: %w", err)
	}

	var rs ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse ruleset: %w", err)
	}

	if len(rs.AlertRules) == 0 {
		return nil, fmt.Errorf("ruleset %s contains no rules", path)
	}

	return rs.AlertRules, nil
}
