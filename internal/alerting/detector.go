package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/filingwatch/filingwatch/internal/config"
	"github.com/filingwatch/filingwatch/internal/extraction"
)

// Detector runs change detection and rule evaluation for new fact snapshots.
//
// Detection is idempotent per snapshot: once any change rows exist for a
// snapshot the whole step is skipped, so a retried parse job never duplicates
// changes or alerts.
type Detector struct {
	rules     []Rule
	snapshots extraction.SnapshotStore
	store     Store
	logger    *slog.Logger
}

// NewDetector wires a change detector. A nil or empty rules slice falls back
// to the built-in defaults.
func NewDetector(rules []Rule, snapshots extraction.SnapshotStore, store Store) *Detector {
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	return &Detector{
		rules:     rules,
		snapshots: snapshots,
		store:     store,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

// Summary reports what one detection run produced.
type Summary struct {
	ChangeCount int
	AlertCount  int

	// Skipped is set when detection already ran for the snapshot.
	Skipped bool
}

// Process detects changes between a snapshot and its latest prior snapshot and
// raises alerts for every rule the changes trigger.
//
// The first snapshot for a filer/form pair yields no changes: there is nothing
// to compare against, and inventing a zero baseline would fire every down rule
// on the next real filing.
func (d *Detector) Process(ctx context.Context, snapshot *extraction.FactSnapshot) (*Summary, error) {
	exists, err := d.store.HasChanges(ctx, snapshot.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing changes: %w", err)
	}

	if exists {
		return &Summary{Skipped: true}, nil
	}

	prior, err := d.snapshots.LatestPrior(ctx, snapshot)
	if err != nil {
		if errors.Is(err, extraction.ErrSnapshotNotFound) {
			return &Summary{}, nil
		}

		return nil, fmt.Errorf("failed to find prior snapshot: %w", err)
	}

	currFacts, err := d.factsByKey(ctx, snapshot.ID)
	if err != nil {
		return nil, err
	}

	priorFacts, err := d.factsByKey(ctx, prior.ID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}

	for key, curr := range currFacts {
		prev, ok := priorFacts[key]
		if !ok || prev.Value == nil || curr.Value == nil {
			continue
		}

		change := d.buildChange(snapshot, prior, prev, curr)

		triggered := EvaluateRules(change, d.rules)
		if len(triggered) > 0 {
			best := highestSeverity(triggered)
			change.Severity = best.Severity
			change.RuleID = best.RuleID
		}

		if err := d.store.SaveChange(ctx, change); err != nil {
			return nil, fmt.Errorf("failed to save change for %s: %w", change.MetricKey, err)
		}

		summary.ChangeCount++

		for _, alert := range triggered {
			alert.ChangeID = change.ID

			if err := d.store.SaveAlert(ctx, alert); err != nil {
				return nil, fmt.Errorf("failed to save alert %s: %w", alert.AlertType, err)
			}

			summary.AlertCount++
		}
	}

	d.logger.Info("change detection complete",
		slog.String("snapshot_id", snapshot.ID),
		slog.String("ticker", snapshot.Ticker),
		slog.Int("changes", summary.ChangeCount),
		slog.Int("alerts", summary.AlertCount),
	)

	return summary, nil
}

type factKey struct {
	metric string
	period string
}

func (d *Detector) factsByKey(ctx context.Context, snapshotID string) (map[factKey]extraction.Fact, error) {
	facts, err := d.snapshots.Facts(ctx, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to load facts for snapshot %s: %w", snapshotID, err)
	}

	byKey := make(map[factKey]extraction.Fact, len(facts))
	for _, fact := range facts {
		byKey[factKey{metric: fact.MetricKey, period: fact.Period}] = fact
	}

	return byKey, nil
}

func (d *Detector) buildChange(
	snapshot, prior *extraction.FactSnapshot,
	prev, curr extraction.Fact,
) *Change {
	delta := *curr.Value - *prev.Value

	var deltaPct *float64

	if *prev.Value != 0 {
		v := delta / *prev.Value
		deltaPct = &v
	}

	return &Change{
		ID:             uuid.NewString(),
		Ticker:         snapshot.Ticker,
		FilerID:        snapshot.FilerID,
		MetricKey:      curr.MetricKey,
		MetricLabel:    curr.MetricLabel,
		PrevValue:      *prev.Value,
		CurrValue:      *curr.Value,
		Delta:          delta,
		DeltaPct:       deltaPct,
		Unit:           curr.Unit,
		Period:         curr.Period,
		PrevSnapshotID: prior.ID,
		CurrSnapshotID: snapshot.ID,
		Severity:       SeverityInfo,
		Snippet:        curr.Snippet,
		DetectedAt:     time.Now().UTC(),
	}
}

// EvaluateRules returns one alert per rule the change matches.
//
// Down/up rules compare the percentage delta when the rule carries a
// percentage threshold, and the absolute delta when it carries an absolute
// threshold; a nil percentage delta (prior value was zero) never matches a
// percentage rule. Present rules match whenever the metric changed hands,
// optionally gated on a specific current value.
func EvaluateRules(change *Change, rules []Rule) []*Alert {
	var alerts []*Alert

	for _, rule := range rules {
		if rule.MetricKey != change.MetricKey {
			continue
		}

		if !ruleMatches(change, rule) {
			continue
		}

		severity := rule.Severity
		if severity == "" {
			severity = SeverityMedium
		}

		message := rule.Message
		if message == "" {
			message = fmt.Sprintf("%s changed materially.", change.MetricLabel)
		}

		alertType := rule.ID
		if alertType == "" {
			alertType = change.MetricKey
		}

		alerts = append(alerts, &Alert{
			ID:          uuid.NewString(),
			Ticker:      change.Ticker,
			FilerID:     change.FilerID,
			AlertType:   alertType,
			Severity:    severity,
			Status:      AlertStatusOpen,
			Message:     message,
			RuleID:      rule.ID,
			SnapshotID:  change.CurrSnapshotID,
			Snippet:     change.Snippet,
			TriggeredAt: time.Now().UTC(),
		})
	}

	return alerts
}

func ruleMatches(change *Change, rule Rule) bool {
	switch {
	case rule.Direction == DirectionPresent:
		return rule.TriggerValue == nil || *rule.TriggerValue == change.CurrValue
	case rule.ThresholdPct != nil:
		if change.DeltaPct == nil {
			return false
		}

		if rule.Direction == DirectionDown {
			return *change.DeltaPct <= *rule.ThresholdPct
		}

		return rule.Direction == DirectionUp && *change.DeltaPct >= *rule.ThresholdPct
	case rule.ThresholdAbs != nil:
		if rule.Direction == DirectionDown {
			return change.Delta <= *rule.ThresholdAbs
		}

		return rule.Direction == DirectionUp && change.Delta >= *rule.ThresholdAbs
	}

	return false
}

// highestSeverity picks the triggered alert with the highest severity rank.
func highestSeverity(alerts []*Alert) *Alert {
	best := alerts[0]
	for _, alert := range alerts[1:] {
		if SeverityRank(alert.Severity) > SeverityRank(best.Severity) {
			best = alert
		}
	}

	return best
}
