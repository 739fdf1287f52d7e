package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filingwatch/filingwatch/internal/extraction"
)

// fakeSnapshotStore holds snapshots in insertion order so LatestPrior can walk
// backwards the way the SQL implementation does.
type fakeSnapshotStore struct {
	snapshots []*extraction.FactSnapshot
	facts     map[string][]extraction.Fact
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{facts: map[string][]extraction.Fact{}}
}

func (f *fakeSnapshotStore) add(snapshot *extraction.FactSnapshot, facts []extraction.Fact) {
	f.snapshots = append(f.snapshots, snapshot)
	f.facts[snapshot.ID] = facts
}

func (f *fakeSnapshotStore) CreateSnapshot(
	_ context.Context, snapshot *extraction.FactSnapshot, facts []extraction.Fact,
) (*extraction.FactSnapshot, bool, error) {
	f.add(snapshot, facts)
	return snapshot, true, nil
}

func (f *fakeSnapshotStore) FindByArtifact(_ context.Context, artifactID string) (*extraction.FactSnapshot, error) {
	for _, s := range f.snapshots {
		if s.ArtifactID == artifactID {
			return s, nil
		}
	}

	return nil, extraction.ErrSnapshotNotFound
}

func (f *fakeSnapshotStore) LatestPrior(
	_ context.Context, snapshot *extraction.FactSnapshot,
) (*extraction.FactSnapshot, error) {
	var prior *extraction.FactSnapshot

	for _, s := range f.snapshots {
		if s.ID == snapshot.ID || s.FilerID != snapshot.FilerID || s.FormType != snapshot.FormType {
			continue
		}

		if prior == nil || s.FilingDate.After(prior.FilingDate) {
			prior = s
		}
	}

	if prior == nil {
		return nil, extraction.ErrSnapshotNotFound
	}

	return prior, nil
}

func (f *fakeSnapshotStore) Facts(_ context.Context, snapshotID string) ([]extraction.Fact, error) {
	return f.facts[snapshotID], nil
}

type fakeAlertStore struct {
	changes []*Change
	alerts  []*Alert
}

func (f *fakeAlertStore) HasChanges(_ context.Context, snapshotID string) (bool, error) {
	for _, c := range f.changes {
		if c.CurrSnapshotID == snapshotID {
			return true, nil
		}
	}

	return false, nil
}

func (f *fakeAlertStore) SaveChange(_ context.Context, change *Change) error {
	f.changes = append(f.changes, change)
	return nil
}

func (f *fakeAlertStore) SaveAlert(_ context.Context, alert *Alert) error {
	f.alerts = append(f.alerts, alert)
	return nil
}

func val(v float64) *float64 { return &v }

func snapshotAt(id, filerID, form string, filed string) *extraction.FactSnapshot {
	date, _ := time.Parse("2006-01-02", filed)

	return &extraction.FactSnapshot{
		ID:         id,
		Ticker:     "ACME",
		FilerID:    filerID,
		ArtifactID: "artifact-" + id,
		FormType:   form,
		FilingDate: date,
	}
}

func revenueFact(v float64) extraction.Fact {
	return extraction.Fact{
		MetricKey:   "revenue",
		MetricLabel: "Revenue",
		Value:       val(v),
		Unit:        extraction.UnitUSD,
		Period:      extraction.PeriodQuarter,
		Snippet:     "revenue context",
	}
}

func TestDetector_FirstSnapshotProducesNoChanges(t *testing.T) {
	snapshots := newFakeSnapshotStore()
	store := &fakeAlertStore{}

	current := snapshotAt("s1", "0000000001", "10-Q", "2024-05-01")
	snapshots.add(current, []extraction.Fact{revenueFact(100)})

	summary, err := NewDetector(nil, snapshots, store).Process(context.Background(), current)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.ChangeCount)
	assert.Equal(t, 0, summary.AlertCount)
	assert.Empty(t, store.changes)
}

func TestDetector_DetectsChangeAndRaisesAlert(t *testing.T) {
	snapshots := newFakeSnapshotStore()
	store := &fakeAlertStore{}

	prior := snapshotAt("s1", "0000000001", "10-Q", "2024-02-01")
	snapshots.add(prior, []extraction.Fact{revenueFact(1_000_000)})

	current := snapshotAt("s2", "0000000001", "10-Q", "2024-05-01")
	snapshots.add(current, []extraction.Fact{revenueFact(800_000)})

	summary, err := NewDetector(nil, snapshots, store).Process(context.Background(), current)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ChangeCount)
	assert.Equal(t, 1, summary.AlertCount)

	require.Len(t, store.changes, 1)
	change := store.changes[0]
	assert.Equal(t, -200_000.0, change.Delta)
	require.NotNil(t, change.DeltaPct)
	assert.InDelta(t, -0.2, *change.DeltaPct, 0.0001)
	assert.Equal(t, SeverityHigh, change.Severity, "highest triggered severity recorded on change")
	assert.Equal(t, "revenue_down_10pct", change.RuleID)

	require.Len(t, store.alerts, 1)
	alert := store.alerts[0]
	assert.Equal(t, "revenue_down_10pct", alert.AlertType)
	assert.Equal(t, AlertStatusOpen, alert.Status)
	assert.Equal(t, change.ID, alert.ChangeID)
}

func TestDetector_HighestSeverityWinsWithOneAlertPerRule(t *testing.T) {
	// The medium rule comes first so severity resolution has to compare ranks
	// rather than take the first match.
	rules := []Rule{
		{
			ID: "revenue_down_5pct", MetricKey: "revenue", Direction: DirectionDown,
			ThresholdPct: pct(-0.05), Severity: SeverityMedium,
			Message: "Revenue down more than 5% vs prior period.",
		},
		{
			ID: "revenue_down_10pct", MetricKey: "revenue", Direction: DirectionDown,
			ThresholdPct: pct(-0.10), Severity: SeverityHigh,
			Message: "Revenue down more than 10% vs prior period.",
		},
	}

	snapshots := newFakeSnapshotStore()
	store := &fakeAlertStore{}

	prior := snapshotAt("s1", "0000000001", "10-Q", "2024-02-01")
	snapshots.add(prior, []extraction.Fact{revenueFact(1_000_000)})

	// Down 20%: crosses both thresholds.
	current := snapshotAt("s2", "0000000001", "10-Q", "2024-05-01")
	snapshots.add(current, []extraction.Fact{revenueFact(800_000)})

	summary, err := NewDetector(rules, snapshots, store).Process(context.Background(), current)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ChangeCount)
	assert.Equal(t, 2, summary.AlertCount, "every matching rule raises its own alert")

	require.Len(t, store.changes, 1)
	change := store.changes[0]
	assert.Equal(t, SeverityHigh, change.Severity, "change records the highest triggered severity")
	assert.Equal(t, "revenue_down_10pct", change.RuleID)

	require.Len(t, store.alerts, 2)

	severityByRule := map[string]string{}
	for _, alert := range store.alerts {
		severityByRule[alert.RuleID] = alert.Severity
		assert.Equal(t, change.ID, alert.ChangeID)
	}

	assert.Equal(t, map[string]string{
		"revenue_down_5pct":  SeverityMedium,
		"revenue_down_10pct": SeverityHigh,
	}, severityByRule)
}

func TestDetector_IsIdempotentPerSnapshot(t *testing.T) {
	snapshots := newFakeSnapshotStore()
	store := &fakeAlertStore{}

	prior := snapshotAt("s1", "0000000001", "10-Q", "2024-02-01")
	snapshots.add(prior, []extraction.Fact{revenueFact(1_000_000)})

	current := snapshotAt("s2", "0000000001", "10-Q", "2024-05-01")
	snapshots.add(current, []extraction.Fact{revenueFact(800_000)})

	detector := NewDetector(nil, snapshots, store)

	_, err := detector.Process(context.Background(), current)
	require.NoError(t, err)

	again, err := detector.Process(context.Background(), current)
	require.NoError(t, err)

	assert.True(t, again.Skipped)
	assert.Len(t, store.changes, 1, "re-processing must not duplicate changes")
	assert.Len(t, store.alerts, 1, "re-processing must not duplicate alerts")
}

func TestDetector_ZeroPriorValueLeavesDeltaPctNil(t *testing.T) {
	snapshots := newFakeSnapshotStore()
	store := &fakeAlertStore{}

	prior := snapshotAt("s1", "0000000001", "10-Q", "2024-02-01")
	snapshots.add(prior, []extraction.Fact{revenueFact(0)})

	current := snapshotAt("s2", "0000000001", "10-Q", "2024-05-01")
	snapshots.add(current, []extraction.Fact{revenueFact(500_000)})

	summary, err := NewDetector(nil, snapshots, store).Process(context.Background(), current)
	require.NoError(t, err)

	require.Equal(t, 1, summary.ChangeCount)
	assert.Nil(t, store.changes[0].DeltaPct)
	assert.Equal(t, 0, summary.AlertCount, "percentage rules cannot fire without a delta pct")
}

func TestDetector_IgnoresOtherFormTypes(t *testing.T) {
	snapshots := newFakeSnapshotStore()
	store := &fakeAlertStore{}

	annual := snapshotAt("s1", "0000000001", "10-K", "2024-02-01")
	snapshots.add(annual, []extraction.Fact{revenueFact(4_000_000)})

	quarterly := snapshotAt("s2", "0000000001", "10-Q", "2024-05-01")
	snapshots.add(quarterly, []extraction.Fact{revenueFact(800_000)})

	summary, err := NewDetector(nil, snapshots, store).Process(context.Background(), quarterly)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.ChangeCount, "annual and quarterly snapshots must not be compared")
}
