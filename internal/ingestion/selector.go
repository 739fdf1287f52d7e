package ingestion

import (
	"sort"
	"strings"

	"github.com/filingwatch/filingwatch/internal/registry"
)

// baseForms are the filing form types eligible for ingestion. Amendment
// variants are gated behind the includeAmendments flag.
var (
	baseForms      = map[string]bool{"10-K": true, "10-Q": true}
	amendmentForms = map[string]bool{"10-K/A": true, "10-Q/A": true}
)

// EligibleForm reports whether a form type is selectable.
func EligibleForm(form string, includeAmendments bool) bool {
	f := strings.ToUpper(strings.TrimSpace(form))
	if baseForms[f] {
		return true
	}

	return includeAmendments && amendmentForms[f]
}

// SelectFilings deterministically picks the most recent annualLimit annual and
// quarterlyLimit quarterly filings from a filer's filing index.
//
// Candidates are sorted by filing date descending with filing id descending as
// the tie-break, the annual and quarterly buckets are capped independently, and
// the union is returned re-sorted by the same ordering. Repeated runs over the
// same index always return the identical ordered list, which is what makes the
// whole ingestion pipeline idempotent absent new filings.
func SelectFilings(index []registry.Filing, annualLimit, quarterlyLimit int, includeAmendments bool) []registry.Filing {
	candidates := make([]registry.Filing, 0, len(index))

	for _, filing := range index {
		if EligibleForm(filing.FormType, includeAmendments) {
			candidates = append(candidates, filing)
		}
	}

	sortFilings(candidates)

	annual := make([]registry.Filing, 0, annualLimit)
	quarterly := make([]registry.Filing, 0, quarterlyLimit)

	for _, filing := range candidates {
		form := strings.ToUpper(strings.TrimSpace(filing.FormType))

		switch {
		case strings.HasPrefix(form, "10-K"):
			if len(annual) < annualLimit {
				annual = append(annual, filing)
			}
		case strings.HasPrefix(form, "10-Q"):
			if len(quarterly) < quarterlyLimit {
				quarterly = append(quarterly, filing)
			}
		}
	}

	selected := make([]registry.Filing, 0, len(annual)+len(quarterly))
	selected = append(selected, annual...)
	selected = append(selected, quarterly...)

	sortFilings(selected)

	return selected
}

// sortFilings orders filings by filing date descending, then filing id
// descending for determinism when several filings share a date.
func sortFilings(filings []registry.Filing) {
	sort.SliceStable(filings, func(i, j int) bool {
		if !filings[i].FilingDate.Equal(filings[j].FilingDate) {
			return filings[i].FilingDate.After(filings[j].FilingDate)
		}

		return filings[i].FilingID > filings[j].FilingID
	})
}
