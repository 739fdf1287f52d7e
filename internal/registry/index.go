package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Filing is one entry of a filer's filing index, denormalized from the
// registry's parallel-array submission format.
type Filing struct {
	FormType        string
	FilingDate      time.Time
	FilingID        string // accession number, with dashes
	PrimaryDocument string
	PeriodEnd       *time.Time // fiscal period end, when reported
}

// submissions mirrors the registry's per-filer submissions document.
// Attributes of the recent filings list arrive as parallel arrays.
type submissions struct {
	CIK     string `json:"cik"`
	Name    string `json:"name"`
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			ReportDate      []string `json:"reportDate"`
			Form            []string `json:"form"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

// FetchFilingIndex fetches and denormalizes the filing index for a filer.
// Rows with an unparseable filing date are skipped rather than failing the
// whole index; a missing report date leaves PeriodEnd nil.
func (c *Client) FetchFilingIndex(ctx context.Context, filerID string) ([]Filing, error) {
	id := strings.TrimSpace(filerID)
	if len(id) != 10 {
		return nil, fmt.Errorf("invalid padded filer id: %q", filerID)
	}

	url := fmt.Sprintf("%s/CIK%s.json", c.cfg.SubmissionsURL, id)

	body, err := c.getWithRetry(ctx, url, "application/json", c.cfg.IndexTimeout)
	if err != nil {
		return nil, err
	}

	var subs submissions
	if err := json.Unmarshal(body, &subs); err != nil {
		return nil, fmt.Errorf("failed to parse filing index: %w", err)
	}

	recent := subs.Filings.Recent

	// The arrays are parallel; truncate to the shortest of the required ones
	// so a malformed document cannot cause an out-of-range read.
	n := len(recent.AccessionNumber)
	for _, l := range []int{len(recent.FilingDate), len(recent.Form), len(recent.PrimaryDocument)} {
		if l < n {
			n = l
		}
	}

	filings := make([]Filing, 0, n)

	for i := 0; i < n; i++ {
		filingDate, err := time.Parse("2006-01-02", recent.FilingDate[i])
		if err != nil {
			continue
		}

		filing := Filing{
			FormType:        strings.TrimSpace(recent.Form[i]),
			FilingDate:      filingDate,
			FilingID:        recent.AccessionNumber[i],
			PrimaryDocument: recent.PrimaryDocument[i],
		}

		if i < len(recent.ReportDate) {
			if periodEnd, err := time.Parse("2006-01-02", recent.ReportDate[i]); err == nil {
				filing.PeriodEnd = &periodEnd
			}
		}

		filings = append(filings, filing)
	}

	return filings, nil
}
