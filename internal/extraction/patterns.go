package extraction

import "regexp"

// Units recorded on extracted facts.
const (
	UnitUSD     = "USD"
	UnitPercent = "PERCENT"
	UnitFlag    = "FLAG"
)

// metricPattern declares one extractable financial metric. Each pattern
// captures the metric head phrase (group 1), the numeric value (group 2) and,
// for currency metrics, an optional scale word (group 3).
type metricPattern struct {
	key      string
	label    string
	unit     string
	patterns []*regexp.Regexp
}

// riskPattern declares one boolean risk disclosure. Presence anywhere in the
// text yields a single FLAG fact with value 1.
type riskPattern struct {
	key     string
	label   string
	pattern *regexp.Regexp
}

const (
	currencyValue = `\s*(?:were|was|:)?\s*\$?\s*([0-9][0-9,.]*)`
	scaleWord     = `\s*(million|billion|thousand)?`
)

// metricPatterns is evaluated in order, so extraction output is deterministic
// for a given text.
var metricPatterns = []metricPattern{
	{
		key: "revenue", label: "Revenue", unit: UnitUSD,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(total\s+revenue|net\s+revenue|revenues?)` + currencyValue + scaleWord),
		},
	},
	{
		key: "net_income", label: "Net income", unit: UnitUSD,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(net\s+income|net\s+loss)` + currencyValue + scaleWord),
		},
	},
	{
		key: "operating_income", label: "Operating income", unit: UnitUSD,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(operating\s+income|operating\s+loss)` + currencyValue + scaleWord),
		},
	},
	{
		key: "gross_margin_pct", label: "Gross margin", unit: UnitPercent,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(gross\s+margin)\s*(?:of|was|:)?\s*([0-9]{1,3}(?:\.[0-9]+)?)\s*%`),
		},
	},
	{
		key: "eps_diluted", label: "Diluted EPS", unit: UnitUSD,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(diluted\s+earnings\s+per\s+share|diluted\s+eps)` + currencyValue),
		},
	},
	{
		key: "total_assets", label: "Total assets", unit: UnitUSD,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(total\s+assets)` + currencyValue + scaleWord),
		},
	},
	{
		key: "total_liabilities", label: "Total liabilities", unit: UnitUSD,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(total\s+liabilities)` + currencyValue + scaleWord),
		},
	},
	{
		key: "cash_and_equivalents", label: "Cash and cash equivalents", unit: UnitUSD,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(cash\s+and\s+cash\s+equivalents)` + currencyValue + scaleWord),
		},
	},
	{
		key: "total_debt", label: "Total debt", unit: UnitUSD,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(total\s+debt|long-term\s+debt)` + currencyValue + scaleWord),
		},
	},
	{
		key: "operating_cash_flow", label: "Operating cash flow", unit: UnitUSD,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(net\s+cash\s+provided\s+by\s+operating\s+activities)\s*(?:was|:)?\s*\$?\s*([0-9][0-9,.]*)` + scaleWord),
		},
	},
}

var riskPatterns = []riskPattern{
	{
		key: "risk_going_concern", label: "Going concern risk",
		pattern: regexp.MustCompile(`(?i)substantial\s+doubt.*going\s+concern|going\s+concern`),
	},
	{
		key: "risk_material_weakness", label: "Material weakness",
		pattern: regexp.MustCompile(`(?i)material\s+weakness`),
	},
	{
		key: "risk_restatement", label: "Restatement",
		pattern: regexp.MustCompile(`(?i)restatement`),
	},
	{
		key: "risk_investigation", label: "Investigation risk",
		pattern: regexp.MustCompile(`(?i)sec\s+investigation|subpoena|investigation`),
	},
}
