package sales

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/beam-cloud/salesmap/pkg/clients"
	"github.com/beam-cloud/salesmap/pkg/types"
)

var htmlEntityPattern = regexp.MustCompile(`&\w+;`)

// overCapturedLabel is what some patterns capture when the label itself is
// missing from the line
const overCapturedLabel = "IP:"

// Extraction is the outcome of running a pattern over one message's text
type Extraction struct {
	Matched    bool
	RawCapture string
	Country    string // empty when the capture normalizes to nothing usable
}

// Extract applies re to text and normalizes capture group 1
func Extract(re *regexp.Regexp, text string) Extraction {
	m := re.FindStringSubmatch(text)
	if m == nil || len(m) < 2 {
		return Extraction{}
	}
	return Extraction{Matched: true, RawCapture: m[1], Country: NormalizeCountry(m[1])}
}

// NormalizeCountry trims the capture and strips asterisks and HTML entity
// references. It returns "" for labels that should not be counted.
func NormalizeCountry(raw string) string {
	label := strings.TrimSpace(raw)
	label = strings.ReplaceAll(label, "*", "")
	label = htmlEntityPattern.ReplaceAllString(label, "")
	label = strings.TrimSpace(label)

	if label == overCapturedLabel {
		return ""
	}
	return label
}

// CountryAggregator folds messages into a per-country aggregate
type CountryAggregator struct {
	now func() time.Time
}

func NewCountryAggregator() *CountryAggregator {
	return &CountryAggregator{now: time.Now}
}

// AggregateStats counts how messages were handled in one Aggregate call
type AggregateStats struct {
	Messages  int
	Matched   int
	Unmatched int
	Discarded int // matched, but normalized to an empty or guarded label
}

// Aggregate extracts a country from every message and accumulates count,
// first and last timestamps per country. Messages without a usable match
// contribute nothing.
func (a *CountryAggregator) Aggregate(messages []types.RawMessage, tmpl *types.Template) (types.CountryAggregate, AggregateStats, error) {
	re, err := tmpl.Compile()
	if err != nil {
		return nil, AggregateStats{}, err
	}

	result := make(types.CountryAggregate)
	stats := AggregateStats{Messages: len(messages)}

	for i := range messages {
		ex := Extract(re, clients.ExtractText(&messages[i]))
		if !ex.Matched {
			stats.Unmatched++
			continue
		}
		if ex.Country == "" {
			stats.Discarded++
			continue
		}
		stats.Matched++

		ts := a.messageTime(messages[i].InternalDate)
		stat, ok := result[ex.Country]
		if !ok {
			result[ex.Country] = types.CountryStat{Count: 1, FirstSeen: ts, LastSeen: ts}
			continue
		}
		stat.Count++
		stat.FirstSeen = min(stat.FirstSeen, ts)
		stat.LastSeen = max(stat.LastSeen, ts)
		result[ex.Country] = stat
	}

	return result, stats, nil
}

// messageTime parses an epoch-millisecond internalDate, defaulting to now
func (a *CountryAggregator) messageTime(internalDate string) int64 {
	if ms, err := strconv.ParseInt(strings.TrimSpace(internalDate), 10, 64); err == nil && ms > 0 {
		return ms
	}
	return a.now().UnixMilli()
}
