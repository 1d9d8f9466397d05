package types

// CountryStat is the per-country accumulator. Timestamps are epoch milliseconds.
type CountryStat struct {
	Count     int   `json:"count"`
	FirstSeen int64 `json:"firstSeen"`
	LastSeen  int64 `json:"lastSeen"`
}

// CountryAggregate maps a free-form country label to its stats
type CountryAggregate map[string]CountryStat

// Total returns the number of messages counted across all countries
func (a CountryAggregate) Total() int {
	total := 0
	for _, s := range a {
		total += s.Count
	}
	return total
}

// Pipeline stages reported in warnings and status updates
const (
	StageList      = "list"
	StageFetch     = "fetch"
	StageParse     = "parse"
	StageAggregate = "aggregate"
	StageCache     = "cache"
	StageToken     = "token"
)

// Warning records a failure that was absorbed instead of failing the run
type Warning struct {
	Stage  string `json:"stage"`
	Detail string `json:"detail"`
}

// Result is the outcome of one pipeline run. Payload is the serialized
// aggregate exactly as stored in the result cache.
type Result struct {
	TemplateID string           `json:"templateId"`
	Aggregate  CountryAggregate `json:"aggregate"`
	Warnings   []Warning        `json:"warnings"`
	Cached     bool             `json:"cached"`
	Payload    []byte           `json:"-"`
}
