package schedule

import (
	"strings"

	"github.com/nrsc-chatbot/portal-api/config"
)

// IntervalTable resolves the rescrape interval of a URL. The first
// registered domain contained in the URL wins; otherwise the default applies.
type IntervalTable struct {
	domains     []config.DomainInterval
	defaultDays int
}

func NewIntervalTable(domains []config.DomainInterval, defaultDays int) *IntervalTable {
	if defaultDays < 1 {
		defaultDays = 15
	}
	return &IntervalTable{
		domains:     append([]config.DomainInterval(nil), domains...),
		defaultDays: defaultDays,
	}
}

// Lookup returns the interval in days for url
func (t *IntervalTable) Lookup(url string) int {
	for _, d := range t.domains {
		if d.Domain != "" && strings.Contains(url, d.Domain) {
			return d.Days
		}
	}
	return t.defaultDays
}
