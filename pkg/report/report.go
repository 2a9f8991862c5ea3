// Package report renders the Rcache Control Plane's operational status as
// downloadable xlsx and pdf workbooks, so an operator can pull a point-in-
// time snapshot without scraping the JSON status endpoint. Adapted from
// the donor's services/report-svc/internal/generator package: same
// generator-per-format shape and cell/section helpers, re-pointed from
// flow-optimization reports to cache status and dispatch history.
package report

import (
	"fmt"
	"time"

	"afc-coordinator/pkg/dispatchhistory"
	"afc-coordinator/pkg/rcache"
)

// SwitchSnapshot is one named operational switch's current state.
type SwitchSnapshot struct {
	Name    string
	Enabled bool
}

// InvalidationEvent is one row of recent invalidation activity, as logged
// by the audit trail.
type InvalidationEvent struct {
	Timestamp time.Time
	Scope     string // "all", a ruleset ID, or "spatial"
	Count     int
}

// Data is everything a Generator needs to render one status snapshot.
type Data struct {
	GeneratedAt   time.Time
	Status        rcache.Status
	Switches      []SwitchSnapshot
	RecentInvalid []InvalidationEvent
	DispatchStats map[string]dispatchhistory.Stats // keyed by ruleset ID
}

// Generator renders a Data snapshot into one export format.
type Generator interface {
	Generate(data *Data) ([]byte, error)
	ContentType() string
}

func formatFloat(v float64, precision int) string {
	return fmt.Sprintf("%.*f", precision, v)
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}
