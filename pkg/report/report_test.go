package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"afc-coordinator/pkg/dispatchhistory"
	"afc-coordinator/pkg/rcache"
)

func sampleData() *Data {
	return &Data{
		GeneratedAt: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		Status: rcache.Status{
			UpTime:              time.Hour,
			DBConnected:         true,
			AllTasksRunning:     true,
			InvalidationEnabled: true,
			PrecomputationQuota: 10,
			NumValidEntries:     100,
			NumInvalidEntries:   5,
		},
		Switches: []SwitchSnapshot{
			{Name: rcache.SwitchInvalidationEnabled, Enabled: true},
			{Name: rcache.SwitchUpdateEnabled, Enabled: false},
		},
		RecentInvalid: []InvalidationEvent{
			{Timestamp: time.Date(2026, 1, 15, 11, 0, 0, 0, time.UTC), Scope: "US_47_GHZ", Count: 42},
		},
		DispatchStats: map[string]dispatchhistory.Stats{
			"US_47_GHZ": {
				Total:             10,
				AverageDurationMs: 123.4,
				CountByOutcome:    map[dispatchhistory.Outcome]int{dispatchhistory.OutcomeCompleted: 9, dispatchhistory.OutcomeTimedOut: 1},
			},
		},
	}
}

func TestExcelGenerator_GenerateProducesNonEmptyWorkbook(t *testing.T) {
	g := NewExcelGenerator()
	out, err := g.Generate(sampleData())

	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", g.ContentType())
}

func TestExcelGenerator_HandlesEmptyOptionalSections(t *testing.T) {
	g := NewExcelGenerator()
	data := &Data{GeneratedAt: time.Now(), Status: rcache.Status{}}

	out, err := g.Generate(data)

	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestPDFGenerator_GenerateProducesNonEmptyDocument(t *testing.T) {
	g := NewPDFGenerator()
	out, err := g.Generate(sampleData())

	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Equal(t, "application/pdf", g.ContentType())
}

func TestPDFGenerator_HandlesEmptyOptionalSections(t *testing.T) {
	g := NewPDFGenerator()
	data := &Data{GeneratedAt: time.Now(), Status: rcache.Status{}}

	out, err := g.Generate(data)

	require.NoError(t, err)
	assert.NotEmpty(t, out)
}
