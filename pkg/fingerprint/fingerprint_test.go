package fingerprint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"afc-coordinator/pkg/afcmodels"
	"afc-coordinator/pkg/fingerprint"
)

func sampleRequest(requestID string) afcmodels.SubRequest {
	return afcmodels.SubRequest{
		RequestID: requestID,
		Device: afcmodels.Device{
			SerialNumber: "SN-1",
			Certifications: []afcmodels.CertID{
				{RulesetID: "US_47_CFR_PART_15_SUBPART_E", ID: "CERT-1"},
			},
		},
		Location:         afcmodels.Location{Latitude: 37.0, Longitude: -122.0},
		InquiredChannels: []int{5, 1, 3},
	}
}

func sampleConfig() afcmodels.Config {
	return afcmodels.Config{
		RulesetID: "US_47_CFR_PART_15_SUBPART_E",
		RegionStr: "US",
		Raw:       map[string]any{"maxLinkDistance": 200.0},
	}
}

func TestCompute_ExcludesRequestID(t *testing.T) {
	f1 := fingerprint.Compute(sampleRequest("req-1"), sampleConfig())
	f2 := fingerprint.Compute(sampleRequest("req-2"), sampleConfig())
	assert.Equal(t, f1, f2, "digest must not depend on requestId")
}

func TestCompute_DeterministicOrdering(t *testing.T) {
	req := sampleRequest("req-1")
	req.Device.Certifications = []afcmodels.CertID{
		{RulesetID: "B", ID: "2"},
		{RulesetID: "A", ID: "1"},
	}
	reversed := sampleRequest("req-1")
	reversed.Device.Certifications = []afcmodels.CertID{
		{RulesetID: "A", ID: "1"},
		{RulesetID: "B", ID: "2"},
	}

	assert.Equal(t, fingerprint.Compute(req, sampleConfig()), fingerprint.Compute(reversed, sampleConfig()))
}

func TestCompute_DifferentInputsDiffer(t *testing.T) {
	req := sampleRequest("req-1")
	cfg := sampleConfig()

	other := sampleRequest("req-1")
	other.Location.Latitude = 40.0

	assert.NotEqual(t, fingerprint.Compute(req, cfg), fingerprint.Compute(other, cfg))
}

func TestCompute_DigestWidth(t *testing.T) {
	digest := fingerprint.Compute(sampleRequest("req-1"), sampleConfig())
	assert.Len(t, digest, 64, "sha256 hex digest must be 64 chars (256 bits)")
}
