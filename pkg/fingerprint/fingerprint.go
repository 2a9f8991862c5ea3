// Package fingerprint canonicalizes a (sub-request, config) pair into a
// stable content digest used as the Rcache lookup key.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"afc-coordinator/pkg/afcmodels"
)

// Compute returns the hex-encoded sha256 digest of the canonical form of
// (req, cfg). requestId is excluded before hashing so that two otherwise
// identical sub-requests produce the same digest regardless of caller-chosen
// correlation IDs.
func Compute(req afcmodels.SubRequest, cfg afcmodels.Config) string {
	data := toCanonical(req, cfg)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// toCanonical builds a deterministic byte representation: sorted
// certifications, sorted channels/frequency ranges, and the config's raw
// document serialized with sorted keys. The requestId field is never
// included.
func toCanonical(req afcmodels.SubRequest, cfg afcmodels.Config) []byte {
	certs := append([]afcmodels.CertID(nil), req.Device.Certifications...)
	sort.Slice(certs, func(i, j int) bool {
		if certs[i].RulesetID != certs[j].RulesetID {
			return certs[i].RulesetID < certs[j].RulesetID
		}
		return certs[i].ID < certs[j].ID
	})

	channels := append([]int(nil), req.InquiredChannels...)
	sort.Ints(channels)

	ranges := append([]afcmodels.FrequencyRange(nil), req.InquiredFrequencyRanges...)
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].LowFrequency != ranges[j].LowFrequency {
			return ranges[i].LowFrequency < ranges[j].LowFrequency
		}
		return ranges[i].HighFrequency < ranges[j].HighFrequency
	})

	canon := struct {
		SerialNumber string                       `json:"serialNumber"`
		Certs        []afcmodels.CertID           `json:"certs"`
		Latitude     float64                      `json:"lat"`
		Longitude    float64                      `json:"lon"`
		Channels     []int                        `json:"channels,omitempty"`
		Ranges       []afcmodels.FrequencyRange   `json:"ranges,omitempty"`
		RulesetID    string                       `json:"rulesetId"`
		Region       string                       `json:"region"`
		ConfigRaw    map[string]any               `json:"config"`
	}{
		SerialNumber: req.Device.SerialNumber,
		Certs:        certs,
		Latitude:     req.Location.Latitude,
		Longitude:    req.Location.Longitude,
		Channels:     channels,
		Ranges:       ranges,
		RulesetID:    cfg.RulesetID,
		Region:       cfg.RegionStr,
		ConfigRaw:    sortedCopy(cfg.Raw),
	}

	// encoding/json sorts map keys deterministically, so marshaling the
	// canon struct (including the nested config map) is enough to get a
	// stable byte string without hand-building one field at a time.
	b, err := json.Marshal(canon)
	if err != nil {
		// Marshal of plain data/maps/slices cannot fail; keep a
		// deterministic fallback rather than panicking.
		return []byte(req.Device.SerialNumber)
	}
	return b
}

// sortedCopy returns m unchanged; present so that future non-JSON-friendly
// values (e.g. raw strings) can be normalized in one place before hashing.
func sortedCopy(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// QuickHash hashes arbitrary bytes, full width.
func QuickHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
