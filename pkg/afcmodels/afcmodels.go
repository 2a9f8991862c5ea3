// Package afcmodels holds the shared request/response/config types that flow
// between the coordinator and rcache services.
package afcmodels

import (
	"context"
	"time"
)

// RuntimeOptions is a bitmask mirroring the original RNTM_OPT_* flags passed
// down to the compute worker alongside a dispatched request.
type RuntimeOptions uint32

const (
	RuntimeOptCertIDIndoor RuntimeOptions = 1 << iota
	RuntimeOptDebug
	RuntimeOptSlowDebug
	RuntimeOptGUI
)

// Has reports whether all bits in want are set.
func (o RuntimeOptions) Has(want RuntimeOptions) bool {
	return o&want == want
}

// CertIDLocationFlags qualifies a certification's installed location.
type CertIDLocationFlags uint8

const (
	CertIDLocationIndoor CertIDLocationFlags = 1 << iota
)

// CertID identifies one device certification presented in a sub-request.
type CertID struct {
	RulesetID     string              `json:"rulesetId"`
	ID            string              `json:"id"`
	LocationFlags CertIDLocationFlags `json:"-"`
}

// VendorExtension is an opaque vendor-defined blob attached to a request or
// response at the message or sub-request level.
type VendorExtension struct {
	ExtensionID string         `json:"extensionId"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// OpenAfcUsedDataVendorExtParams is the vendor extension payload attached to
// responses for ALS-style data provenance logging.
type OpenAfcUsedDataVendorExtParams struct {
	ULSID string `json:"ulsId,omitempty"`
	GeoID string `json:"geoId,omitempty"`
}

const OpenAfcUsedDataVendorExtensionID = "openAfc.usedData"

// Device describes the requesting device: its serial number and the set of
// certifications it presents.
type Device struct {
	SerialNumber string   `json:"serialNumber"`
	Certifications []CertID `json:"certifications"`
}

// Location is the WGS-84 point of the requesting device.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SubRequest is one per-device entry inside an Inquiry Request.
type SubRequest struct {
	RequestID        string            `json:"requestId"`
	Device           Device            `json:"device"`
	Location         Location          `json:"location"`
	InquiredChannels []int             `json:"inquiredChannels,omitempty"`
	InquiredFrequencyRanges []FrequencyRange `json:"inquiredFrequencyRanges,omitempty"`
	VendorExtensions []VendorExtension `json:"vendorExtensions,omitempty"`
}

// FrequencyRange is an inquired [low, high] MHz band.
type FrequencyRange struct {
	LowFrequency  float64 `json:"lowFrequency"`
	HighFrequency float64 `json:"highFrequency"`
}

// InquiryRequest is the top-level caller-provided message.
type InquiryRequest struct {
	Version          string            `json:"version"`
	AvailableSpectrumInquiryRequests []SubRequest `json:"availableSpectrumInquiryRequests"`
	VendorExtensions []VendorExtension `json:"vendorExtensions,omitempty"`
}

// Flags carries the per-message query-string/header derived flags.
type Flags struct {
	Debug    bool
	Edebug   bool
	NoCache  bool
	GUI      bool
	Internal bool
}

// SupplementalInfo carries the validation-failure detail fields.
type SupplementalInfo struct {
	MissingParams    []string `json:"missingParams,omitempty"`
	InvalidParams    []string `json:"invalidParams,omitempty"`
	UnexpectedParams []string `json:"unexpectedParams,omitempty"`
}

// SubResponse is one per-device entry inside an Inquiry Response.
type SubResponse struct {
	RequestID        string            `json:"requestId"`
	RulesetID        string            `json:"rulesetId,omitempty"`
	Response         ResponseCode      `json:"response"`
	VendorExtensions []VendorExtension `json:"vendorExtensions,omitempty"`
}

// ResponseCode is the structured result embedded in every sub-response.
type ResponseCode struct {
	ResponseCode      int               `json:"responseCode"`
	ShortDescription  string            `json:"shortDescription,omitempty"`
	SupplementalInfo  *SupplementalInfo `json:"supplementalInfo,omitempty"`
}

// InquiryResponse is the top-level message returned to the caller.
type InquiryResponse struct {
	Version                           string        `json:"version"`
	AvailableSpectrumInquiryResponses []SubResponse `json:"availableSpectrumInquiryResponses"`
}

// LatestSupportedVersion is returned whenever a request's version is
// unrecognized.
const LatestSupportedVersion = "1.4"

// Config is the AFC Config document keyed by ruleset, as read from the
// config store.
type Config struct {
	RulesetID       string          `json:"rulesetId"`
	RegionStr       string          `json:"regionStr"`
	MaxLinkDistanceKM float64       `json:"maxLinkDistance"`
	Raw             map[string]any  `json:"-"`
	FetchedAt       time.Time       `json:"-"`
}

// ConfigStore is the read-only relational backing for the Config Dispenser.
type ConfigStore interface {
	RulesetIDs(ctx context.Context) ([]string, error)
	Config(ctx context.Context, rulesetID string) (*Config, error)
}

// RegionEntry describes one entry of the derived-region rewrite table.
type RegionEntry struct {
	OverwriteRegion string
	IsDerived       bool
}

// baseRegions are the regulatory regions with a real, non-derived config.
var baseRegions = []string{
	"US/US_47_CFR_PART_15_SUBPART_E",
	"CA/CA_RES_DBS-06",
	"BR/BRAZIL_RULESETID",
	"GB/UNITEDKINGDOM_RULESETID",
}

// RegionTable maps every known ruleset (base and derived) to its rewrite
// entry. Derived regions ("TEST_"/"DEMO_" prefixed) rewrite to their base at
// dispatch time; base regions map to themselves.
var RegionTable = buildRegionTable()

func buildRegionTable() map[string]RegionEntry {
	t := make(map[string]RegionEntry, len(baseRegions)*3)
	for _, pair := range baseRegions {
		region, rulesetID := splitRegionPair(pair)
		t[rulesetID] = RegionEntry{OverwriteRegion: region, IsDerived: false}
		t["TEST_"+rulesetID] = RegionEntry{OverwriteRegion: region, IsDerived: true}
		t["DEMO_"+rulesetID] = RegionEntry{OverwriteRegion: region, IsDerived: true}
	}
	return t
}

func splitRegionPair(pair string) (region, rulesetID string) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '/' {
			return pair[:i], pair[i+1:]
		}
	}
	return pair, pair
}

// RewriteRegion returns the region that should be substituted into a config
// copy dispatched for rulesetID, and whether a rewrite applies at all.
func RewriteRegion(rulesetID string) (region string, rewritten bool) {
	e, ok := RegionTable[rulesetID]
	if !ok || !e.IsDerived {
		return "", false
	}
	return e.OverwriteRegion, true
}

// VendorExtRuleKey selects one cell of the vendor-extension whitelist.
type VendorExtRuleKey struct {
	IsMessage  bool
	IsInput    bool
	IsGUI      bool
	IsInternal bool
}

// VendorExtensionRules is the precomputed whitelist map built at startup:
// (isMessage,isInput,isGUI,isInternal) -> set of allowed extension IDs.
type VendorExtensionRules map[VendorExtRuleKey]map[string]struct{}

// NewVendorExtensionRules builds the whitelist map from a flat rule list.
func NewVendorExtensionRules(rules []VendorExtRule) VendorExtensionRules {
	m := make(VendorExtensionRules)
	for _, r := range rules {
		set, ok := m[r.Key]
		if !ok {
			set = make(map[string]struct{})
			m[r.Key] = set
		}
		set[r.ExtensionID] = struct{}{}
	}
	return m
}

// VendorExtRule is one whitelist entry loaded from configuration.
type VendorExtRule struct {
	Key         VendorExtRuleKey
	ExtensionID string
}

// Allowed reports whether extensionID passes the whitelist for key.
func (r VendorExtensionRules) Allowed(key VendorExtRuleKey, extensionID string) bool {
	set, ok := r[key]
	if !ok {
		return false
	}
	_, ok = set[extensionID]
	return ok
}

// Filter removes extensions not present in the whitelist for key, in place.
func (r VendorExtensionRules) Filter(key VendorExtRuleKey, exts []VendorExtension) []VendorExtension {
	out := exts[:0]
	for _, e := range exts {
		if r.Allowed(key, e.ExtensionID) {
			out = append(out, e)
		}
	}
	return out
}
