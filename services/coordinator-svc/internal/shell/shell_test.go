package shell

import (
	"context"
	"testing"

	"afc-coordinator/pkg/afcmodels"
	"afc-coordinator/services/coordinator-svc/internal/coordinator"
)

func TestHandleRejectsUnsupportedVersion(t *testing.T) {
	s := New(nil, afcmodels.NewVendorExtensionRules(nil))

	req := afcmodels.InquiryRequest{
		Version: "0.1",
		AvailableSpectrumInquiryRequests: []afcmodels.SubRequest{
			{RequestID: "r1"},
			{RequestID: "r2"},
		},
	}

	resp := s.Handle(context.Background(), req, afcmodels.Flags{})

	if resp.Version != afcmodels.LatestSupportedVersion {
		t.Fatalf("expected latest supported version in response, got %q", resp.Version)
	}
	if len(resp.AvailableSpectrumInquiryResponses) != 2 {
		t.Fatalf("expected one sub-response per sub-request, got %d", len(resp.AvailableSpectrumInquiryResponses))
	}
	for _, sr := range resp.AvailableSpectrumInquiryResponses {
		if sr.Response.ResponseCode != 100 {
			t.Fatalf("expected VERSION_NOT_SUPPORTED (100), got %d", sr.Response.ResponseCode)
		}
	}
}

func TestHandleWithWhitelistReturnsNoSubResponsesForEmptyRequest(t *testing.T) {
	rules := afcmodels.NewVendorExtensionRules([]afcmodels.VendorExtRule{
		{Key: afcmodels.VendorExtRuleKey{IsMessage: true, IsInput: true}, ExtensionID: "allowed.ext"},
	})

	req := afcmodels.InquiryRequest{
		Version: afcmodels.LatestSupportedVersion,
		VendorExtensions: []afcmodels.VendorExtension{
			{ExtensionID: "allowed.ext"},
			{ExtensionID: "blocked.ext"},
		},
	}

	// A nil Coordinator is safe here since there are no sub-requests to
	// dispatch; only the message-level filtering path is exercised.
	s := New((*coordinator.Coordinator)(nil), rules)
	resp := s.Handle(context.Background(), req, afcmodels.Flags{})

	if len(resp.AvailableSpectrumInquiryResponses) != 0 {
		t.Fatalf("expected zero sub-responses for an empty request, got %d", len(resp.AvailableSpectrumInquiryResponses))
	}
}

func TestHandlePreservesInputOrderAcrossConcurrentSubRequests(t *testing.T) {
	rules := afcmodels.NewVendorExtensionRules(nil)
	s := New(nil, rules)

	req := afcmodels.InquiryRequest{
		Version: afcmodels.LatestSupportedVersion,
	}
	for i := 0; i < 20; i++ {
		req.AvailableSpectrumInquiryRequests = append(req.AvailableSpectrumInquiryRequests, afcmodels.SubRequest{
			RequestID: string(rune('a' + i)),
		})
	}

	// Every sub-request has no certifications, so Process's selectRuleset
	// returns before touching any collaborator field - a zero-value
	// *coordinator.Coordinator is safe to call Process on in that path.
	s.coord = &coordinator.Coordinator{}

	resp := s.Handle(context.Background(), req, afcmodels.Flags{})

	if len(resp.AvailableSpectrumInquiryResponses) != 20 {
		t.Fatalf("expected 20 responses, got %d", len(resp.AvailableSpectrumInquiryResponses))
	}
	for i, sr := range resp.AvailableSpectrumInquiryResponses {
		want := string(rune('a' + i))
		if sr.RequestID != want {
			t.Fatalf("response %d: expected requestId %q in original order, got %q", i, want, sr.RequestID)
		}
	}
}
