// Package shell is the Message-Processor Shell: it parses one Inquiry
// Request envelope, negotiates its version, filters vendor extensions
// against the startup whitelist, fans every sub-request out to the Request
// Coordinator concurrently, and reassembles the Inquiry Response in the
// caller's original order. Grounded on spec.md §4.6 steps 1-5 and §4.8's
// vendor-extension whitelist rule, implemented fresh since no donor file
// parses a request envelope this shape — the closest donor analog,
// gateway-svc's ConnectRPC handler, only unmarshals one strongly-typed
// proto message and never filters a dynamic extension list.
package shell

import (
	"context"
	"sync"

	"afc-coordinator/pkg/afcmodels"
	"afc-coordinator/pkg/apperror"
	"afc-coordinator/services/coordinator-svc/internal/coordinator"
)

// Shell owns the vendor-extension whitelist and wraps a Coordinator.
type Shell struct {
	coord *coordinator.Coordinator
	rules afcmodels.VendorExtensionRules
}

// New wraps coord with the message-level validation and fan-out described
// in spec.md §4.6.
func New(coord *coordinator.Coordinator, rules afcmodels.VendorExtensionRules) *Shell {
	return &Shell{coord: coord, rules: rules}
}

// Handle validates req, fans its sub-requests out to the Coordinator
// concurrently, and returns the assembled Inquiry Response in input order.
func (s *Shell) Handle(ctx context.Context, req afcmodels.InquiryRequest, flags afcmodels.Flags) afcmodels.InquiryResponse {
	if req.Version != "" && req.Version != afcmodels.LatestSupportedVersion {
		return s.versionNotSupported(req)
	}

	key := afcmodels.VendorExtRuleKey{IsMessage: true, IsInput: true, IsGUI: flags.GUI, IsInternal: flags.Internal}
	req.VendorExtensions = s.rules.Filter(key, req.VendorExtensions)

	responses := make([]afcmodels.SubResponse, len(req.AvailableSpectrumInquiryRequests))
	var wg sync.WaitGroup
	for i, sub := range req.AvailableSpectrumInquiryRequests {
		wg.Add(1)
		go func(i int, sub afcmodels.SubRequest) {
			defer wg.Done()
			subKey := afcmodels.VendorExtRuleKey{IsMessage: false, IsInput: true, IsGUI: flags.GUI, IsInternal: flags.Internal}
			sub.VendorExtensions = s.rules.Filter(subKey, sub.VendorExtensions)

			resp := s.coord.Process(ctx, sub, flags)

			outKey := afcmodels.VendorExtRuleKey{IsMessage: false, IsInput: false, IsGUI: flags.GUI, IsInternal: flags.Internal}
			resp.VendorExtensions = s.rules.Filter(outKey, resp.VendorExtensions)
			responses[i] = resp
		}(i, sub)
	}
	wg.Wait()

	version := req.Version
	if version == "" {
		version = afcmodels.LatestSupportedVersion
	}

	return afcmodels.InquiryResponse{
		Version:                           version,
		AvailableSpectrumInquiryResponses: responses,
	}
}

func (s *Shell) versionNotSupported(req afcmodels.InquiryRequest) afcmodels.InquiryResponse {
	responses := make([]afcmodels.SubResponse, len(req.AvailableSpectrumInquiryRequests))
	for i, sub := range req.AvailableSpectrumInquiryRequests {
		responses[i] = afcmodels.SubResponse{
			RequestID: sub.RequestID,
			Response: afcmodels.ResponseCode{
				ResponseCode:     apperror.CodeVersionNotSupported.ResponseCode(),
				ShortDescription: "Version not supported",
			},
		}
	}
	return afcmodels.InquiryResponse{
		Version:                           afcmodels.LatestSupportedVersion,
		AvailableSpectrumInquiryResponses: responses,
	}
}
