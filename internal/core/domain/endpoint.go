package domain

import (
	"net/http"
	"strings"
)

// EndpointKey identifies a mock API endpoint in the registry.
type EndpointKey string

const (
	EndpointGetProduct          EndpointKey = "getProduct"
	EndpointListProducts        EndpointKey = "listProducts"
	EndpointCreateProduct       EndpointKey = "createProduct"
	EndpointUpdateProduct       EndpointKey = "updateProduct"
	EndpointExtendProduct       EndpointKey = "extendProduct"
	EndpointDeleteProduct       EndpointKey = "deleteProduct"
	EndpointValidateQR          EndpointKey = "validateQR"
	EndpointAddLifecycleEvent   EndpointKey = "addLifecycleEvent"
	EndpointComplianceSummary   EndpointKey = "getComplianceSummary"
	EndpointVerifyProduct       EndpointKey = "verifyProduct"
	EndpointProductHistory      EndpointKey = "getProductHistory"
	EndpointImportProducts      EndpointKey = "importProducts"
	EndpointProductGraph        EndpointKey = "getProductGraph"
	EndpointProductStatus       EndpointKey = "getProductStatus"
	EndpointAnchorProduct       EndpointKey = "anchorProduct"
	EndpointCustodyChain        EndpointKey = "getCustodyChain"
	EndpointTransferOwnership   EndpointKey = "transferOwnership"
	EndpointMintToken           EndpointKey = "mintToken"
	EndpointTokenMetadata       EndpointKey = "getTokenMetadata"
	EndpointTokenStatus         EndpointKey = "getTokenStatus"
	EndpointGenerateProof       EndpointKey = "generateZkProof"
	EndpointVerifyProof         EndpointKey = "verifyZkProof"
	EndpointDisclosePrivateData EndpointKey = "disclosePrivateData"
	EndpointListProposals       EndpointKey = "listDaoProposals"
	EndpointCreateProposal      EndpointKey = "createDaoProposal"
	EndpointVoteProposal        EndpointKey = "voteDaoProposal"
)

const (
	// PlaceholderPath is used for endpoint keys missing from the registry.
	PlaceholderPath = "/your-endpoint-path"
	// SentinelAll in a query parameter means "no filter" and is never emitted.
	SentinelAll = "all"
)

// EndpointDescriptor describes one mock API endpoint. PathTemplate holds
// {param} segments; OptionalParams are query keys in the order they are emitted.
type EndpointDescriptor struct {
	Key            EndpointKey `json:"key"`
	Method         string      `json:"method"`
	PathTemplate   string      `json:"path"`
	RequiredParams []string    `json:"requiredParams,omitempty"`
	OptionalParams []string    `json:"optionalParams,omitempty"`
	BodySchema     string      `json:"bodySchema,omitempty"`
	Summary        string      `json:"summary"`
}

var endpointRegistry = []EndpointDescriptor{
	{Key: EndpointGetProduct, Method: http.MethodGet, PathTemplate: "/dpp/{productId}", RequiredParams: []string{"productId"}, Summary: "Get a product passport"},
	{Key: EndpointListProducts, Method: http.MethodGet, PathTemplate: "/dpp", OptionalParams: []string{"status", "category", "limit"}, Summary: "List product passports"},
	{Key: EndpointCreateProduct, Method: http.MethodPost, PathTemplate: "/dpp", BodySchema: "passport", Summary: "Create a product passport"},
	{Key: EndpointUpdateProduct, Method: http.MethodPut, PathTemplate: "/dpp/{productId}", RequiredParams: []string{"productId"}, BodySchema: "passport", Summary: "Replace a product passport"},
	{Key: EndpointExtendProduct, Method: http.MethodPatch, PathTemplate: "/dpp/extend/{productId}", RequiredParams: []string{"productId"}, BodySchema: "extend", Summary: "Extend passport attributes and validity"},
	{Key: EndpointDeleteProduct, Method: http.MethodDelete, PathTemplate: "/dpp/{productId}", RequiredParams: []string{"productId"}, Summary: "Delete a product passport"},
	{Key: EndpointValidateQR, Method: http.MethodPost, PathTemplate: "/qr/validate", BodySchema: "qr", Summary: "Validate a passport QR payload"},
	{Key: EndpointAddLifecycleEvent, Method: http.MethodPost, PathTemplate: "/dpp/{productId}/lifecycle-events", RequiredParams: []string{"productId"}, BodySchema: "lifecycle-event", Summary: "Record a lifecycle event"},
	{Key: EndpointComplianceSummary, Method: http.MethodGet, PathTemplate: "/dpp/{productId}/compliance-summary", RequiredParams: []string{"productId"}, Summary: "Summarize compliance checks"},
	{Key: EndpointVerifyProduct, Method: http.MethodPost, PathTemplate: "/dpp/verify/{productId}", RequiredParams: []string{"productId"}, Summary: "Issue a verifiable credential for a passport"},
	{Key: EndpointProductHistory, Method: http.MethodGet, PathTemplate: "/dpp/history/{productId}", RequiredParams: []string{"productId"}, Summary: "Passport event history"},
	{Key: EndpointImportProducts, Method: http.MethodPost, PathTemplate: "/dpp/import", BodySchema: "import", Summary: "Bulk import passports"},
	{Key: EndpointProductGraph, Method: http.MethodGet, PathTemplate: "/dpp/graph/{productId}", RequiredParams: []string{"productId"}, OptionalParams: []string{"depth"}, Summary: "Component graph"},
	{Key: EndpointProductStatus, Method: http.MethodGet, PathTemplate: "/dpp/status/{productId}", RequiredParams: []string{"productId"}, Summary: "Passport status"},
	{Key: EndpointAnchorProduct, Method: http.MethodPost, PathTemplate: "/dpp/anchor/{productId}", RequiredParams: []string{"productId"}, Summary: "Anchor passport hash on chain"},
	{Key: EndpointCustodyChain, Method: http.MethodGet, PathTemplate: "/dpp/custody/{productId}", RequiredParams: []string{"productId"}, Summary: "Chain of custody"},
	{Key: EndpointTransferOwnership, Method: http.MethodPost, PathTemplate: "/dpp/transfer-ownership/{productId}", RequiredParams: []string{"productId"}, BodySchema: "transfer", Summary: "Transfer passport ownership"},
	{Key: EndpointMintToken, Method: http.MethodPost, PathTemplate: "/token/mint/{productId}", RequiredParams: []string{"productId"}, Summary: "Mint a passport token"},
	{Key: EndpointTokenMetadata, Method: http.MethodGet, PathTemplate: "/token/metadata/{tokenId}", RequiredParams: []string{"tokenId"}, Summary: "Token metadata"},
	{Key: EndpointTokenStatus, Method: http.MethodGet, PathTemplate: "/token/status/{tokenId}", RequiredParams: []string{"tokenId"}, Summary: "Token status"},
	{Key: EndpointGenerateProof, Method: http.MethodPost, PathTemplate: "/zkp/generate-proof/{productId}", RequiredParams: []string{"productId"}, BodySchema: "zkp-claim", Summary: "Generate a zero-knowledge proof for a claim"},
	{Key: EndpointVerifyProof, Method: http.MethodPost, PathTemplate: "/zkp/verify-proof", BodySchema: "zkp-proof", Summary: "Verify a zero-knowledge proof"},
	{Key: EndpointDisclosePrivateData, Method: http.MethodPost, PathTemplate: "/private/dpp/{productId}/disclose", RequiredParams: []string{"productId"}, BodySchema: "disclose", Summary: "Selectively disclose private attributes"},
	{Key: EndpointListProposals, Method: http.MethodGet, PathTemplate: "/dao/proposals", OptionalParams: []string{"status"}, Summary: "List DAO proposals"},
	{Key: EndpointCreateProposal, Method: http.MethodPost, PathTemplate: "/dao/proposals", BodySchema: "proposal", Summary: "Create a DAO proposal"},
	{Key: EndpointVoteProposal, Method: http.MethodPost, PathTemplate: "/dao/proposals/{proposalId}/vote", RequiredParams: []string{"proposalId"}, BodySchema: "vote", Summary: "Vote on a DAO proposal"},
}

var endpointIndex = func() map[EndpointKey]EndpointDescriptor {
	m := make(map[EndpointKey]EndpointDescriptor, len(endpointRegistry))
	for _, d := range endpointRegistry {
		m[d.Key] = d
	}
	return m
}()

// Endpoints returns the registry in declaration order.
func Endpoints() []EndpointDescriptor {
	out := make([]EndpointDescriptor, len(endpointRegistry))
	copy(out, endpointRegistry)
	return out
}

func LookupEndpoint(key EndpointKey) (EndpointDescriptor, bool) {
	d, ok := endpointIndex[key]
	return d, ok
}

// IsMutatingMethod reports whether requests with method carry a body.
func IsMutatingMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}
