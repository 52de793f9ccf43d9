package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
	"github.com/atvirokodosprendimai/dppportal/internal/core/usecase"
)

type extendRequest struct {
	Attributes json.RawMessage `json:"attributes"`
	ValidUntil *time.Time      `json:"validUntil"`
}

type qrRequest struct {
	QRData string `json:"qrData"`
}

type importRequest struct {
	Products []usecase.PassportInput `json:"products"`
}

type transferRequest struct {
	NewOwner string `json:"newOwner"`
	Reason   string `json:"reason"`
}

type claimRequest struct {
	Claim string `json:"claim"`
}

type discloseRequest struct {
	Fields    []string `json:"fields"`
	Requester string   `json:"requester"`
	Purpose   string   `json:"purpose"`
}

type proposalRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=4000"`
}

type voteRequest struct {
	Support *bool `json:"support" validate:"required"`
}

type proposalResponse struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Status       string `json:"status"`
	VotesFor     int64  `json:"votesFor"`
	VotesAgainst int64  `json:"votesAgainst"`
	CreatedAt    string `json:"createdAt"`
}

type voteResponse struct {
	Proposal proposalResponse `json:"proposal"`
	Applied  bool             `json:"applied"`
	Weight   int64            `json:"weight"`
}

// mockRoutes maps every registry endpoint to its handler. Router mounts them
// at the descriptor's method and path.
func (h *Handler) mockRoutes() map[domain.EndpointKey]http.HandlerFunc {
	return map[domain.EndpointKey]http.HandlerFunc{
		domain.EndpointGetProduct:          h.getProduct,
		domain.EndpointListProducts:        h.listProducts,
		domain.EndpointCreateProduct:       h.createProduct,
		domain.EndpointUpdateProduct:       h.updateProduct,
		domain.EndpointExtendProduct:       h.extendProduct,
		domain.EndpointDeleteProduct:       h.deleteProduct,
		domain.EndpointValidateQR:          h.validateQR,
		domain.EndpointAddLifecycleEvent:   h.addLifecycleEvent,
		domain.EndpointComplianceSummary:   h.complianceSummary,
		domain.EndpointVerifyProduct:       h.verifyProduct,
		domain.EndpointProductHistory:      h.productHistory,
		domain.EndpointImportProducts:      h.importProducts,
		domain.EndpointProductGraph:        h.productGraph,
		domain.EndpointProductStatus:       h.productStatus,
		domain.EndpointAnchorProduct:       h.anchorProduct,
		domain.EndpointCustodyChain:        h.custodyChain,
		domain.EndpointTransferOwnership:   h.transferOwnership,
		domain.EndpointMintToken:           h.mintToken,
		domain.EndpointTokenMetadata:       h.tokenMetadata,
		domain.EndpointTokenStatus:         h.tokenStatus,
		domain.EndpointGenerateProof:       h.generateProof,
		domain.EndpointVerifyProof:         h.verifyProof,
		domain.EndpointDisclosePrivateData: h.disclose,
		domain.EndpointListProposals:       h.listProposals,
		domain.EndpointCreateProposal:      h.createProposal,
		domain.EndpointVoteProposal:        h.voteProposal,
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, 100)
	if !ok {
		return
	}
	passports, err := h.svc.Passports.List(r.Context(), domain.PassportFilter{
		Status:   r.URL.Query().Get("status"),
		Category: r.URL.Query().Get("category"),
		Limit:    limit,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": passports, "count": len(passports)})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Passports.Get(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in usecase.PassportInput
	if !h.readBody(w, r, domain.EndpointCreateProduct, &in) {
		return
	}
	p, err := h.svc.Passports.Create(r.Context(), in)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var in usecase.PassportInput
	if !h.readBody(w, r, domain.EndpointUpdateProduct, &in) {
		return
	}
	p, err := h.svc.Passports.Update(r.Context(), chi.URLParam(r, "productId"), in)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) extendProduct(w http.ResponseWriter, r *http.Request) {
	var req extendRequest
	if !h.readBody(w, r, domain.EndpointExtendProduct, &req) {
		return
	}
	p, err := h.svc.Passports.Extend(r.Context(), chi.URLParam(r, "productId"), req.Attributes, req.ValidUntil)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.svc.Passports.Delete(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *Handler) validateQR(w http.ResponseWriter, r *http.Request) {
	var req qrRequest
	if !h.readBody(w, r, domain.EndpointValidateQR, &req) {
		return
	}
	result, err := h.svc.Passports.ValidateQR(r.Context(), req.QRData)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) addLifecycleEvent(w http.ResponseWriter, r *http.Request) {
	var in usecase.LifecycleEventInput
	if !h.readBody(w, r, domain.EndpointAddLifecycleEvent, &in) {
		return
	}
	event, err := h.svc.Passports.AddLifecycleEvent(r.Context(), chi.URLParam(r, "productId"), in)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (h *Handler) complianceSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Passports.ComplianceSummary(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) verifyProduct(w http.ResponseWriter, r *http.Request) {
	vc, err := h.svc.Passports.Verify(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vc)
}

func (h *Handler) productHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productId")
	events, err := h.svc.Passports.History(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"productId": id, "events": events})
}

func (h *Handler) importProducts(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !h.readBody(w, r, domain.EndpointImportProducts, &req) {
		return
	}
	result, err := h.svc.Passports.Import(r.Context(), req.Products)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) productGraph(w http.ResponseWriter, r *http.Request) {
	depth := 0
	if raw := r.URL.Query().Get("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "depth must be integer")
			return
		}
		depth = parsed
	}
	graph, err := h.svc.Passports.Graph(r.Context(), chi.URLParam(r, "productId"), depth)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

func (h *Handler) productStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.Passports.Status(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) anchorProduct(w http.ResponseWriter, r *http.Request) {
	anchor, err := h.svc.Passports.Anchor(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, anchor)
}

func (h *Handler) custodyChain(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productId")
	chain, err := h.svc.Passports.Custody(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"productId": id, "custody": chain})
}

func (h *Handler) transferOwnership(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.readBody(w, r, domain.EndpointTransferOwnership, &req) {
		return
	}
	p, err := h.svc.Passports.TransferOwnership(r.Context(), chi.URLParam(r, "productId"), req.NewOwner, req.Reason)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) mintToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.svc.Passports.MintToken(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

func (h *Handler) tokenMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := h.svc.Passports.TokenMetadata(r.Context(), chi.URLParam(r, "tokenId"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (h *Handler) tokenStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.Passports.TokenStatus(r.Context(), chi.URLParam(r, "tokenId"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) generateProof(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !h.readBody(w, r, domain.EndpointGenerateProof, &req) {
		return
	}
	proof, err := h.svc.Passports.GenerateProof(r.Context(), chi.URLParam(r, "productId"), req.Claim)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proof)
}

func (h *Handler) verifyProof(w http.ResponseWriter, r *http.Request) {
	var in usecase.ProofInput
	if !h.readBody(w, r, domain.EndpointVerifyProof, &in) {
		return
	}
	result, err := h.svc.Passports.VerifyProof(r.Context(), in)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) disclose(w http.ResponseWriter, r *http.Request) {
	var req discloseRequest
	if !h.readBody(w, r, domain.EndpointDisclosePrivateData, &req) {
		return
	}
	out, err := h.svc.Passports.Disclose(r.Context(), chi.URLParam(r, "productId"), req.Fields, req.Requester, req.Purpose)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listProposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := h.svc.Proposals.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	items := make([]proposalResponse, 0, len(proposals))
	for _, p := range proposals {
		items = append(items, toProposalResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) createProposal(w http.ResponseWriter, r *http.Request) {
	var req proposalRequest
	if !h.readBody(w, r, domain.EndpointCreateProposal, &req) {
		return
	}
	p, err := h.svc.Proposals.Create(r.Context(), req.Title, req.Description)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProposalResponse(p))
}

func (h *Handler) voteProposal(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if !h.readBody(w, r, domain.EndpointVoteProposal, &req) {
		return
	}
	if req.Support == nil {
		writeError(w, http.StatusBadRequest, "support is required")
		return
	}
	h.vote(w, r, chi.URLParam(r, "proposalId"), *req.Support)
}

func (h *Handler) vote(w http.ResponseWriter, r *http.Request, id string, support bool) {
	result, err := h.svc.Proposals.Vote(r.Context(), id, support)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, voteResponse{
		Proposal: toProposalResponse(result.Proposal),
		Applied:  result.Applied,
		Weight:   result.Weight,
	})
}

// readBody validates the body against the endpoint's JSON schema before
// decoding it into v. An empty body is treated as {}.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request, key domain.EndpointKey, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}

	if descriptor, ok := domain.LookupEndpoint(key); ok && h.svc.Schemas != nil {
		if err := h.svc.Schemas.Validate(descriptor.BodySchema, raw); err != nil {
			handleDomainError(w, r, err)
			return false
		}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func toProposalResponse(p domain.Proposal) proposalResponse {
	return proposalResponse{
		ID:           p.ID,
		Title:        p.Title,
		Description:  p.Description,
		Status:       string(p.Status),
		VotesFor:     p.VotesFor,
		VotesAgainst: p.VotesAgainst,
		CreatedAt:    p.CreatedAt.UTC().Format(timeFormat),
	}
}
