package usecase

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
)

// The ledger is simulated: hashes stand in for transactions and a counter
// for the chain height.
const (
	simulatedNetwork   = "polygon-amoy (simulated)"
	simulatedContract  = "0x5d00000000000000000000000000000000000d01"
	tokenStandard      = "ERC-721"
	baseBlockNumber    = 48_000_000
	proofScheme        = "groth16-simulated"
	credentialContext  = "https://www.w3.org/2018/credentials/v1"
	passportContextURI = "https://dpp-platform.example/contexts/passport/v1"
)

// Token statuses.
const (
	TokenActive = "active"
	TokenFrozen = "frozen"
)

// Claims a zero-knowledge proof can be generated for.
const (
	ClaimCompliant = "compliant"
	ClaimActive    = "active"
	ClaimAnchored  = "anchored"
	ClaimTokenized = "tokenized"
)

type TokenMetadata struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	ExternalURL string           `json:"external_url"`
	Attributes  []TokenAttribute `json:"attributes"`
}

type TokenAttribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

type TokenStatusView struct {
	TokenID   string    `json:"tokenId"`
	Status    string    `json:"status"`
	Owner     string    `json:"owner"`
	Standard  string    `json:"standard"`
	Contract  string    `json:"contract"`
	ProductID string    `json:"productId"`
	MintedAt  time.Time `json:"mintedAt"`
}

type Proof struct {
	ProofID       string    `json:"proofId"`
	ProductID     string    `json:"productId"`
	Claim         string    `json:"claim"`
	Scheme        string    `json:"scheme"`
	Commitment    string    `json:"commitment"`
	PublicSignals []string  `json:"publicSignals"`
	CreatedAt     time.Time `json:"createdAt"`
}

type ProofInput struct {
	ProofID    string `json:"proofId"`
	ProductID  string `json:"productId"`
	Claim      string `json:"claim"`
	Commitment string `json:"commitment"`
}

type ProofVerification struct {
	Valid     bool      `json:"valid"`
	ProofID   string    `json:"proofId"`
	Reason    string    `json:"reason,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

type Disclosure struct {
	ProductID   string                     `json:"productId"`
	Disclosed   map[string]json.RawMessage `json:"disclosed"`
	Withheld    []string                   `json:"withheld"`
	Requester   string                     `json:"requester,omitempty"`
	Purpose     string                     `json:"purpose,omitempty"`
	DisclosedAt time.Time                  `json:"disclosedAt"`
}

type VerifiableCredential struct {
	Context           []string          `json:"@context"`
	ID                string            `json:"id"`
	Type              []string          `json:"type"`
	Issuer            CredentialIssuer  `json:"issuer"`
	IssuanceDate      time.Time         `json:"issuanceDate"`
	ExpirationDate    *time.Time        `json:"expirationDate,omitempty"`
	CredentialSubject CredentialSubject `json:"credentialSubject"`
	Proof             CredentialProof   `json:"proof"`
}

type CredentialIssuer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CredentialSubject struct {
	ID           string                `json:"id"`
	ProductName  string                `json:"productName"`
	Manufacturer string                `json:"manufacturer,omitempty"`
	Category     string                `json:"category,omitempty"`
	Status       domain.PassportStatus `json:"status"`
	Compliance   string                `json:"compliance"`
	AnchorTx     string                `json:"anchorTx,omitempty"`
}

type CredentialProof struct {
	Type               string    `json:"type"`
	Created            time.Time `json:"created"`
	ProofPurpose       string    `json:"proofPurpose"`
	VerificationMethod string    `json:"verificationMethod"`
	ProofValue         string    `json:"proofValue"`
}

// Anchor records the hash of the passport's current content. Re-anchoring
// replaces the previous anchor.
func (s *PassportService) Anchor(ctx context.Context, id string) (domain.Anchor, error) {
	var anchor domain.Anchor
	updated, err := s.mutate(ctx, id, func(p *domain.Passport) error {
		dataHash, err := contentHash(*p)
		if err != nil {
			return err
		}
		txSeed := sha256.Sum256([]byte(dataHash + s.entropy.Hex(16)))
		anchor = domain.Anchor{
			Network:     simulatedNetwork,
			TxHash:      "0x" + hex.EncodeToString(txSeed[:]),
			BlockNumber: baseBlockNumber + int64(s.entropy.IntN(1_000_000)),
			DataHash:    dataHash,
			AnchoredAt:  s.entropy.Now(),
		}
		p.Anchor = &anchor
		return nil
	})
	if err != nil {
		return domain.Anchor{}, err
	}
	s.events.Record(ctx, domain.EventProductAnchored, "passport", updated.ID, anchor)
	return anchor, nil
}

func (s *PassportService) Custody(ctx context.Context, id string) ([]domain.CustodyEntry, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Custody == nil {
		return []domain.CustodyEntry{}, nil
	}
	return p.Custody, nil
}

// TransferOwnership appends a custody entry and moves the token with the
// passport when one was minted.
func (s *PassportService) TransferOwnership(ctx context.Context, id, newOwner, reason string) (domain.Passport, error) {
	newOwner = strings.TrimSpace(newOwner)
	if newOwner == "" {
		return domain.Passport{}, fmt.Errorf("%w: newOwner is required", domain.ErrValidation)
	}
	var entry domain.CustodyEntry
	updated, err := s.mutate(ctx, id, func(p *domain.Passport) error {
		if p.Owner == newOwner {
			return fmt.Errorf("%w: %s already owns %s", domain.ErrValidation, newOwner, p.ID)
		}
		entry = domain.CustodyEntry{From: p.Owner, To: newOwner, Reason: reason, TransferredAt: s.entropy.Now()}
		p.Custody = append(p.Custody, entry)
		p.Owner = newOwner
		if p.Token != nil {
			p.Token.Owner = newOwner
		}
		return nil
	})
	if err != nil {
		return domain.Passport{}, err
	}
	s.events.Record(ctx, domain.EventOwnershipTransferred, "passport", updated.ID, entry)
	return updated, nil
}

// MintToken mints the passport's single token. Minting twice fails with
// domain.ErrAlreadyExists.
func (s *PassportService) MintToken(ctx context.Context, id string) (domain.Token, error) {
	var token domain.Token
	updated, err := s.mutate(ctx, id, func(p *domain.Passport) error {
		if p.Token != nil {
			return fmt.Errorf("token for %s: %w", p.ID, domain.ErrAlreadyExists)
		}
		if p.Status == domain.PassportRecalled || p.Status == domain.PassportArchived {
			return fmt.Errorf("%w: cannot mint a token for a %s passport", domain.ErrValidation, p.Status)
		}
		tokenID := s.entropy.Hex(32)
		token = domain.Token{
			TokenID:     tokenID,
			Standard:    tokenStandard,
			Contract:    simulatedContract,
			Owner:       p.Owner,
			Status:      TokenActive,
			MetadataURI: "/token/metadata/" + tokenID,
			MintedAt:    s.entropy.Now(),
		}
		p.Token = &token
		return nil
	})
	if err != nil {
		return domain.Token{}, err
	}
	s.events.Record(ctx, domain.EventTokenMinted, "passport", updated.ID, token)
	return token, nil
}

func (s *PassportService) TokenMetadata(ctx context.Context, tokenID string) (TokenMetadata, error) {
	p, err := s.findByToken(ctx, tokenID)
	if err != nil {
		return TokenMetadata{}, err
	}
	return TokenMetadata{
		Name:        p.ProductName,
		Description: fmt.Sprintf("Digital Product Passport %s", p.ID),
		ExternalURL: "/dpp/" + p.ID,
		Attributes: []TokenAttribute{
			{TraitType: "manufacturer", Value: p.Manufacturer},
			{TraitType: "category", Value: p.Category},
			{TraitType: "status", Value: string(p.Status)},
			{TraitType: "lifecycle_events", Value: len(p.LifecycleEvents)},
		},
	}, nil
}

// TokenStatus reports "frozen" for tokens of recalled passports.
func (s *PassportService) TokenStatus(ctx context.Context, tokenID string) (TokenStatusView, error) {
	p, err := s.findByToken(ctx, tokenID)
	if err != nil {
		return TokenStatusView{}, err
	}
	status := p.Token.Status
	if p.Status == domain.PassportRecalled {
		status = TokenFrozen
	}
	return TokenStatusView{
		TokenID:   p.Token.TokenID,
		Status:    status,
		Owner:     p.Token.Owner,
		Standard:  p.Token.Standard,
		Contract:  p.Token.Contract,
		ProductID: p.ID,
		MintedAt:  p.Token.MintedAt,
	}, nil
}

func (s *PassportService) findByToken(ctx context.Context, tokenID string) (domain.Passport, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return domain.Passport{}, fmt.Errorf("%w: tokenId is required", domain.ErrValidation)
	}
	p, err := s.repo.FindByTokenID(ctx, tokenID)
	if err != nil {
		return domain.Passport{}, err
	}
	if p.Token == nil {
		return domain.Passport{}, fmt.Errorf("token %s: %w", tokenID, domain.ErrNotFound)
	}
	return p, nil
}

// GenerateProof produces a commitment that the claim holds for the passport.
// Claims that do not hold are rejected.
func (s *PassportService) GenerateProof(ctx context.Context, id, claim string) (Proof, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return Proof{}, err
	}
	holds, err := claimHolds(p, claim)
	if err != nil {
		return Proof{}, err
	}
	if !holds {
		return Proof{}, fmt.Errorf("%w: claim %q does not hold for %s", domain.ErrValidation, claim, p.ID)
	}
	proofID := uuid.NewString()
	return Proof{
		ProofID:       proofID,
		ProductID:     p.ID,
		Claim:         claim,
		Scheme:        proofScheme,
		Commitment:    s.commitment(proofID, p.ID, claim),
		PublicSignals: []string{p.ID, claim},
		CreatedAt:     s.entropy.Now(),
	}, nil
}

// VerifyProof checks the commitment and that the claim still holds. A bad
// proof is a valid response with Valid=false.
func (s *PassportService) VerifyProof(ctx context.Context, in ProofInput) (ProofVerification, error) {
	result := ProofVerification{ProofID: in.ProofID, CheckedAt: s.entropy.Now()}
	expected := s.commitment(in.ProofID, in.ProductID, in.Claim)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(in.Commitment))) {
		result.Reason = "commitment does not match"
		return result, nil
	}
	p, err := s.Get(ctx, in.ProductID)
	if errors.Is(err, domain.ErrNotFound) {
		result.Reason = "passport no longer exists"
		return result, nil
	}
	if err != nil {
		return ProofVerification{}, err
	}
	holds, err := claimHolds(p, in.Claim)
	if err != nil {
		return ProofVerification{}, err
	}
	if !holds {
		result.Reason = "claim no longer holds"
		return result, nil
	}
	result.Valid = true
	return result, nil
}

func (s *PassportService) commitment(proofID, productID, claim string) string {
	mac := hmac.New(sha256.New, s.proofKey)
	mac.Write([]byte(proofID + "\n" + productID + "\n" + claim))
	return hex.EncodeToString(mac.Sum(nil))
}

// Disclose reveals the requested top-level attributes. Unknown fields are
// listed as withheld.
func (s *PassportService) Disclose(ctx context.Context, id string, fields []string, requester, purpose string) (Disclosure, error) {
	if len(fields) == 0 {
		return Disclosure{}, fmt.Errorf("%w: fields must not be empty", domain.ErrValidation)
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return Disclosure{}, err
	}
	attributes := map[string]json.RawMessage{}
	if len(p.Attributes) > 0 {
		if err := json.Unmarshal(p.Attributes, &attributes); err != nil {
			return Disclosure{}, fmt.Errorf("decode attributes: %w", err)
		}
	}
	out := Disclosure{
		ProductID:   p.ID,
		Disclosed:   map[string]json.RawMessage{},
		Withheld:    []string{},
		Requester:   requester,
		Purpose:     purpose,
		DisclosedAt: s.entropy.Now(),
	}
	for _, field := range fields {
		if v, ok := attributes[field]; ok {
			out.Disclosed[field] = v
		} else {
			out.Withheld = append(out.Withheld, field)
		}
	}
	sort.Strings(out.Withheld)
	return out, nil
}

// Verify issues a verifiable credential over the passport's current state.
func (s *PassportService) Verify(ctx context.Context, id string) (VerifiableCredential, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return VerifiableCredential{}, err
	}
	if p.Status == domain.PassportRecalled {
		return VerifiableCredential{}, fmt.Errorf("%w: passport %s is recalled", domain.ErrValidation, p.ID)
	}
	now := s.entropy.Now()
	subject := CredentialSubject{
		ID:           "urn:dpp:" + p.ID,
		ProductName:  p.ProductName,
		Manufacturer: p.Manufacturer,
		Category:     p.Category,
		Status:       p.Status,
		Compliance:   summarizeCompliance(p).Overall,
	}
	if p.Anchor != nil {
		subject.AnchorTx = p.Anchor.TxHash
	}
	encoded, err := json.Marshal(subject)
	if err != nil {
		return VerifiableCredential{}, fmt.Errorf("encode credential subject: %w", err)
	}
	mac := hmac.New(sha256.New, s.proofKey)
	mac.Write(encoded)

	return VerifiableCredential{
		Context:           []string{credentialContext, passportContextURI},
		ID:                "urn:uuid:" + uuid.NewString(),
		Type:              []string{"VerifiableCredential", "DigitalProductPassportCredential"},
		Issuer:            CredentialIssuer{ID: s.issuer.ID, Name: s.issuer.Name},
		IssuanceDate:      now,
		ExpirationDate:    p.ValidUntil,
		CredentialSubject: subject,
		Proof: CredentialProof{
			Type:               "HmacSha256Signature2024",
			Created:            now,
			ProofPurpose:       "assertionMethod",
			VerificationMethod: s.issuer.ID + "#key-1",
			ProofValue:         hex.EncodeToString(mac.Sum(nil)),
		},
	}, nil
}

func claimHolds(p domain.Passport, claim string) (bool, error) {
	switch claim {
	case ClaimCompliant:
		return summarizeCompliance(p).Overall == domain.ComplianceCompliant, nil
	case ClaimActive:
		return p.Status == domain.PassportActive, nil
	case ClaimAnchored:
		return p.Anchor != nil, nil
	case ClaimTokenized:
		return p.Token != nil, nil
	default:
		return false, fmt.Errorf("%w: unsupported claim %q", domain.ErrValidation, claim)
	}
}

// contentHash covers the identifying fields and attributes, not the
// bookkeeping ones.
func contentHash(p domain.Passport) (string, error) {
	encoded, err := json.Marshal(struct {
		ID           string          `json:"id"`
		ProductName  string          `json:"productName"`
		Manufacturer string          `json:"manufacturer"`
		Category     string          `json:"category"`
		BatchNumber  string          `json:"batchNumber"`
		Attributes   json.RawMessage `json:"attributes,omitempty"`
		Components   []string        `json:"components"`
	}{p.ID, p.ProductName, p.Manufacturer, p.Category, p.BatchNumber, p.Attributes, p.Components})
	if err != nil {
		return "", fmt.Errorf("encode passport content: %w", err)
	}
	digest := sha256.Sum256(encoded)
	return hex.EncodeToString(digest[:]), nil
}
