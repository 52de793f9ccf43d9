package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
	"github.com/atvirokodosprendimai/dppportal/internal/core/ports"
)

const (
	defaultGraphDepth = 2
	maxGraphDepth     = 5
	maxImportBatch    = 100
	historyLimit      = 200
)

// PassportInput carries the client-writable passport fields.
type PassportInput struct {
	ID           string          `json:"id"`
	ProductName  string          `json:"productName"`
	Manufacturer string          `json:"manufacturer"`
	Category     string          `json:"category"`
	Status       string          `json:"status"`
	BatchNumber  string          `json:"batchNumber"`
	Owner        string          `json:"owner"`
	Attributes   json.RawMessage `json:"attributes"`
	Components   []string        `json:"components"`
	ValidUntil   *time.Time      `json:"validUntil"`
}

type LifecycleEventInput struct {
	EventType string          `json:"eventType"`
	Location  string          `json:"location"`
	Actor     string          `json:"actor"`
	Details   json.RawMessage `json:"details"`
}

type QRValidation struct {
	Valid       bool                  `json:"valid"`
	ProductID   string                `json:"productId,omitempty"`
	ProductName string                `json:"productName,omitempty"`
	Status      domain.PassportStatus `json:"status,omitempty"`
	Reason      string                `json:"reason,omitempty"`
}

type ComplianceSummary struct {
	ProductID    string                   `json:"productId"`
	Overall      string                   `json:"overall"`
	Compliant    int                      `json:"compliant"`
	Pending      int                      `json:"pending"`
	NonCompliant int                      `json:"nonCompliant"`
	Checks       []domain.ComplianceCheck `json:"checks"`
}

type ImportFailure struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

type ImportResult struct {
	Imported []string        `json:"imported"`
	Failed   []ImportFailure `json:"failed"`
}

// GraphNode is one passport in the component graph. Missing marks a
// component id with no passport behind it.
type GraphNode struct {
	ID          string      `json:"id"`
	ProductName string      `json:"productName,omitempty"`
	Missing     bool        `json:"missing,omitempty"`
	Cycle       bool        `json:"cycle,omitempty"`
	Components  []GraphNode `json:"components,omitempty"`
}

type PassportStatusView struct {
	ProductID  string                `json:"productId"`
	Status     domain.PassportStatus `json:"status"`
	Anchored   bool                  `json:"anchored"`
	Tokenized  bool                  `json:"tokenized"`
	Compliance string                `json:"compliance"`
	ValidUntil *time.Time            `json:"validUntil,omitempty"`
	Expired    bool                  `json:"expired"`
	UpdatedAt  time.Time             `json:"updatedAt"`
}

// PassportService backs the mock DPP API.
type PassportService struct {
	repo     ports.PassportRepository
	outbox   ports.OutboxRepository
	events   *EventRecorder
	entropy  *Entropy
	proofKey []byte
	issuer   Issuer
}

// Issuer identifies the party signing credentials and proofs.
type Issuer struct {
	ID   string
	Name string
}

func NewPassportService(repo ports.PassportRepository, outbox ports.OutboxRepository, events *EventRecorder, entropy *Entropy, issuer Issuer) *PassportService {
	if issuer.ID == "" {
		issuer = Issuer{ID: "did:web:sandbox.dpp-platform.example", Name: "DPP Platform Sandbox"}
	}
	return &PassportService{
		repo:     repo,
		outbox:   outbox,
		events:   events,
		entropy:  entropy,
		proofKey: []byte(entropy.Hex(64)),
		issuer:   issuer,
	}
}

func (s *PassportService) List(ctx context.Context, filter domain.PassportFilter) ([]domain.Passport, error) {
	if filter.Status == domain.SentinelAll {
		filter.Status = ""
	}
	if filter.Category == domain.SentinelAll {
		filter.Category = ""
	}
	if filter.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", domain.ErrValidation)
	}
	return s.repo.List(ctx, filter)
}

func (s *PassportService) Get(ctx context.Context, id string) (domain.Passport, error) {
	if err := domain.ValidatePassportID(id); err != nil {
		return domain.Passport{}, err
	}
	return s.repo.Get(ctx, id)
}

func (s *PassportService) Create(ctx context.Context, in PassportInput) (domain.Passport, error) {
	now := s.entropy.Now()
	p := domain.Passport{
		ID:        strings.TrimSpace(in.ID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.ID == "" {
		p.ID = strings.ToUpper(s.entropy.NewID("DPP"))
	}
	applyInput(&p, in)
	if p.Status == "" {
		p.Status = domain.PassportDraft
	}
	if p.Owner == "" {
		p.Owner = p.Manufacturer
	}
	p.Compliance = defaultCompliance(now)
	if p.Owner != "" {
		p.Custody = []domain.CustodyEntry{{To: p.Owner, Reason: "initial registration", TransferredAt: now}}
	}
	if err := p.Validate(); err != nil {
		return domain.Passport{}, err
	}

	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return domain.Passport{}, err
	}
	s.events.Record(ctx, domain.EventProductCreated, "passport", created.ID, map[string]any{"productName": created.ProductName})
	return created, nil
}

// Update replaces the writable fields. Lifecycle, custody, anchor and token
// data are kept.
func (s *PassportService) Update(ctx context.Context, id string, in PassportInput) (domain.Passport, error) {
	if in.ID != "" && in.ID != id {
		return domain.Passport{}, fmt.Errorf("%w: body id %q does not match path id %q", domain.ErrValidation, in.ID, id)
	}
	updated, err := s.mutate(ctx, id, func(p *domain.Passport) error {
		applyInput(p, in)
		return nil
	})
	if err != nil {
		return domain.Passport{}, err
	}
	s.events.Record(ctx, domain.EventProductUpdated, "passport", updated.ID, map[string]any{"version": updated.Version})
	return updated, nil
}

// Extend merges attributes into the passport's attribute object, top-level
// keys overwriting, and optionally moves ValidUntil.
func (s *PassportService) Extend(ctx context.Context, id string, attributes json.RawMessage, validUntil *time.Time) (domain.Passport, error) {
	if len(attributes) == 0 && validUntil == nil {
		return domain.Passport{}, fmt.Errorf("%w: nothing to extend", domain.ErrValidation)
	}
	updated, err := s.mutate(ctx, id, func(p *domain.Passport) error {
		if len(attributes) > 0 {
			merged, err := mergeAttributes(p.Attributes, attributes)
			if err != nil {
				return err
			}
			p.Attributes = merged
		}
		if validUntil != nil {
			v := validUntil.UTC()
			p.ValidUntil = &v
		}
		return nil
	})
	if err != nil {
		return domain.Passport{}, err
	}
	s.events.Record(ctx, domain.EventProductUpdated, "passport", updated.ID, map[string]any{"version": updated.Version, "extended": true})
	return updated, nil
}

func (s *PassportService) Delete(ctx context.Context, id string) (bool, error) {
	if err := domain.ValidatePassportID(id); err != nil {
		return false, err
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		s.events.Record(ctx, domain.EventProductDeleted, "passport", id, map[string]any{"productId": id})
	}
	return deleted, nil
}

// ValidateQR accepts a bare passport id, a "DPP:<id>" payload or a URL whose
// last path segment is the id.
func (s *PassportService) ValidateQR(ctx context.Context, qrData string) (QRValidation, error) {
	id := passportIDFromQR(qrData)
	if domain.ValidatePassportID(id) != nil {
		return QRValidation{Valid: false, Reason: "qr payload does not contain a passport id"}, nil
	}
	p, err := s.repo.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return QRValidation{Valid: false, ProductID: id, Reason: "passport not found"}, nil
	}
	if err != nil {
		return QRValidation{}, err
	}
	if p.Status == domain.PassportRecalled {
		return QRValidation{Valid: false, ProductID: p.ID, ProductName: p.ProductName, Status: p.Status, Reason: "passport recalled"}, nil
	}
	return QRValidation{Valid: true, ProductID: p.ID, ProductName: p.ProductName, Status: p.Status}, nil
}

func (s *PassportService) AddLifecycleEvent(ctx context.Context, id string, in LifecycleEventInput) (domain.LifecycleEvent, error) {
	if strings.TrimSpace(in.EventType) == "" {
		return domain.LifecycleEvent{}, fmt.Errorf("%w: eventType is required", domain.ErrValidation)
	}
	event := domain.LifecycleEvent{
		ID:         s.entropy.NewID("evt"),
		EventType:  in.EventType,
		Location:   in.Location,
		Actor:      in.Actor,
		Details:    in.Details,
		OccurredAt: s.entropy.Now(),
	}
	updated, err := s.mutate(ctx, id, func(p *domain.Passport) error {
		p.LifecycleEvents = append(p.LifecycleEvents, event)
		if in.EventType == "recycled" || in.EventType == "disposed" {
			p.Status = domain.PassportArchived
		}
		return nil
	})
	if err != nil {
		return domain.LifecycleEvent{}, err
	}
	s.events.Record(ctx, domain.EventLifecycleEventAdded, "passport", updated.ID, event)
	return event, nil
}

func (s *PassportService) ComplianceSummary(ctx context.Context, id string) (ComplianceSummary, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return ComplianceSummary{}, err
	}
	return summarizeCompliance(p), nil
}

// History returns the domain events recorded for the passport, oldest first.
func (s *PassportService) History(ctx context.Context, id string) ([]domain.EventEnvelope, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.outbox.History(ctx, "passport", id, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load passport history: %w", err)
	}
	return events, nil
}

// Import creates each passport independently; failures do not stop the batch.
func (s *PassportService) Import(ctx context.Context, inputs []PassportInput) (ImportResult, error) {
	if len(inputs) == 0 {
		return ImportResult{}, fmt.Errorf("%w: products must not be empty", domain.ErrValidation)
	}
	if len(inputs) > maxImportBatch {
		return ImportResult{}, fmt.Errorf("%w: at most %d products per import", domain.ErrValidation, maxImportBatch)
	}
	result := ImportResult{Imported: []string{}, Failed: []ImportFailure{}}
	for i, in := range inputs {
		created, err := s.Create(ctx, in)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			result.Failed = append(result.Failed, ImportFailure{Index: i, ID: in.ID, Error: err.Error()})
			continue
		}
		result.Imported = append(result.Imported, created.ID)
	}
	return result, nil
}

// Graph walks component references up to depth levels. Zero means the default
// depth.
func (s *PassportService) Graph(ctx context.Context, id string, depth int) (GraphNode, error) {
	if depth == 0 {
		depth = defaultGraphDepth
	}
	if depth < 0 || depth > maxGraphDepth {
		return GraphNode{}, fmt.Errorf("%w: depth must be between 1 and %d", domain.ErrValidation, maxGraphDepth)
	}
	root, err := s.Get(ctx, id)
	if err != nil {
		return GraphNode{}, err
	}
	return s.graphNode(ctx, root, depth, map[string]bool{root.ID: true})
}

func (s *PassportService) graphNode(ctx context.Context, p domain.Passport, depth int, path map[string]bool) (GraphNode, error) {
	node := GraphNode{ID: p.ID, ProductName: p.ProductName}
	if depth == 0 {
		return node, nil
	}
	for _, componentID := range p.Components {
		if path[componentID] {
			node.Components = append(node.Components, GraphNode{ID: componentID, Cycle: true})
			continue
		}
		child, err := s.repo.Get(ctx, componentID)
		if errors.Is(err, domain.ErrNotFound) {
			node.Components = append(node.Components, GraphNode{ID: componentID, Missing: true})
			continue
		}
		if err != nil {
			return GraphNode{}, err
		}
		path[componentID] = true
		childNode, err := s.graphNode(ctx, child, depth-1, path)
		delete(path, componentID)
		if err != nil {
			return GraphNode{}, err
		}
		node.Components = append(node.Components, childNode)
	}
	return node, nil
}

func (s *PassportService) Status(ctx context.Context, id string) (PassportStatusView, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return PassportStatusView{}, err
	}
	return PassportStatusView{
		ProductID:  p.ID,
		Status:     p.Status,
		Anchored:   p.Anchor != nil,
		Tokenized:  p.Token != nil,
		Compliance: summarizeCompliance(p).Overall,
		ValidUntil: p.ValidUntil,
		Expired:    p.ValidUntil != nil && p.ValidUntil.Before(s.entropy.Now()),
		UpdatedAt:  p.UpdatedAt,
	}, nil
}

// mutate is the read-modify-write loop shared by every passport change.
func (s *PassportService) mutate(ctx context.Context, id string, fn func(*domain.Passport) error) (domain.Passport, error) {
	if err := domain.ValidatePassportID(id); err != nil {
		return domain.Passport{}, err
	}
	return retryOnConflict(ctx, func() (domain.Passport, error) {
		p, err := s.repo.Get(ctx, id)
		if err != nil {
			return domain.Passport{}, err
		}
		if err := fn(&p); err != nil {
			return domain.Passport{}, err
		}
		p.UpdatedAt = s.entropy.Now()
		if err := p.Validate(); err != nil {
			return domain.Passport{}, err
		}
		return s.repo.Update(ctx, p)
	})
}

func applyInput(p *domain.Passport, in PassportInput) {
	p.ProductName = strings.TrimSpace(in.ProductName)
	p.Manufacturer = strings.TrimSpace(in.Manufacturer)
	p.Category = strings.TrimSpace(in.Category)
	if in.Status != "" {
		p.Status = domain.PassportStatus(in.Status)
	}
	p.BatchNumber = in.BatchNumber
	if in.Owner != "" {
		p.Owner = in.Owner
	}
	p.Attributes = in.Attributes
	p.Components = in.Components
	if in.ValidUntil != nil {
		v := in.ValidUntil.UTC()
		p.ValidUntil = &v
	}
}

func defaultCompliance(now time.Time) []domain.ComplianceCheck {
	return []domain.ComplianceCheck{
		{Regulation: "EU ESPR 2024/1781", Status: domain.CompliancePending, CheckedAt: now},
		{Regulation: "REACH", Status: domain.CompliancePending, CheckedAt: now},
		{Regulation: "RoHS", Status: domain.CompliancePending, CheckedAt: now},
	}
}

func summarizeCompliance(p domain.Passport) ComplianceSummary {
	summary := ComplianceSummary{ProductID: p.ID, Checks: p.Compliance}
	if summary.Checks == nil {
		summary.Checks = []domain.ComplianceCheck{}
	}
	for _, check := range p.Compliance {
		switch check.Status {
		case domain.ComplianceCompliant:
			summary.Compliant++
		case domain.ComplianceNonCompliant:
			summary.NonCompliant++
		default:
			summary.Pending++
		}
	}
	switch {
	case summary.NonCompliant > 0:
		summary.Overall = domain.ComplianceNonCompliant
	case summary.Pending > 0 || len(p.Compliance) == 0:
		summary.Overall = domain.CompliancePending
	default:
		summary.Overall = domain.ComplianceCompliant
	}
	return summary
}

func mergeAttributes(current, patch json.RawMessage) (json.RawMessage, error) {
	base := map[string]json.RawMessage{}
	if len(current) > 0 {
		if err := json.Unmarshal(current, &base); err != nil {
			return nil, fmt.Errorf("%w: stored attributes are not an object", domain.ErrValidation)
		}
	}
	var changes map[string]json.RawMessage
	if err := json.Unmarshal(patch, &changes); err != nil {
		return nil, fmt.Errorf("%w: attributes must be a json object", domain.ErrValidation)
	}
	for k, v := range changes {
		base[k] = v
	}
	return json.Marshal(base)
}

func passportIDFromQR(raw string) string {
	raw = strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(raw, "DPP:"); ok {
		return rest
	}
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
		path := strings.TrimRight(u.Path, "/")
		if i := strings.LastIndexByte(path, '/'); i >= 0 {
			return path[i+1:]
		}
		return ""
	}
	return raw
}
