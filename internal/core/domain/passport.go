package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var passportIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

type PassportStatus string

const (
	PassportDraft    PassportStatus = "draft"
	PassportActive   PassportStatus = "active"
	PassportRecalled PassportStatus = "recalled"
	PassportArchived PassportStatus = "archived"
)

type LifecycleEvent struct {
	ID         string          `json:"id"`
	EventType  string          `json:"eventType"`
	Location   string          `json:"location,omitempty"`
	Actor      string          `json:"actor,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

type ComplianceCheck struct {
	Regulation string    `json:"regulation"`
	Status     string    `json:"status"`
	CheckedAt  time.Time `json:"checkedAt"`
	Notes      string    `json:"notes,omitempty"`
}

// Compliance check statuses.
const (
	ComplianceCompliant    = "compliant"
	CompliancePending      = "pending"
	ComplianceNonCompliant = "non-compliant"
)

type Anchor struct {
	Network     string    `json:"network"`
	TxHash      string    `json:"txHash"`
	BlockNumber int64     `json:"blockNumber"`
	DataHash    string    `json:"dataHash"`
	AnchoredAt  time.Time `json:"anchoredAt"`
}

type CustodyEntry struct {
	From          string    `json:"from,omitempty"`
	To            string    `json:"to"`
	Reason        string    `json:"reason,omitempty"`
	TransferredAt time.Time `json:"transferredAt"`
}

type Token struct {
	TokenID     string    `json:"tokenId"`
	Standard    string    `json:"standard"`
	Contract    string    `json:"contract"`
	Owner       string    `json:"owner"`
	Status      string    `json:"status"`
	MetadataURI string    `json:"metadataUri"`
	MintedAt    time.Time `json:"mintedAt"`
}

// Passport is a Digital Product Passport held by the mock API.
type Passport struct {
	ID              string            `json:"id"`
	ProductName     string            `json:"productName"`
	Manufacturer    string            `json:"manufacturer"`
	Category        string            `json:"category"`
	Status          PassportStatus    `json:"status"`
	BatchNumber     string            `json:"batchNumber,omitempty"`
	Owner           string            `json:"owner,omitempty"`
	Attributes      json.RawMessage   `json:"attributes,omitempty"`
	Components      []string          `json:"components,omitempty"`
	LifecycleEvents []LifecycleEvent  `json:"lifecycleEvents,omitempty"`
	Compliance      []ComplianceCheck `json:"compliance,omitempty"`
	Anchor          *Anchor           `json:"anchor,omitempty"`
	Custody         []CustodyEntry    `json:"custody,omitempty"`
	Token           *Token            `json:"token,omitempty"`
	ValidUntil      *time.Time        `json:"validUntil,omitempty"`
	Version         int64             `json:"version"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

func ValidatePassportID(id string) error {
	if !passportIDPattern.MatchString(id) {
		return fmt.Errorf("%w: invalid passport id %q", ErrValidation, id)
	}
	return nil
}

func (p Passport) Validate() error {
	if err := ValidatePassportID(p.ID); err != nil {
		return err
	}
	if strings.TrimSpace(p.ProductName) == "" {
		return fmt.Errorf("%w: productName is required", ErrValidation)
	}
	switch p.Status {
	case PassportDraft, PassportActive, PassportRecalled, PassportArchived:
	default:
		return fmt.Errorf("%w: unknown passport status %q", ErrValidation, p.Status)
	}
	if len(p.Attributes) > 0 && !json.Valid(p.Attributes) {
		return fmt.Errorf("%w: attributes must be valid json", ErrValidation)
	}
	return nil
}

type PassportFilter struct {
	Status   string
	Category string
	Limit    int
}
