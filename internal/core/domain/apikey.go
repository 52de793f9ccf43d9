package domain

import (
	"fmt"
	"time"
)

type KeyType string

const (
	KeyTypeSandbox    KeyType = "Sandbox"
	KeyTypeProduction KeyType = "Production"
)

type KeyStatus string

const (
	KeyStatusActive          KeyStatus = "Active"
	KeyStatusPendingApproval KeyStatus = "Pending Approval"
	KeyStatusRevoked         KeyStatus = "Revoked"
)

type APIKey struct {
	ID        string
	Key       string
	TokenHash string
	Type      KeyType
	Status    KeyStatus
	CreatedAt time.Time
	LastUsed  *time.Time
	Version   int64
}

func ParseKeyType(raw string) (KeyType, error) {
	switch KeyType(raw) {
	case KeyTypeSandbox, KeyTypeProduction:
		return KeyType(raw), nil
	}
	switch raw {
	case "sandbox":
		return KeyTypeSandbox, nil
	case "production":
		return KeyTypeProduction, nil
	}
	return "", fmt.Errorf("%w: unknown key type %q", ErrValidation, raw)
}

// Usable reports whether the key may authenticate requests for env.
func (k APIKey) Usable(env Environment) bool {
	return k.Status == KeyStatusActive && k.Type == env.KeyType()
}
