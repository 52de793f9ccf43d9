package ports

import (
	"context"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
)

type PassportRepository interface {
	Create(ctx context.Context, p domain.Passport) (domain.Passport, error)
	Get(ctx context.Context, id string) (domain.Passport, error)
	FindByTokenID(ctx context.Context, tokenID string) (domain.Passport, error)
	Update(ctx context.Context, p domain.Passport) (domain.Passport, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, filter domain.PassportFilter) ([]domain.Passport, error)
}
