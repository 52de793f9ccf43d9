package memory

import (
	"context"
	"encoding/json"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
)

type PassportRepository struct {
	passports versionedList[domain.Passport]
}

func NewPassportRepository() *PassportRepository {
	return &PassportRepository{passports: versionedList[domain.Passport]{
		kind:       "passport",
		id:         func(p domain.Passport) string { return p.ID },
		version:    func(p domain.Passport) int64 { return p.Version },
		setVersion: func(p *domain.Passport, v int64) { p.Version = v },
		clone:      clonePassport,
	}}
}

func (r *PassportRepository) Create(_ context.Context, p domain.Passport) (domain.Passport, error) {
	return r.passports.create(p)
}

func (r *PassportRepository) Get(_ context.Context, id string) (domain.Passport, error) {
	return r.passports.get(id)
}

func (r *PassportRepository) FindByTokenID(_ context.Context, tokenID string) (domain.Passport, error) {
	return r.passports.find(func(p domain.Passport) bool {
		return p.Token != nil && p.Token.TokenID == tokenID
	})
}

func (r *PassportRepository) Update(_ context.Context, p domain.Passport) (domain.Passport, error) {
	return r.passports.update(p)
}

func (r *PassportRepository) Delete(_ context.Context, id string) (bool, error) {
	return r.passports.delete(id), nil
}

func (r *PassportRepository) List(_ context.Context, filter domain.PassportFilter) ([]domain.Passport, error) {
	var out []domain.Passport
	for _, p := range r.passports.list() {
		if filter.Status != "" && string(p.Status) != filter.Status {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		out = append(out, p)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	if out == nil {
		out = []domain.Passport{}
	}
	return out, nil
}

// clonePassport deep-copies through JSON; every field round-trips.
func clonePassport(p domain.Passport) domain.Passport {
	encoded, err := json.Marshal(p)
	if err != nil {
		return p
	}
	var out domain.Passport
	if err := json.Unmarshal(encoded, &out); err != nil {
		return p
	}
	return out
}
