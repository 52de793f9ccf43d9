package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
	"github.com/atvirokodosprendimai/dppportal/internal/core/ports"
)

// maxVoteWeight bounds the pseudo-random weight a single vote adds. Real
// token-weighted voting is out of scope.
const maxVoteWeight = 1000

type VoteResult struct {
	Proposal domain.Proposal
	Applied  bool
	Weight   int64
}

type ProposalService struct {
	repo    ports.ProposalRepository
	events  *EventRecorder
	entropy *Entropy
}

func NewProposalService(repo ports.ProposalRepository, events *EventRecorder, entropy *Entropy) *ProposalService {
	return &ProposalService{repo: repo, events: events, entropy: entropy}
}

func (s *ProposalService) Create(ctx context.Context, title, description string) (domain.Proposal, error) {
	p := domain.Proposal{
		ID:          s.entropy.NewID("prop"),
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Status:      domain.ProposalVotingActive,
		CreatedAt:   s.entropy.Now(),
	}
	if err := p.Validate(); err != nil {
		return domain.Proposal{}, err
	}
	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return domain.Proposal{}, err
	}
	s.events.Record(ctx, domain.EventProposalCreated, "proposal", created.ID, map[string]any{"title": created.Title})
	return created, nil
}

func (s *ProposalService) List(ctx context.Context, status string) ([]domain.Proposal, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if status == "" || status == domain.SentinelAll {
		return all, nil
	}
	out := make([]domain.Proposal, 0, len(all))
	for _, p := range all {
		if string(p.Status) == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *ProposalService) Get(ctx context.Context, id string) (domain.Proposal, error) {
	return s.repo.Get(ctx, id)
}

func (s *ProposalService) Delete(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, fmt.Errorf("%w: id is required", domain.ErrValidation)
	}
	return s.repo.Delete(ctx, id)
}

// Vote adds a pseudo-random weight to one side of the tally. Proposals that
// are not "Voting Active" are returned unchanged with Applied=false.
func (s *ProposalService) Vote(ctx context.Context, id string, support bool) (VoteResult, error) {
	var weight int64
	updated, err := retryOnConflict(ctx, func() (domain.Proposal, error) {
		p, err := s.repo.Get(ctx, id)
		if err != nil {
			return domain.Proposal{}, err
		}
		if !p.OpenForVoting() {
			weight = 0
			return p, nil
		}
		weight = int64(s.entropy.IntN(maxVoteWeight) + 1)
		if support {
			p.VotesFor += weight
		} else {
			p.VotesAgainst += weight
		}
		return s.repo.Update(ctx, p)
	})
	if err != nil {
		return VoteResult{}, err
	}
	if weight == 0 {
		return VoteResult{Proposal: updated}, nil
	}
	s.events.Record(ctx, domain.EventVoteCast, "proposal", updated.ID, map[string]any{"support": support, "weight": weight})
	return VoteResult{Proposal: updated, Applied: true, Weight: weight}, nil
}

// payloadJSON is shared by services that emit events.
func payloadJSON(v any) json.RawMessage {
	encoded, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return encoded
}
