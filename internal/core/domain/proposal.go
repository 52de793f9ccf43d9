package domain

import (
	"fmt"
	"strings"
	"time"
)

type ProposalStatus string

const (
	ProposalVotingActive ProposalStatus = "Voting Active"
	ProposalExecuted     ProposalStatus = "Succeeded & Executed"
	ProposalDefeated     ProposalStatus = "Defeated"
	ProposalQueued       ProposalStatus = "Queued"
)

type Proposal struct {
	ID           string
	Title        string
	Description  string
	Status       ProposalStatus
	VotesFor     int64
	VotesAgainst int64
	CreatedAt    time.Time
	Version      int64
}

func (p Proposal) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: proposal title is required", ErrValidation)
	}
	switch p.Status {
	case ProposalVotingActive, ProposalExecuted, ProposalDefeated, ProposalQueued:
	default:
		return fmt.Errorf("%w: unknown proposal status %q", ErrValidation, p.Status)
	}
	return nil
}

// OpenForVoting reports whether votes may change the tallies.
func (p Proposal) OpenForVoting() bool {
	return p.Status == ProposalVotingActive
}
