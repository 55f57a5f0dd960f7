package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"civicdesk/internal/domain"
)

// SubmitIdea files a community idea on the public board.
func (e Engine) SubmitIdea(ctx context.Context, title, description, author string) (domain.Idea, error) {
	if strings.TrimSpace(title) == "" {
		return domain.Idea{}, ValidationError{Field: "title", Reason: "required"}
	}
	idea := domain.Idea{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		AuthorName:  author,
		Status:      "open",
		CreatedAt:   e.nowRFC3339(),
	}
	if err := e.Repo.InsertIdea(ctx, idea); err != nil {
		return idea, err
	}
	return idea, nil
}

// VoteIdea records a vote. A voter counts once per idea; repeats are
// silently absorbed and reported as not-new.
func (e Engine) VoteIdea(ctx context.Context, ideaID, voter string) (domain.Idea, bool, error) {
	if strings.TrimSpace(voter) == "" {
		return domain.Idea{}, false, ValidationError{Field: "voter", Reason: "required"}
	}
	if _, err := e.Repo.GetIdea(ctx, ideaID); err != nil {
		return domain.Idea{}, false, err
	}
	added, err := e.Repo.AddIdeaVote(ctx, ideaID, voter, e.nowRFC3339())
	if err != nil {
		return domain.Idea{}, false, err
	}
	idea, err := e.Repo.GetIdea(ctx, ideaID)
	return idea, added, err
}

// SetIdeaStatus moves an idea through the triage states. Admin only.
func (e Engine) SetIdeaStatus(ctx context.Context, ideaID, status string, p domain.Principal) (domain.Idea, error) {
	if p.Role != domain.RoleWebAdmin {
		return domain.Idea{}, AuthorizationError{Role: p.Role, Operation: "triage idea"}
	}
	switch status {
	case "open", "under_review", "accepted", "declined":
	default:
		return domain.Idea{}, ValidationError{Field: "status", Reason: "must be one of open, under_review, accepted, declined"}
	}
	if _, err := e.Repo.GetIdea(ctx, ideaID); err != nil {
		return domain.Idea{}, err
	}
	if err := e.Repo.UpdateIdeaStatus(ctx, ideaID, status); err != nil {
		return domain.Idea{}, err
	}
	return e.Repo.GetIdea(ctx, ideaID)
}

// CreateProgram opens a youth program for registration. Admin only.
func (e Engine) CreateProgram(ctx context.Context, name, description string, capacity int, startsOn string, p domain.Principal) (domain.Program, error) {
	if p.Role != domain.RoleWebAdmin {
		return domain.Program{}, AuthorizationError{Role: p.Role, Operation: "create program"}
	}
	if strings.TrimSpace(name) == "" {
		return domain.Program{}, ValidationError{Field: "name", Reason: "required"}
	}
	if capacity <= 0 {
		return domain.Program{}, ValidationError{Field: "capacity", Reason: "must be positive"}
	}
	prog := domain.Program{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Capacity:    capacity,
		StartsOn:    startsOn,
		CreatedAt:   e.nowRFC3339(),
	}
	if err := e.Repo.InsertProgram(ctx, prog); err != nil {
		return prog, err
	}
	return prog, nil
}

// RegisterParticipant signs someone up for a program. The capacity check and
// the insert share a transaction so a full program cannot oversell under
// concurrent registrations.
func (e Engine) RegisterParticipant(ctx context.Context, programID, participant, contact, guardian string) (domain.Registration, error) {
	if strings.TrimSpace(participant) == "" {
		return domain.Registration{}, ValidationError{Field: "participant", Reason: "required"}
	}
	if strings.TrimSpace(contact) == "" {
		return domain.Registration{}, ValidationError{Field: "contact", Reason: "required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Registration{}, err
	}
	defer tx.Rollback()
	prog, err := e.Repo.GetProgramTx(ctx, tx, programID)
	if err != nil {
		return domain.Registration{}, err
	}
	if prog.Registered >= prog.Capacity {
		return domain.Registration{}, PreconditionError{Reason: "program " + prog.Name + " is full"}
	}
	reg := domain.Registration{
		ID:           uuid.New().String(),
		ProgramID:    programID,
		Participant:  participant,
		Contact:      contact,
		GuardianName: guardian,
		CreatedAt:    e.nowRFC3339(),
	}
	if err := e.Repo.InsertRegistration(ctx, tx, reg); err != nil {
		return reg, err
	}
	return reg, tx.Commit()
}
