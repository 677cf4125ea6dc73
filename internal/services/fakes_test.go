package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/senyabanana/marketplace-service/internal/models"

	"github.com/google/uuid"
)

// Фейковые репозитории повторяют семантику SQL-реализаций: защиту
// оптимистической версией, частичные уникальные индексы и атомарную
// привязку предложения к тендеру - под одним мьютексом.

type fakeTenderRepo struct {
	mu      sync.Mutex
	tenders map[string]*models.Tender
}

func newFakeTenderRepo() *fakeTenderRepo {
	return &fakeTenderRepo{tenders: make(map[string]*models.Tender)}
}

func copyTender(t *models.Tender) *models.Tender {
	cp := *t
	cp.Skills = append([]string(nil), t.Skills...)
	cp.InvitedParties = append([]string(nil), t.InvitedParties...)
	cp.ProposalIDs = append([]string(nil), t.ProposalIDs...)
	return &cp
}

func (r *fakeTenderRepo) GetTenders(_ context.Context, filter models.TenderFilter, actor models.Actor) ([]models.Tender, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Tender
	for _, t := range r.tenders {
		if !actor.IsAdmin() && t.Owner != actor.ID {
			if t.Status == models.DraftTender {
				continue
			}
			if t.Visibility == models.InviteOnlyTender {
				invited := false
				for _, id := range t.InvitedParties {
					if id == actor.ID {
						invited = true
					}
				}
				if !invited {
					continue
				}
			}
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Category != "" && t.Category != filter.Category {
			continue
		}
		out = append(out, *copyTender(t))
	}
	return out, nil
}

func (r *fakeTenderRepo) CreateTender(_ context.Context, req models.TenderRequest, owner string) (*models.Tender, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &models.Tender{
		ID:             uuid.New().String(),
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		Skills:         req.Skills,
		Budget:         req.Budget,
		Deadline:       req.Deadline,
		DurationDays:   req.DurationDays,
		Status:         models.DraftTender,
		Visibility:     req.Visibility,
		InvitedParties: req.InvitedParties,
		Owner:          owner,
		ProposalIDs:    []string{},
		Version:        1,
		CreatedAt:      time.Now().UTC(),
	}
	r.tenders[t.ID] = t
	return copyTender(t), nil
}

func (r *fakeTenderRepo) GetUserTenders(_ context.Context, _, _ int, owner string) ([]models.Tender, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Tender
	for _, t := range r.tenders {
		if t.Owner == owner {
			out = append(out, *copyTender(t))
		}
	}
	return out, nil
}

func (r *fakeTenderRepo) GetTenderByID(_ context.Context, tenderID string) (*models.Tender, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenders[tenderID]
	if !ok {
		return nil, models.NewErrorResponse(http.StatusNotFound, models.KindNotFound, "tender not found")
	}
	return copyTender(t), nil
}

func (r *fakeTenderRepo) UpdateTenderStatus(_ context.Context, tenderID string, status models.TenderStatus, version int32) (*models.Tender, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenders[tenderID]
	if !ok || t.Version != version {
		return nil, models.NewStaleState("tender", tenderID)
	}
	t.Status = status
	t.Version++
	return copyTender(t), nil
}

func (r *fakeTenderRepo) EditTender(_ context.Context, tenderID string, upd models.TenderUpdate, version int32) (*models.Tender, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenders[tenderID]
	if !ok || t.Version != version {
		return nil, models.NewStaleState("tender", tenderID)
	}
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Budget != nil {
		t.Budget = *upd.Budget
	}
	if upd.Deadline != nil {
		t.Deadline = *upd.Deadline
	}
	if upd.DurationDays != nil {
		t.DurationDays = *upd.DurationDays
	}
	if upd.Visibility != nil {
		t.Visibility = *upd.Visibility
	}
	if upd.InvitedParties != nil {
		t.InvitedParties = *upd.InvitedParties
	}
	t.Version++
	return copyTender(t), nil
}

func (r *fakeTenderRepo) IncrementViews(_ context.Context, tenderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tenders[tenderID]; ok {
		t.Views++
	}
	return nil
}

func (r *fakeTenderRepo) ListExpiredTenderIDs(_ context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, t := range r.tenders {
		if (t.Status == models.PublishedTender || t.Status == models.OpenTender) && !t.Deadline.After(now) {
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

type fakeProposalRepo struct {
	mu        sync.Mutex
	proposals map[string]*models.Proposal
	tenders   *fakeTenderRepo

	// listOpenErrOn роняет n-й вызов ListOpenProposalIDs (0 - никогда).
	listOpenCalls int
	listOpenErrOn int
}

func newFakeProposalRepo(tenders *fakeTenderRepo) *fakeProposalRepo {
	return &fakeProposalRepo{
		proposals: make(map[string]*models.Proposal),
		tenders:   tenders,
	}
}

func copyProposal(p *models.Proposal) *models.Proposal {
	cp := *p
	cp.Attachments = append([]string(nil), p.Attachments...)
	return &cp
}

func (r *fakeProposalRepo) CreateProposal(_ context.Context, req models.ProposalRequest, bidder string) (*models.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.proposals {
		if p.TenderID == req.TenderID && p.Bidder == bidder && p.Status != models.WithdrawnProposal {
			return nil, models.NewErrorResponse(http.StatusConflict, models.KindDuplicateProposal,
				"bidder already has an active proposal for this tender")
		}
	}
	// Привязка к тендеру в одной критической секции с созданием.
	// Статус перепроверяется при записи, как и в SQL-реализации.
	r.tenders.mu.Lock()
	t, ok := r.tenders.tenders[req.TenderID]
	if !ok || (t.Status != models.PublishedTender && t.Status != models.OpenTender) {
		r.tenders.mu.Unlock()
		return nil, models.NewErrorResponse(http.StatusConflict, models.KindTenderNotOpen,
			"tender is not accepting proposals")
	}
	p := &models.Proposal{
		ID:                uuid.New().String(),
		TenderID:          req.TenderID,
		Bidder:            bidder,
		BidAmount:         req.BidAmount,
		Status:            models.SubmittedProposal,
		ProposalText:      req.ProposalText,
		EstimatedTimeline: req.EstimatedTimeline,
		Attachments:       append([]string(nil), req.Attachments...),
		Version:           1,
		CreatedAt:         time.Now().UTC(),
	}
	r.proposals[p.ID] = p
	t.ProposalIDs = append(t.ProposalIDs, p.ID)
	r.tenders.mu.Unlock()
	return copyProposal(p), nil
}

func (r *fakeProposalRepo) GetProposalByID(_ context.Context, proposalID string) (*models.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[proposalID]
	if !ok {
		return nil, models.NewErrorResponse(http.StatusNotFound, models.KindNotFound, "proposal not found")
	}
	return copyProposal(p), nil
}

func (r *fakeProposalRepo) GetTenderProposals(_ context.Context, tenderID string) ([]models.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Proposal
	for _, p := range r.proposals {
		if p.TenderID == tenderID {
			out = append(out, *copyProposal(p))
		}
	}
	return out, nil
}

func (r *fakeProposalRepo) GetUserProposals(_ context.Context, bidder string) ([]models.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Proposal
	for _, p := range r.proposals {
		if p.Bidder == bidder {
			out = append(out, *copyProposal(p))
		}
	}
	return out, nil
}

func (r *fakeProposalRepo) ListOpenProposalIDs(_ context.Context, tenderID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listOpenCalls++
	if r.listOpenErrOn != 0 && r.listOpenCalls == r.listOpenErrOn {
		return nil, errors.New("connection reset by peer")
	}
	var ids []string
	for _, p := range r.proposals {
		if p.TenderID == tenderID && !p.Status.IsTerminal() {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

func (r *fakeProposalRepo) UpdateProposalStatus(_ context.Context, proposalID string, status models.ProposalStatus, notes string, version int32) (*models.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[proposalID]
	if !ok || p.Version != version {
		return nil, models.NewStaleState("proposal", proposalID)
	}
	p.Status = status
	p.Notes = notes
	p.Version++
	return copyProposal(p), nil
}

func (r *fakeProposalRepo) AcceptProposal(_ context.Context, proposalID, tenderID, notes string, version int32) (*models.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.proposals {
		if p.TenderID == tenderID && p.Status == models.AcceptedProposal {
			return nil, models.NewErrorResponse(http.StatusConflict, models.KindAlreadyAccepted,
				"another proposal for this tender is already accepted")
		}
	}
	p, ok := r.proposals[proposalID]
	if !ok || p.Version != version {
		return nil, models.NewStaleState("proposal", proposalID)
	}
	p.Status = models.AcceptedProposal
	p.Notes = notes
	p.Version++
	return copyProposal(p), nil
}

func (r *fakeProposalRepo) EditProposal(_ context.Context, proposalID string, upd models.ProposalUpdate, version int32) (*models.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[proposalID]
	if !ok || p.Version != version {
		return nil, models.NewStaleState("proposal", proposalID)
	}
	if upd.BidAmount != nil {
		p.BidAmount = *upd.BidAmount
	}
	if upd.ProposalText != nil {
		p.ProposalText = *upd.ProposalText
	}
	if upd.EstimatedTimeline != nil {
		p.EstimatedTimeline = *upd.EstimatedTimeline
	}
	if upd.Attachments != nil {
		p.Attachments = append([]string(nil), *upd.Attachments...)
	}
	p.Version++
	return copyProposal(p), nil
}

type fakeBookmarkRepo struct {
	mu    sync.Mutex
	saved map[string]map[string]bool
}

func newFakeBookmarkRepo() *fakeBookmarkRepo {
	return &fakeBookmarkRepo{saved: make(map[string]map[string]bool)}
}

func (r *fakeBookmarkRepo) Toggle(_ context.Context, userID, tenderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved[userID] == nil {
		r.saved[userID] = make(map[string]bool)
	}
	if r.saved[userID][tenderID] {
		delete(r.saved[userID], tenderID)
		return false, nil
	}
	r.saved[userID][tenderID] = true
	return true, nil
}

func (r *fakeBookmarkRepo) IsSaved(_ context.Context, userID, tenderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved[userID][tenderID], nil
}

func (r *fakeBookmarkRepo) SavedBy(_ context.Context, tenderID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for userID, tenders := range r.saved {
		if tenders[tenderID] {
			out = append(out, userID)
		}
	}
	return out, nil
}

func (r *fakeBookmarkRepo) SavedCount(_ context.Context, tenderID string) (int64, error) {
	users, _ := r.SavedBy(context.Background(), tenderID)
	return int64(len(users)), nil
}
