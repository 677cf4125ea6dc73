package services

import (
	"context"
	"testing"
	"time"

	"github.com/senyabanana/marketplace-service/internal/events"
	"github.com/senyabanana/marketplace-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	companyActor    = models.Actor{ID: "org-1", Role: models.CompanyRole}
	otherCompany    = models.Actor{ID: "org-2", Role: models.CompanyRole}
	freelancerActor = models.Actor{ID: "user-a", Role: models.FreelancerRole}
	adminActor      = models.Actor{ID: "root", Role: models.AdminRole}
)

func testEnv(t *testing.T) (*TenderService, *ProposalService, *fakeTenderRepo, *fakeProposalRepo, *events.MemorySink) {
	t.Helper()
	tenderRepo := newFakeTenderRepo()
	proposalRepo := newFakeProposalRepo(tenderRepo)
	sink := events.NewMemorySink()
	logger := zap.NewNop()

	tenderSvc := NewTenderService(tenderRepo, proposalRepo, sink, logger)
	proposalSvc := NewProposalService(proposalRepo, tenderRepo, sink, logger)
	return tenderSvc, proposalSvc, tenderRepo, proposalRepo, sink
}

func validTenderRequest() models.TenderRequest {
	return models.TenderRequest{
		Title:        "Build a data pipeline",
		Description:  "Ingest and normalize vendor feeds",
		Category:     "engineering",
		Skills:       []string{"go", "postgres"},
		Budget:       models.Budget{Min: decimal.NewFromInt(1000), Max: decimal.NewFromInt(2000), Currency: "USD"},
		Deadline:     time.Now().UTC().Add(30 * 24 * time.Hour),
		DurationDays: 14,
		Visibility:   models.PublicTender,
	}
}

func mustCreateOpenTender(t *testing.T, svc *TenderService) *models.Tender {
	t.Helper()
	ctx := context.Background()
	tender, err := svc.CreateTender(ctx, validTenderRequest(), companyActor)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, tender.ID, models.PublishedTender, companyActor)
	require.NoError(t, err)
	result, err := svc.Transition(ctx, tender.ID, models.OpenTender, companyActor)
	require.NoError(t, err)
	return result.Tender
}

func TestCreateTender(t *testing.T) {
	svc, _, _, _, sink := testEnv(t)
	ctx := context.Background()

	t.Run("creates draft with valid budget", func(t *testing.T) {
		tender, err := svc.CreateTender(ctx, validTenderRequest(), companyActor)
		require.NoError(t, err)
		assert.Equal(t, models.DraftTender, tender.Status)
		assert.Equal(t, "org-1", tender.Owner)
		assert.True(t, tender.Budget.Min.LessThanOrEqual(tender.Budget.Max))
		assert.Equal(t, int32(1), tender.Version)
	})

	t.Run("emits TenderCreated", func(t *testing.T) {
		found := false
		for _, event := range sink.Events() {
			if event.Type == models.EventTenderCreated {
				found = true
			}
		}
		assert.True(t, found)
	})

	t.Run("rejects freelancer", func(t *testing.T) {
		_, err := svc.CreateTender(ctx, validTenderRequest(), freelancerActor)
		assert.True(t, models.IsKind(err, models.KindNotAuthorized))
	})

	t.Run("rejects inverted budget", func(t *testing.T) {
		req := validTenderRequest()
		req.Budget.Min = decimal.NewFromInt(5000)
		_, err := svc.CreateTender(ctx, req, companyActor)
		require.Error(t, err)
	})

	t.Run("rejects unknown currency", func(t *testing.T) {
		req := validTenderRequest()
		req.Budget.Currency = "XXX"
		_, err := svc.CreateTender(ctx, req, companyActor)
		assert.True(t, models.IsKind(err, models.KindInvalidCurrency))
	})

	t.Run("rejects past deadline", func(t *testing.T) {
		req := validTenderRequest()
		req.Deadline = time.Now().UTC().Add(-time.Hour)
		_, err := svc.CreateTender(ctx, req, companyActor)
		assert.True(t, models.IsKind(err, models.KindDeadlineInPast))
	})

	t.Run("reports all validation failures at once", func(t *testing.T) {
		req := validTenderRequest()
		req.Budget.Currency = "??"
		req.Deadline = time.Now().UTC().Add(-time.Hour)
		_, err := svc.CreateTender(ctx, req, companyActor)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "currency")
		assert.Contains(t, err.Error(), "deadline")
	})

	t.Run("drops invited list for public tender", func(t *testing.T) {
		req := validTenderRequest()
		req.InvitedParties = []string{"user-a"}
		tender, err := svc.CreateTender(ctx, req, companyActor)
		require.NoError(t, err)
		assert.Empty(t, tender.InvitedParties)
	})
}

func TestTenderTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("draft to published requires valid deadline at publish time", func(t *testing.T) {
		svc, _, repo, _, _ := testEnv(t)
		tender, err := svc.CreateTender(ctx, validTenderRequest(), companyActor)
		require.NoError(t, err)

		// Черновик пролежал до истечения дедлайна.
		svc.now = func() time.Time { return tender.Deadline.Add(time.Hour) }
		_, err = svc.Transition(ctx, tender.ID, models.PublishedTender, companyActor)
		assert.True(t, models.IsKind(err, models.KindDeadlineInPast))

		stored, err := repo.GetTenderByID(ctx, tender.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DraftTender, stored.Status)
	})

	t.Run("full lifecycle draft published open completed", func(t *testing.T) {
		svc, _, _, _, _ := testEnv(t)
		tender, err := svc.CreateTender(ctx, validTenderRequest(), companyActor)
		require.NoError(t, err)

		for _, target := range []models.TenderStatus{models.PublishedTender, models.OpenTender, models.CompletedTender} {
			result, err := svc.Transition(ctx, tender.ID, target, companyActor)
			require.NoError(t, err)
			assert.Equal(t, target, result.Tender.Status)
		}
	})

	t.Run("skipping a state is rejected", func(t *testing.T) {
		svc, _, _, _, _ := testEnv(t)
		tender, err := svc.CreateTender(ctx, validTenderRequest(), companyActor)
		require.NoError(t, err)

		_, err = svc.Transition(ctx, tender.ID, models.OpenTender, companyActor)
		assert.True(t, models.IsKind(err, models.KindInvalidTransition))
		_, err = svc.Transition(ctx, tender.ID, models.CompletedTender, companyActor)
		assert.True(t, models.IsKind(err, models.KindInvalidTransition))
	})

	t.Run("non-owner may not transition", func(t *testing.T) {
		svc, _, _, _, _ := testEnv(t)
		tender, err := svc.CreateTender(ctx, validTenderRequest(), companyActor)
		require.NoError(t, err)

		_, err = svc.Transition(ctx, tender.ID, models.PublishedTender, otherCompany)
		assert.True(t, models.IsKind(err, models.KindNotAuthorized))
	})

	t.Run("admin may transition", func(t *testing.T) {
		svc, _, _, _, _ := testEnv(t)
		tender, err := svc.CreateTender(ctx, validTenderRequest(), companyActor)
		require.NoError(t, err)

		_, err = svc.Transition(ctx, tender.ID, models.PublishedTender, adminActor)
		assert.NoError(t, err)
	})

	t.Run("terminal states have no outgoing transitions", func(t *testing.T) {
		svc, _, _, _, _ := testEnv(t)
		tender, err := svc.CreateTender(ctx, validTenderRequest(), companyActor)
		require.NoError(t, err)
		_, err = svc.Transition(ctx, tender.ID, models.CancelledTender, companyActor)
		require.NoError(t, err)

		for _, target := range []models.TenderStatus{models.DraftTender, models.PublishedTender, models.OpenTender, models.CompletedTender, models.CancelledTender} {
			_, err = svc.Transition(ctx, tender.ID, target, companyActor)
			assert.True(t, models.IsKind(err, models.KindInvalidTransition), "cancelled -> %s must fail", target)
		}
	})

	t.Run("stale version loses the race", func(t *testing.T) {
		svc, _, repo, _, _ := testEnv(t)
		tender, err := svc.CreateTender(ctx, validTenderRequest(), companyActor)
		require.NoError(t, err)

		// Конкурент успел зафиксировать переход между чтением и записью.
		_, err = repo.UpdateTenderStatus(ctx, tender.ID, models.DraftTender, tender.Version)
		require.NoError(t, err)

		_, err = repo.UpdateTenderStatus(ctx, tender.ID, models.PublishedTender, tender.Version)
		assert.True(t, models.IsKind(err, models.KindStaleState))
	})
}

func TestCompleteGuard(t *testing.T) {
	ctx := context.Background()
	svc, proposalSvc, _, _, _ := testEnv(t)
	tender := mustCreateOpenTender(t, svc)

	proposal, err := proposalSvc.CreateProposal(ctx, validProposalRequest(tender.ID), freelancerActor)
	require.NoError(t, err)

	t.Run("complete fails with pending proposals", func(t *testing.T) {
		_, err := svc.Transition(ctx, tender.ID, models.CompletedTender, companyActor)
		require.Error(t, err)
		assert.True(t, models.IsKind(err, models.KindPendingDecisions))
		resp := err.(*models.ErrorResponse)
		assert.Contains(t, resp.ProposalIDs, proposal.ID)
	})

	t.Run("complete succeeds once every proposal is terminal", func(t *testing.T) {
		_, err := proposalSvc.UpdateProposalStatus(ctx, proposal.ID, models.UnderReviewProposal, "", companyActor)
		require.NoError(t, err)
		_, err = proposalSvc.UpdateProposalStatus(ctx, proposal.ID, models.RejectedProposal, "not a fit", companyActor)
		require.NoError(t, err)

		result, err := svc.Transition(ctx, tender.ID, models.CompletedTender, companyActor)
		require.NoError(t, err)
		assert.Equal(t, models.CompletedTender, result.Tender.Status)
		assert.Empty(t, result.Withdrawn)
	})
}

func TestCancelCascade(t *testing.T) {
	ctx := context.Background()
	svc, proposalSvc, _, proposalRepo, _ := testEnv(t)
	tender := mustCreateOpenTender(t, svc)

	first, err := proposalSvc.CreateProposal(ctx, validProposalRequest(tender.ID), freelancerActor)
	require.NoError(t, err)
	second, err := proposalSvc.CreateProposal(ctx, validProposalRequest(tender.ID), models.Actor{ID: "user-b", Role: models.FreelancerRole})
	require.NoError(t, err)

	result, err := svc.Transition(ctx, tender.ID, models.CancelledTender, companyActor)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, result.Withdrawn)
	assert.Empty(t, result.Failed)

	for _, id := range []string{first.ID, second.ID} {
		p, err := proposalRepo.GetProposalByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.WithdrawnProposal, p.Status)
		assert.Equal(t, models.WithdrawnBySystemNote, p.Notes)
	}

	// Отменённый тендер завершить нельзя: у cancelled нет исходящих переходов.
	_, err = svc.Transition(ctx, tender.ID, models.CompletedTender, companyActor)
	assert.True(t, models.IsKind(err, models.KindInvalidTransition))
}

func TestCancelCascadeDegraded(t *testing.T) {
	ctx := context.Background()
	svc, proposalSvc, _, proposalRepo, _ := testEnv(t)
	tender := mustCreateOpenTender(t, svc)

	proposal, err := proposalSvc.CreateProposal(ctx, validProposalRequest(tender.ID), freelancerActor)
	require.NoError(t, err)

	// Первое чтение списка предшествует фиксации отмены, второе - каскаду.
	proposalRepo.listOpenErrOn = 2

	result, err := svc.Transition(ctx, tender.ID, models.CancelledTender, companyActor)
	require.NoError(t, err)
	assert.Equal(t, models.CancelledTender, result.Tender.Status)
	assert.Empty(t, result.Withdrawn)
	assert.Equal(t, []string{proposal.ID}, result.Failed)

	// Предложение осталось неотозванным, оператору есть что сверять.
	p, err := proposalRepo.GetProposalByID(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmittedProposal, p.Status)
}

func TestFetchTendersVisibility(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _, _ := testEnv(t)

	draft, err := svc.CreateTender(ctx, validTenderRequest(), companyActor)
	require.NoError(t, err)

	t.Run("someone else's draft is not listed", func(t *testing.T) {
		tenders, err := svc.FetchTenders(ctx, models.TenderFilter{}, freelancerActor)
		require.NoError(t, err)
		assert.Empty(t, tenders)
	})

	t.Run("owner and admin see the draft", func(t *testing.T) {
		for _, actor := range []models.Actor{companyActor, adminActor} {
			tenders, err := svc.FetchTenders(ctx, models.TenderFilter{}, actor)
			require.NoError(t, err)
			assert.Len(t, tenders, 1)
		}
	})

	t.Run("published tender becomes listed", func(t *testing.T) {
		_, err := svc.Transition(ctx, draft.ID, models.PublishedTender, companyActor)
		require.NoError(t, err)

		tenders, err := svc.FetchTenders(ctx, models.TenderFilter{}, freelancerActor)
		require.NoError(t, err)
		assert.Len(t, tenders, 1)
	})
}

func TestEditTender(t *testing.T) {
	ctx := context.Background()

	t.Run("owner edits draft", func(t *testing.T) {
		svc, _, _, _, _ := testEnv(t)
		tender, err := svc.CreateTender(ctx, validTenderRequest(), companyActor)
		require.NoError(t, err)

		title := "Refreshed title"
		updated, err := svc.EditTender(ctx, tender.ID, models.TenderUpdate{Title: &title}, companyActor)
		require.NoError(t, err)
		assert.Equal(t, "Refreshed title", updated.Title)
		assert.Equal(t, tender.Version+1, updated.Version)
	})

	t.Run("terminal tender is immutable", func(t *testing.T) {
		svc, _, _, _, _ := testEnv(t)
		tender, err := svc.CreateTender(ctx, validTenderRequest(), companyActor)
		require.NoError(t, err)
		_, err = svc.Transition(ctx, tender.ID, models.CancelledTender, companyActor)
		require.NoError(t, err)

		title := "too late"
		_, err = svc.EditTender(ctx, tender.ID, models.TenderUpdate{Title: &title}, companyActor)
		assert.True(t, models.IsKind(err, models.KindInvalidTransition))
	})

	t.Run("budget update is re-validated", func(t *testing.T) {
		svc, _, _, _, _ := testEnv(t)
		tender, err := svc.CreateTender(ctx, validTenderRequest(), companyActor)
		require.NoError(t, err)

		bad := models.Budget{Min: decimal.NewFromInt(10), Max: decimal.NewFromInt(5), Currency: "USD"}
		_, err = svc.EditTender(ctx, tender.ID, models.TenderUpdate{Budget: &bad}, companyActor)
		require.Error(t, err)
	})
}

func TestGetTenderVisibility(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _, _ := testEnv(t)

	req := validTenderRequest()
	req.Visibility = models.InviteOnlyTender
	req.InvitedParties = []string{"user-a"}
	tender, err := svc.CreateTender(ctx, req, companyActor)
	require.NoError(t, err)

	t.Run("stranger gets not found, not forbidden", func(t *testing.T) {
		_, err := svc.GetTender(ctx, tender.ID, models.Actor{ID: "user-b", Role: models.FreelancerRole})
		require.Error(t, err)
		resp := err.(*models.ErrorResponse)
		assert.Equal(t, models.KindNotFound, resp.Kind)
	})

	t.Run("invited party sees the tender and bumps views", func(t *testing.T) {
		got, err := svc.GetTender(ctx, tender.ID, freelancerActor)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Views)

		got, err = svc.GetTender(ctx, tender.ID, freelancerActor)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Views)
	})
}

func TestCloseExpired(t *testing.T) {
	ctx := context.Background()
	svc, proposalSvc, _, proposalRepo, _ := testEnv(t)
	tender := mustCreateOpenTender(t, svc)

	proposal, err := proposalSvc.CreateProposal(ctx, validProposalRequest(tender.ID), freelancerActor)
	require.NoError(t, err)

	// Дедлайн прошёл; зачистка отменяет тендер и отзывает предложения.
	svc.now = func() time.Time { return tender.Deadline.Add(time.Hour) }
	results, err := svc.CloseExpired(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.CancelledTender, results[0].Tender.Status)
	assert.Contains(t, results[0].Withdrawn, proposal.ID)

	p, err := proposalRepo.GetProposalByID(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawnProposal, p.Status)
}
