package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/senyabanana/marketplace-service/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const proposalColumns = `id, tender_id, bidder, bid_amount, status, proposal_text,
	estimated_timeline, attachments, notes, version, created_at`

// uniqueViolation - код ошибки PostgreSQL для нарушения уникального индекса.
const uniqueViolation = "23505"

// ProposalRepository - интерфейс для работы с предложениями.
type ProposalRepository interface {
	CreateProposal(ctx context.Context, proposalReq models.ProposalRequest, bidder string) (*models.Proposal, error)
	GetProposalByID(ctx context.Context, proposalID string) (*models.Proposal, error)
	GetTenderProposals(ctx context.Context, tenderID string) ([]models.Proposal, error)
	GetUserProposals(ctx context.Context, bidder string) ([]models.Proposal, error)
	ListOpenProposalIDs(ctx context.Context, tenderID string) ([]string, error)
	UpdateProposalStatus(ctx context.Context, proposalID string, status models.ProposalStatus, notes string, version int32) (*models.Proposal, error)
	AcceptProposal(ctx context.Context, proposalID, tenderID, notes string, version int32) (*models.Proposal, error)
	EditProposal(ctx context.Context, proposalID string, upd models.ProposalUpdate, version int32) (*models.Proposal, error)
}

// PostgresProposalRepository - реализация ProposalRepository для базы данных.
type PostgresProposalRepository struct {
	DB *pgxpool.Pool
}

// NewPostgresProposalRepository создаёт новый экземпляр PostgresProposalRepository.
func NewPostgresProposalRepository(db *pgxpool.Pool) *PostgresProposalRepository {
	return &PostgresProposalRepository{DB: db}
}

func scanProposal(row pgx.Row) (*models.Proposal, error) {
	var p models.Proposal
	err := row.Scan(
		&p.ID,
		&p.TenderID,
		&p.Bidder,
		&p.BidAmount,
		&p.Status,
		&p.ProposalText,
		&p.EstimatedTimeline,
		&p.Attachments,
		&p.Notes,
		&p.Version,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// CreateProposal создает предложение и добавляет его id в tender.proposal_ids
// в одной транзакции: обе записи либо фиксируются вместе, либо не фиксируются вовсе.
// Дубликат по (tender_id, bidder) ловится частичным уникальным индексом.
func (r *PostgresProposalRepository) CreateProposal(ctx context.Context, proposalReq models.ProposalRequest, bidder string) (*models.Proposal, error) {
	newProposal := models.Proposal{
		ID:                uuid.New().String(),
		TenderID:          proposalReq.TenderID,
		Bidder:            bidder,
		BidAmount:         proposalReq.BidAmount,
		Status:            models.SubmittedProposal,
		ProposalText:      proposalReq.ProposalText,
		EstimatedTimeline: proposalReq.EstimatedTimeline,
		Attachments:       proposalReq.Attachments,
		Version:           1,
		CreatedAt:         time.Now().UTC(),
	}
	if newProposal.Attachments == nil {
		newProposal.Attachments = []string{}
	}

	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
       INSERT INTO proposal (id, tender_id, bidder, bid_amount, status, proposal_text, estimated_timeline, attachments, notes, version, created_at)
       VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', $9, $10)
   `,
		newProposal.ID,
		newProposal.TenderID,
		newProposal.Bidder,
		newProposal.BidAmount,
		newProposal.Status,
		newProposal.ProposalText,
		newProposal.EstimatedTimeline,
		newProposal.Attachments,
		newProposal.Version,
		newProposal.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.NewErrorResponse(http.StatusConflict, models.KindDuplicateProposal,
				"bidder already has an active proposal for this tender")
		}
		return nil, fmt.Errorf("failed to insert proposal: %w", err)
	}

	// Статус перепроверяется здесь же: блокировка строки тендера
	// сериализует привязку с конкурентной отменой, и предложение не может
	// зафиксироваться по уже закрытому тендеру.
	tag, err := tx.Exec(ctx,
		`UPDATE tender SET proposal_ids = array_append(proposal_ids, $1)
		 WHERE id = $2 AND status IN ('published', 'open')`,
		newProposal.ID, newProposal.TenderID)
	if err != nil {
		return nil, fmt.Errorf("failed to link proposal to tender: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, models.NewErrorResponse(http.StatusConflict, models.KindTenderNotOpen,
			"tender is not accepting proposals")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit proposal: %w", err)
	}
	return &newProposal, nil
}

// GetProposalByID получает предложение по ID.
func (r *PostgresProposalRepository) GetProposalByID(ctx context.Context, proposalID string) (*models.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposal WHERE id = $1`
	proposal, err := scanProposal(r.DB.QueryRow(ctx, query, proposalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewErrorResponse(http.StatusNotFound, models.KindNotFound, "proposal not found")
	}
	return proposal, err
}

// GetTenderProposals возвращает все предложения по тендеру в порядке подачи.
// Это авторитетный источник связи один-ко-многим; массив proposal_ids
// на тендере - лишь денормализованный кэш.
func (r *PostgresProposalRepository) GetTenderProposals(ctx context.Context, tenderID string) ([]models.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposal WHERE tender_id = $1 ORDER BY created_at ASC`
	rows, err := r.DB.Query(ctx, query, tenderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proposals []models.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, *p)
	}
	return proposals, rows.Err()
}

// GetUserProposals возвращает все предложения автора.
func (r *PostgresProposalRepository) GetUserProposals(ctx context.Context, bidder string) ([]models.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposal WHERE bidder = $1 ORDER BY created_at DESC`
	rows, err := r.DB.Query(ctx, query, bidder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proposals []models.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, *p)
	}
	return proposals, rows.Err()
}

// ListOpenProposalIDs возвращает id предложений тендера в нетерминальных статусах.
func (r *PostgresProposalRepository) ListOpenProposalIDs(ctx context.Context, tenderID string) ([]string, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT id FROM proposal WHERE tender_id = $1 AND status IN ('submitted', 'under_review', 'shortlisted') ORDER BY created_at ASC`,
		tenderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateProposalStatus меняет статус предложения под защитой оптимистической версии.
func (r *PostgresProposalRepository) UpdateProposalStatus(ctx context.Context, proposalID string, status models.ProposalStatus, notes string, version int32) (*models.Proposal, error) {
	query := `UPDATE proposal SET status = $1, notes = $2, version = version + 1
	          WHERE id = $3 AND version = $4
	          RETURNING ` + proposalColumns
	proposal, err := scanProposal(r.DB.QueryRow(ctx, query, status, notes, proposalID, version))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewStaleState("proposal", proposalID)
	}
	return proposal, err
}

// AcceptProposal принимает предложение, если по тендеру ещё нет принятого.
// Проверка единственности и смена статуса выполняются одним оператором,
// поэтому из двух одновременных принятий побеждает ровно одно; частичный
// уникальный индекс страхует инвариант на уровне схемы.
func (r *PostgresProposalRepository) AcceptProposal(ctx context.Context, proposalID, tenderID, notes string, version int32) (*models.Proposal, error) {
	query := `UPDATE proposal SET status = 'accepted', notes = $1, version = version + 1
	          WHERE id = $2 AND version = $3
	          AND NOT EXISTS (SELECT 1 FROM proposal p WHERE p.tender_id = $4 AND p.status = 'accepted')
	          RETURNING ` + proposalColumns
	proposal, err := scanProposal(r.DB.QueryRow(ctx, query, notes, proposalID, version, tenderID))
	if err == nil {
		return proposal, nil
	}
	if isUniqueViolation(err) {
		return nil, models.NewErrorResponse(http.StatusConflict, models.KindAlreadyAccepted,
			"another proposal for this tender is already accepted")
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// Ноль строк: либо у тендера уже есть принятое предложение, либо версия устарела.
	var accepted bool
	checkQuery := `SELECT EXISTS(SELECT 1 FROM proposal WHERE tender_id = $1 AND status = 'accepted')`
	if checkErr := r.DB.QueryRow(ctx, checkQuery, tenderID).Scan(&accepted); checkErr != nil {
		return nil, checkErr
	}
	if accepted {
		return nil, models.NewErrorResponse(http.StatusConflict, models.KindAlreadyAccepted,
			"another proposal for this tender is already accepted")
	}
	return nil, models.NewStaleState("proposal", proposalID)
}

// EditProposal применяет частичное обновление предложения под защитой версии.
func (r *PostgresProposalRepository) EditProposal(ctx context.Context, proposalID string, upd models.ProposalUpdate, version int32) (*models.Proposal, error) {
	var updates []string
	var args []interface{}
	argIndex := 1

	appendSet := func(column string, value interface{}) {
		updates = append(updates, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}

	if upd.BidAmount != nil {
		appendSet("bid_amount", *upd.BidAmount)
	}
	if upd.ProposalText != nil {
		appendSet("proposal_text", *upd.ProposalText)
	}
	if upd.EstimatedTimeline != nil {
		appendSet("estimated_timeline", *upd.EstimatedTimeline)
	}
	if upd.Attachments != nil {
		appendSet("attachments", *upd.Attachments)
	}

	if len(updates) == 0 {
		return nil, models.NewErrorResponse(http.StatusBadRequest, models.KindBadRequest, "no valid fields to update")
	}

	updates = append(updates, "version = version + 1")

	query := "UPDATE proposal SET " + strings.Join(updates, ", ") +
		fmt.Sprintf(" WHERE id = $%d AND version = $%d RETURNING ", argIndex, argIndex+1) + proposalColumns
	args = append(args, proposalID, version)

	proposal, err := scanProposal(r.DB.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewStaleState("proposal", proposalID)
	}
	return proposal, err
}
