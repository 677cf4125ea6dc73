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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

const tenderColumns = `id, title, description, category, skills, budget_min, budget_max, currency,
	deadline, duration_days, status, visibility, invited_parties, owner_id, proposal_ids, views, version, created_at`

// TenderRepository - интерфейс для работы с тендерами.
type TenderRepository interface {
	GetTenders(ctx context.Context, filter models.TenderFilter, actor models.Actor) ([]models.Tender, error)
	CreateTender(ctx context.Context, tenderReq models.TenderRequest, owner string) (*models.Tender, error)
	GetUserTenders(ctx context.Context, limit, offset int, owner string) ([]models.Tender, error)
	GetTenderByID(ctx context.Context, tenderID string) (*models.Tender, error)
	UpdateTenderStatus(ctx context.Context, tenderID string, status models.TenderStatus, version int32) (*models.Tender, error)
	EditTender(ctx context.Context, tenderID string, upd models.TenderUpdate, version int32) (*models.Tender, error)
	IncrementViews(ctx context.Context, tenderID string) error
	ListExpiredTenderIDs(ctx context.Context, now time.Time) ([]string, error)
}

// PostgresTenderRepository - реализация TenderRepository для базы данных.
type PostgresTenderRepository struct {
	DB *pgxpool.Pool
}

// NewPostgresTenderRepository создаёт новый экземпляр PostgresTenderRepository.
func NewPostgresTenderRepository(db *pgxpool.Pool) *PostgresTenderRepository {
	return &PostgresTenderRepository{DB: db}
}

func scanTender(row pgx.Row) (*models.Tender, error) {
	var t models.Tender
	err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&t.Category,
		&t.Skills,
		&t.Budget.Min,
		&t.Budget.Max,
		&t.Budget.Currency,
		&t.Deadline,
		&t.DurationDays,
		&t.Status,
		&t.Visibility,
		&t.InvitedParties,
		&t.Owner,
		&t.ProposalIDs,
		&t.Views,
		&t.Version,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTenders возвращает страницу тендеров, видимых участнику.
// Маскирование закрытых тендеров выполняется на уровне SQL, чтобы
// посторонние не узнали о существовании invite_only тендеров.
func (r *PostgresTenderRepository) GetTenders(ctx context.Context, filter models.TenderFilter, actor models.Actor) ([]models.Tender, error) {
	query := `SELECT ` + tenderColumns + ` FROM tender`
	var filters []string
	var args []interface{}
	argIndex := 1

	// Черновики видит только владелец; остальным чужой тендер показывается
	// после публикации и только если он публичный или участник приглашён.
	if !actor.IsAdmin() {
		filters = append(filters, fmt.Sprintf(
			"(owner_id = $%d OR (status <> 'draft' AND (visibility = 'public' OR $%d = ANY(invited_parties))))",
			argIndex, argIndex))
		args = append(args, actor.ID)
		argIndex++
	}

	if filter.Category != "" {
		filters = append(filters, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, filter.Category)
		argIndex++
	}

	if len(filter.Skills) > 0 {
		filters = append(filters, fmt.Sprintf("skills && $%d", argIndex))
		args = append(args, pq.Array(filter.Skills))
		argIndex++
	}

	if filter.BudgetMin != nil {
		filters = append(filters, fmt.Sprintf("budget_max >= $%d", argIndex))
		args = append(args, *filter.BudgetMin)
		argIndex++
	}

	if filter.BudgetMax != nil {
		filters = append(filters, fmt.Sprintf("budget_min <= $%d", argIndex))
		args = append(args, *filter.BudgetMax)
		argIndex++
	}

	if filter.Search != "" {
		filters = append(filters, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", argIndex, argIndex))
		args = append(args, "%"+filter.Search+"%")
		argIndex++
	}

	if filter.Status != "" {
		filters = append(filters, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, filter.Status)
		argIndex++
	}

	if len(filters) > 0 {
		query += " WHERE " + strings.Join(filters, " AND ")
	}

	orderBy := "created_at DESC"
	switch filter.Sort {
	case "deadline":
		orderBy = "deadline ASC"
	case "budget":
		orderBy = "budget_max DESC"
	case "title":
		orderBy = "title ASC"
	}

	query += fmt.Sprintf(" ORDER BY %s LIMIT $%d OFFSET $%d", orderBy, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenders []models.Tender
	for rows.Next() {
		t, err := scanTender(rows)
		if err != nil {
			return nil, err
		}
		tenders = append(tenders, *t)
	}
	return tenders, rows.Err()
}

// CreateTender создает новый тендер в статусе draft.
func (r *PostgresTenderRepository) CreateTender(ctx context.Context, tenderReq models.TenderRequest, owner string) (*models.Tender, error) {
	newTender := models.Tender{
		ID:             uuid.New().String(),
		Title:          tenderReq.Title,
		Description:    tenderReq.Description,
		Category:       tenderReq.Category,
		Skills:         tenderReq.Skills,
		Budget:         tenderReq.Budget,
		Deadline:       tenderReq.Deadline,
		DurationDays:   tenderReq.DurationDays,
		Status:         models.DraftTender,
		Visibility:     tenderReq.Visibility,
		InvitedParties: tenderReq.InvitedParties,
		Owner:          owner,
		ProposalIDs:    []string{},
		Version:        1,
		CreatedAt:      time.Now().UTC(),
	}
	_, err := r.DB.Exec(ctx, `
       INSERT INTO tender (id, title, description, category, skills, budget_min, budget_max, currency,
                           deadline, duration_days, status, visibility, invited_parties, owner_id, proposal_ids, views, version, created_at)
       VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 0, $16, $17)
   `,
		newTender.ID,
		newTender.Title,
		newTender.Description,
		newTender.Category,
		newTender.Skills,
		newTender.Budget.Min,
		newTender.Budget.Max,
		newTender.Budget.Currency,
		newTender.Deadline,
		newTender.DurationDays,
		newTender.Status,
		newTender.Visibility,
		newTender.InvitedParties,
		newTender.Owner,
		newTender.ProposalIDs,
		newTender.Version,
		newTender.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert tender: %w", err)
	}
	return &newTender, nil
}

// GetUserTenders возвращает список тендеров владельца.
func (r *PostgresTenderRepository) GetUserTenders(ctx context.Context, limit, offset int, owner string) ([]models.Tender, error) {
	query := `SELECT ` + tenderColumns + ` FROM tender WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.DB.Query(ctx, query, owner, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenders []models.Tender
	for rows.Next() {
		t, err := scanTender(rows)
		if err != nil {
			return nil, err
		}
		tenders = append(tenders, *t)
	}
	return tenders, rows.Err()
}

// GetTenderByID получает тендер по ID.
func (r *PostgresTenderRepository) GetTenderByID(ctx context.Context, tenderID string) (*models.Tender, error) {
	query := `SELECT ` + tenderColumns + ` FROM tender WHERE id = $1`
	tender, err := scanTender(r.DB.QueryRow(ctx, query, tenderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewErrorResponse(http.StatusNotFound, models.KindNotFound, "tender not found")
	}
	return tender, err
}

// UpdateTenderStatus меняет статус тендера под защитой оптимистической версии.
// Ноль затронутых строк означает, что версия устарела: первый зафиксировавший
// переход выигрывает, проигравший получает StaleState и перечитывает состояние.
func (r *PostgresTenderRepository) UpdateTenderStatus(ctx context.Context, tenderID string, status models.TenderStatus, version int32) (*models.Tender, error) {
	query := `UPDATE tender SET status = $1, version = version + 1
	          WHERE id = $2 AND version = $3
	          RETURNING ` + tenderColumns
	tender, err := scanTender(r.DB.QueryRow(ctx, query, status, tenderID, version))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewStaleState("tender", tenderID)
	}
	return tender, err
}

// EditTender применяет частичное обновление тендера под защитой версии.
func (r *PostgresTenderRepository) EditTender(ctx context.Context, tenderID string, upd models.TenderUpdate, version int32) (*models.Tender, error) {
	var updates []string
	var args []interface{}
	argIndex := 1

	appendSet := func(column string, value interface{}) {
		updates = append(updates, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}

	if upd.Title != nil {
		appendSet("title", *upd.Title)
	}
	if upd.Description != nil {
		appendSet("description", *upd.Description)
	}
	if upd.Category != nil {
		appendSet("category", *upd.Category)
	}
	if upd.Skills != nil {
		appendSet("skills", *upd.Skills)
	}
	if upd.Budget != nil {
		appendSet("budget_min", upd.Budget.Min)
		appendSet("budget_max", upd.Budget.Max)
		appendSet("currency", upd.Budget.Currency)
	}
	if upd.Deadline != nil {
		appendSet("deadline", *upd.Deadline)
	}
	if upd.DurationDays != nil {
		appendSet("duration_days", *upd.DurationDays)
	}
	if upd.Visibility != nil {
		appendSet("visibility", *upd.Visibility)
	}
	if upd.InvitedParties != nil {
		appendSet("invited_parties", *upd.InvitedParties)
	}

	if len(updates) == 0 {
		return nil, models.NewErrorResponse(http.StatusBadRequest, models.KindBadRequest, "no valid fields to update")
	}

	updates = append(updates, "version = version + 1")

	query := "UPDATE tender SET " + strings.Join(updates, ", ") +
		fmt.Sprintf(" WHERE id = $%d AND version = $%d RETURNING ", argIndex, argIndex+1) + tenderColumns
	args = append(args, tenderID, version)

	tender, err := scanTender(r.DB.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		// Существование проверено сервисом до записи, остаётся конфликт версий.
		return nil, models.NewStaleState("tender", tenderID)
	}
	return tender, err
}

// IncrementViews увеличивает счётчик просмотров тендера.
// Счётчик не участвует в защите версией: это не бизнес-состояние.
func (r *PostgresTenderRepository) IncrementViews(ctx context.Context, tenderID string) error {
	_, err := r.DB.Exec(ctx, `UPDATE tender SET views = views + 1 WHERE id = $1`, tenderID)
	return err
}

// ListExpiredTenderIDs возвращает id активных тендеров с истёкшим дедлайном.
func (r *PostgresTenderRepository) ListExpiredTenderIDs(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT id FROM tender WHERE status IN ('published', 'open') AND deadline <= $1`, now)
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
