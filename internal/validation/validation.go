package validation

import (
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/senyabanana/marketplace-service/internal/models"

	"github.com/shopspring/decimal"
)

// allowedCurrencies - статический список признаваемых кодов валют.
var allowedCurrencies = map[string]struct{}{
	"USD": {}, "EUR": {}, "GBP": {}, "RUB": {}, "KZT": {},
	"CHF": {}, "JPY": {}, "CNY": {}, "PLN": {}, "INR": {},
}

// ValidateBudget проверяет бюджетные границы тендера.
// Возвращает список ошибок, а не первую найденную, чтобы вызывающий
// мог сообщить обо всех нарушениях сразу.
func ValidateBudget(b models.Budget) []*models.ErrorResponse {
	var errs []*models.ErrorResponse
	if b.Min.IsNegative() {
		errs = append(errs, models.NewErrorResponse(http.StatusBadRequest, models.KindBadRequest,
			"budget.min must be non-negative"))
	}
	if b.Max.LessThan(b.Min) {
		errs = append(errs, models.NewErrorResponse(http.StatusBadRequest, models.KindBadRequest,
			"budget.max must be greater than or equal to budget.min"))
	}
	if _, ok := allowedCurrencies[b.Currency]; !ok {
		errs = append(errs, models.NewErrorResponse(http.StatusBadRequest, models.KindInvalidCurrency,
			fmt.Sprintf("unrecognized currency code: %q", b.Currency)))
	}
	return errs
}

// ValidateSchedule проверяет дедлайн и длительность тендера.
// Дедлайн проверяется относительно now, потому что черновик может
// лежать неопубликованным долго и перепроверяется при публикации.
func ValidateSchedule(deadline time.Time, durationDays int, now time.Time) []*models.ErrorResponse {
	var errs []*models.ErrorResponse
	if !deadline.After(now) {
		errs = append(errs, models.NewErrorResponse(http.StatusBadRequest, models.KindDeadlineInPast,
			"deadline must be strictly in the future"))
	}
	if durationDays < 1 {
		errs = append(errs, models.NewErrorResponse(http.StatusBadRequest, models.KindBadRequest,
			"duration must be at least 1 day"))
	}
	return errs
}

// ValidateProposalText проверяет длину текста предложения.
func ValidateProposalText(text string) *models.ErrorResponse {
	n := utf8.RuneCountInString(text)
	if n < models.ProposalTextMinLen || n > models.ProposalTextMaxLen {
		return models.NewErrorResponse(http.StatusBadRequest, models.KindTextLengthInvalid,
			fmt.Sprintf("proposal text must be between %d and %d characters, got %d",
				models.ProposalTextMinLen, models.ProposalTextMaxLen, n))
	}
	return nil
}

// ValidateBidAmount проверяет ставку против потолка 2 x budget.max.
// Потолок намеренно выше объявленного бюджета: торг выше вилки допустим,
// безудержные ставки - нет.
func ValidateBidAmount(bid decimal.Decimal, budget models.Budget) *models.ErrorResponse {
	if bid.IsNegative() || bid.IsZero() {
		return models.NewErrorResponse(http.StatusBadRequest, models.KindBidOutOfRange,
			"bid amount must be positive")
	}
	limit := budget.Max.Mul(decimal.NewFromInt(2))
	if bid.GreaterThan(limit) {
		return models.NewErrorResponse(http.StatusBadRequest, models.KindBidOutOfRange,
			fmt.Sprintf("bid amount %s exceeds cap %s (2 x budget.max)", bid.String(), limit.String()))
	}
	return nil
}

// ValidateTimeline проверяет, что срок исполнения входит в допустимый набор.
func ValidateTimeline(t models.ProposalTimeline) *models.ErrorResponse {
	if _, ok := models.ValidProposalTimelines[t]; !ok {
		return models.NewErrorResponse(http.StatusBadRequest, models.KindBadRequest,
			fmt.Sprintf("unsupported estimated timeline: %q", t))
	}
	return nil
}
