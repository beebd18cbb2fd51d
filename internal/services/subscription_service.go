package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "tally/internal/errors"
	"tally/internal/logger"
	"tally/internal/models"
	"tally/internal/pagination"
)

// maxCatchUpBills bounds how many overdue bills one scheduler pass will
// materialize per rule. A malformed rule far in the past truncates silently
// instead of spinning.
const maxCatchUpBills = 12

// subscriptionService handles recurring bill rules and the scheduler pass.
type subscriptionService struct {
	db             *gorm.DB
	accountService AccountServicer
	reconciler     Reconciler
}

// NewSubscriptionService creates a new SubscriptionServicer.
func NewSubscriptionService(db *gorm.DB, accountService AccountServicer, reconciler Reconciler) SubscriptionServicer {
	return &subscriptionService{db: db, accountService: accountService, reconciler: reconciler}
}

// CreateSubscription creates a recurring rule. The runner date starts at the
// anchor: the first scheduler pass after the anchor comes due materializes
// the first bill.
func (s *subscriptionService) CreateSubscription(userID string, input SubscriptionInput) (*models.Subscription, error) {
	if err := s.validateInput(userID, &input); err != nil {
		return nil, err
	}

	sub := &models.Subscription{
		UserID:          userID,
		Name:            input.Name,
		Amount:          input.Amount,
		Currency:        input.Currency,
		Cycle:           input.Cycle,
		AnchorDate:      input.AnchorDate,
		RunnerDate:      input.AnchorDate,
		IsActive:        true,
		WeekdaysOnly:    input.WeekdaysOnly,
		SourceAccountID: input.SourceAccountID,
	}

	if err := s.db.Create(sub).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return sub, nil
}

// UpdateSubscription edits a rule. Moving the anchor rebases the runner when
// the new anchor is in the future; an elapsed anchor leaves the runner where
// the scheduler last advanced it.
func (s *subscriptionService) UpdateSubscription(userID, subscriptionID string, input SubscriptionInput, isActive *bool) (*models.Subscription, error) {
	sub, err := s.GetSubscriptionByID(userID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := s.validateInput(userID, &input); err != nil {
		return nil, err
	}

	if !input.AnchorDate.Equal(sub.AnchorDate) && input.AnchorDate.After(time.Now()) {
		sub.RunnerDate = input.AnchorDate
	}
	sub.Name = input.Name
	sub.Amount = input.Amount
	sub.Currency = input.Currency
	sub.Cycle = input.Cycle
	sub.AnchorDate = input.AnchorDate
	sub.WeekdaysOnly = input.WeekdaysOnly
	sub.SourceAccountID = input.SourceAccountID
	if isActive != nil {
		sub.IsActive = *isActive
	}

	if err := s.db.Save(sub).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return sub, nil
}

// DeleteSubscription removes a rule on user action. Rules are never deleted
// automatically; transactions it materialized stay in the log.
func (s *subscriptionService) DeleteSubscription(userID, subscriptionID string) error {
	sub, err := s.GetSubscriptionByID(userID, subscriptionID)
	if err != nil {
		return err
	}

	if err := s.db.Delete(sub).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// GetUserSubscriptions returns a paginated list of the user's rules.
func (s *subscriptionService) GetUserSubscriptions(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Subscription], error) {
	page.Defaults()

	base := s.db.Model(&models.Subscription{}).Where("user_id = ?", userID)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var subs []models.Subscription
	if err := base.Order("runner_date ASC").Scopes(pagination.Paginate(page)).Find(&subs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(subs, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetSubscriptionByID retrieves one rule owned by the user.
func (s *subscriptionService) GetSubscriptionByID(userID, subscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.Where("id = ? AND user_id = ?", subscriptionID, userID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSubscriptionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &sub, nil
}

// RunSchedulerPass materializes every due bill across the user's active
// rules: while a rule's runner date is not in the future, insert one due
// transaction dated at the runner and advance the runner one cycle. Each
// rule is capped at maxCatchUpBills per pass. Returns the number of bills
// created.
//
// Materialized bills are inserted directly as settled expense records; there
// is no pending state or fuzzy-match merge against manual entries.
func (s *subscriptionService) RunSchedulerPass(userID string, now time.Time) (int, error) {
	var subs []models.Subscription
	if err := s.db.Where("user_id = ? AND is_active = ?", userID, true).Find(&subs).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	created := 0
	for i := range subs {
		sub := &subs[i]
		matured := 0

		for n := 0; n < maxCatchUpBills && !sub.RunnerDate.After(now); n++ {
			bill := &models.Transaction{
				UserID:          userID,
				Type:            models.TransactionTypeExpense,
				CategoryGroup:   models.CategoryUncategorized,
				Subcategory:     sub.Name,
				Amount:          sub.Amount,
				Currency:        sub.Currency,
				Date:            sub.RunnerDate,
				Description:     sub.Name,
				Tags:            []string{"subscription"},
				SourceAccountID: sub.SourceAccountID,
				SubscriptionID:  &sub.ID,
			}
			if err := s.db.Create(bill).Error; err != nil {
				logger.Get().Errorw("failed to materialize due bill",
					"subscription_id", sub.ID, "due", sub.RunnerDate, "error", err)
				break
			}

			sub.RunnerDate = nextCycleDate(sub.RunnerDate, sub.Cycle, sub.AnchorDate.Day())
			if sub.WeekdaysOnly {
				sub.RunnerDate = rollToWeekday(sub.RunnerDate)
			}
			matured++
		}

		if matured == 0 {
			continue
		}
		created += matured
		if err := s.db.Model(sub).Update("runner_date", sub.RunnerDate).Error; err != nil {
			return created, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	if created > 0 {
		if err := s.reconciler.Reconcile(userID); err != nil {
			logger.Get().Errorw("reconciliation after scheduler pass failed",
				"user_id", userID, "error", err)
		}
	}

	return created, nil
}

// NextDueDate returns the effective next due date of a rule for display. It
// never mutates the runner.
func (s *subscriptionService) NextDueDate(userID, subscriptionID string, now time.Time) (time.Time, error) {
	sub, err := s.GetSubscriptionByID(userID, subscriptionID)
	if err != nil {
		return time.Time{}, err
	}
	return EffectiveNextDate(sub, now), nil
}

// EffectiveNextDate computes the next due date without touching RunnerDate.
// A future runner is returned (weekday-corrected). Otherwise the elapsed
// cycles are added in one step, followed by a defensive forward-stepping loop
// guaranteeing the result strictly exceeds now.
func EffectiveNextDate(sub *models.Subscription, now time.Time) time.Time {
	anchorDay := sub.AnchorDate.Day()

	next := sub.RunnerDate
	if next.After(now) {
		if sub.WeekdaysOnly {
			next = rollToWeekday(next)
		}
		return next
	}

	// Jump by the elapsed whole cycles first, then let the loop below cover
	// the remainder. The jump must undershoot: overshooting a clamped date
	// (runner Jan 31, now Feb 10) would skip the Feb 28 due date entirely.
	switch sub.Cycle {
	case models.CycleWeekly:
		if weeks := int(now.Sub(next).Hours() / (24 * 7)); weeks > 0 {
			next = next.AddDate(0, 0, 7*weeks)
		}
	case models.CycleYearly:
		if years := now.Year() - next.Year(); years > 0 {
			next = addYearsClamped(next, years, anchorDay)
		}
	default:
		if months := (now.Year()-next.Year())*12 + int(now.Month()-next.Month()); months > 0 {
			next = addMonthsClamped(next, months, anchorDay)
		}
	}

	for !next.After(now) {
		next = nextCycleDate(next, sub.Cycle, anchorDay)
	}

	if sub.WeekdaysOnly {
		next = rollToWeekday(next)
	}
	return next
}

// nextCycleDate advances a due date by one cycle unit. An unrecognized cycle
// behaves as monthly.
func nextCycleDate(d time.Time, cycle models.SubscriptionCycle, anchorDay int) time.Time {
	switch cycle {
	case models.CycleWeekly:
		return d.AddDate(0, 0, 7)
	case models.CycleYearly:
		return addYearsClamped(d, 1, anchorDay)
	default:
		return addMonthsClamped(d, 1, anchorDay)
	}
}

// addMonthsClamped adds months landing on the anchor's day-of-month, clamped
// to the target month's last day. Plain AddDate would normalize Jan 31 + 1
// month into March; a rule anchored on the 31st must bill on Feb 28 instead.
func addMonthsClamped(d time.Time, months, anchorDay int) time.Time {
	year, month, _ := d.Date()
	first := time.Date(year, month+time.Month(months), 1, d.Hour(), d.Minute(), d.Second(), 0, d.Location())
	day := anchorDay
	if last := daysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

// addYearsClamped adds years, clamping Feb 29 anchors on non-leap years.
func addYearsClamped(d time.Time, years, anchorDay int) time.Time {
	year, month, _ := d.Date()
	first := time.Date(year+years, month, 1, d.Hour(), d.Minute(), d.Second(), 0, d.Location())
	day := anchorDay
	if last := daysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// rollToWeekday steps forward one day at a time until the date is a weekday.
func rollToWeekday(d time.Time) time.Time {
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func (s *subscriptionService) validateInput(userID string, input *SubscriptionInput) error {
	if input.Name == "" {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "subscription name is required")
	}
	if input.Amount.IsNegative() || input.Amount.IsZero() {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
	}
	if input.Currency == "" {
		input.Currency = "USD"
	}
	if input.AnchorDate.IsZero() {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "anchor date is required")
	}
	switch input.Cycle {
	case models.CycleWeekly, models.CycleMonthly, models.CycleYearly:
	case "":
		input.Cycle = models.CycleMonthly
	default:
		// Malformed cycles behave as monthly rather than failing the rule.
		logger.Get().Warnw("unrecognized subscription cycle, defaulting to monthly", "cycle", input.Cycle)
		input.Cycle = models.CycleMonthly
	}
	if input.SourceAccountID != nil {
		if _, err := s.accountService.GetAccountByID(userID, *input.SourceAccountID); err != nil {
			return err
		}
	}
	return nil
}
