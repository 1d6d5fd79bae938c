package notificationService

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/utils"
	"github.com/shopspring/decimal"
)

type Repository interface {
	ListLinkedUsers(ctx context.Context) ([]model.User, error)
	UpcomingDividends(ctx context.Context, userID int64, from, to time.Time) ([]model.DividendAlert, error)
}

type Notifier interface {
	NotifyDividends(ctx context.Context, user model.User, alerts []model.DividendAlert) error
}

type NotificationService struct {
	repo      Repository
	notifier  Notifier
	daysAhead int
	now       func() time.Time
}

func New(repo Repository, notifier Notifier, daysAhead int) *NotificationService {
	return &NotificationService{
		repo:      repo,
		notifier:  notifier,
		daysAhead: daysAhead,
		now:       time.Now,
	}
}

// DividendAlerts sends every linked user one message with the next ex-dividend
// date of each held stock going ex within the configured window.
func (s *NotificationService) DividendAlerts(ctx context.Context, progress *model.JobProgress) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "NotificationService.DividendAlerts"

	slog.Info("DividendAlerts start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		if err != nil {
			slog.Error("DividendAlerts failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Info("DividendAlerts completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("notified", progress.Succeeded), slog.Int("failed", progress.Failed))
		}
	}()

	users, err := s.repo.ListLinkedUsers(ctx)
	if err != nil {
		return err
	}

	y, m, d := s.now().Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, s.daysAhead)

	for _, user := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		alerts, err := s.repo.UpcomingDividends(ctx, user.ID, from, to)
		if err != nil {
			progress.Failure(strconv.FormatInt(user.ID, 10))
			continue
		}

		alerts = nextPerStock(alerts)
		if len(alerts) == 0 {
			continue
		}

		for i := range alerts {
			alerts[i].Payment = alerts[i].Dividend.Amount.Mul(decimal.NewFromInt(alerts[i].Shares)).RoundBank(2)
		}

		if err = s.notifier.NotifyDividends(ctx, user, alerts); err != nil {
			slog.Warn("can't notify user", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", user.ID), slog.String("err", err.Error()))
			progress.Failure(strconv.FormatInt(user.ID, 10))
			continue
		}

		progress.Success()
	}

	return nil
}

// nextPerStock keeps the earliest alert of each stock. Input is ordered by ex date.
func nextPerStock(alerts []model.DividendAlert) []model.DividendAlert {
	seen := make(map[int64]struct{}, len(alerts))
	res := make([]model.DividendAlert, 0, len(alerts))
	for _, a := range alerts {
		if _, ok := seen[a.Stock.ID]; ok {
			continue
		}
		seen[a.Stock.ID] = struct{}{}
		res = append(res, a)
	}
	return res
}

// LogNotifier is used when no chat transport is configured.
type LogNotifier struct{}

func (LogNotifier) NotifyDividends(ctx context.Context, user model.User, alerts []model.DividendAlert) error {
	slog.Info(
		"dividend alerts not delivered, no notifier configured",
		slog.String("rqID", utils.GetRequestIDFromCtx(ctx)),
		slog.Int64("userID", user.ID),
		slog.Int("alerts", len(alerts)),
	)
	return nil
}
