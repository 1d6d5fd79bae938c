package notificationService

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	users   []model.User
	alerts  map[int64][]model.DividendAlert
	windows [][2]time.Time
}

func (f *fakeRepo) ListLinkedUsers(ctx context.Context) ([]model.User, error) {
	return f.users, nil
}

func (f *fakeRepo) UpcomingDividends(ctx context.Context, userID int64, from, to time.Time) ([]model.DividendAlert, error) {
	f.windows = append(f.windows, [2]time.Time{from, to})
	return f.alerts[userID], nil
}

type fakeNotifier struct {
	sent map[int64][]model.DividendAlert
	fail map[int64]bool
}

func (f *fakeNotifier) NotifyDividends(ctx context.Context, user model.User, alerts []model.DividendAlert) error {
	if f.fail[user.ID] {
		return errors.New("chat not found")
	}
	if f.sent == nil {
		f.sent = map[int64][]model.DividendAlert{}
	}
	f.sent[user.ID] = alerts
	return nil
}

func alert(stockID int64, symbol, amount string, exDate time.Time, shares int64) model.DividendAlert {
	return model.DividendAlert{
		Stock:    model.Stock{ID: stockID, Symbol: symbol},
		Dividend: model.Dividend{StockID: stockID, Amount: decimal.RequireFromString(amount), ExDividendDate: exDate},
		Shares:   shares,
	}
}

func TestDividendAlerts(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeRepo{
		users: []model.User{{ID: 1}, {ID: 2}, {ID: 3}},
		alerts: map[int64][]model.DividendAlert{
			1: {
				alert(10, "TD.TO", "1.02", day.AddDate(0, 0, 2), 30),
				alert(11, "ENB.TO", "0.915", day.AddDate(0, 0, 3), 7),
				alert(10, "TD.TO", "1.05", day.AddDate(0, 0, 6), 30),
			},
			3: {alert(10, "TD.TO", "1.02", day.AddDate(0, 0, 2), 5)},
		},
	}
	notifier := &fakeNotifier{fail: map[int64]bool{3: true}}

	s := New(repo, notifier, 7)
	s.now = func() time.Time { return day.Add(8 * time.Hour) }

	progress := &model.JobProgress{}
	require.NoError(t, s.DividendAlerts(context.Background(), progress))

	assert.Equal(t, [2]time.Time{day, day.AddDate(0, 0, 7)}, repo.windows[0])

	sent := notifier.sent[1]
	require.Len(t, sent, 2)
	assert.Equal(t, "TD.TO", sent[0].Stock.Symbol)
	assert.Equal(t, "30.6", sent[0].Payment.String())
	assert.Equal(t, "6.4", sent[1].Payment.String())

	assert.NotContains(t, notifier.sent, int64(2))
	assert.Equal(t, 1, progress.Succeeded)
	assert.Equal(t, []string{"3"}, progress.FailedItems)
}
