package telegram

import (
	"context"
	"testing"

	"github.com/KotFed0t/dividend_tracker/config"
	"github.com/KotFed0t/dividend_tracker/data/repository"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

// fakeContext implements the parts of tele.Context the controller uses.
type fakeContext struct {
	tele.Context
	values   map[string]any
	message  *tele.Message
	callback *tele.Callback
	sent     []any
	edited   []any
}

func newFakeContext(chatID int64, payload string) *fakeContext {
	return &fakeContext{
		values:  map[string]any{"rqID": "test-rq"},
		message: &tele.Message{Payload: payload, Chat: &tele.Chat{ID: chatID}},
	}
}

func (c *fakeContext) Get(key string) any { return c.values[key] }
func (c *fakeContext) Set(key string, val any) { c.values[key] = val }
func (c *fakeContext) Message() *tele.Message { return c.message }
func (c *fakeContext) Chat() *tele.Chat { return c.message.Chat }
func (c *fakeContext) Callback() *tele.Callback { return c.callback }
func (c *fakeContext) Notify(tele.ChatAction) error { return nil }
func (c *fakeContext) Respond(...*tele.CallbackResponse) error { return nil }

func (c *fakeContext) Send(what any, _ ...any) error {
	c.sent = append(c.sent, what)
	return nil
}

func (c *fakeContext) Edit(what any, _ ...any) error {
	c.edited = append(c.edited, what)
	return nil
}

func (c *fakeContext) lastText(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, c.sent)
	text, ok := c.sent[len(c.sent)-1].(string)
	require.True(t, ok, "last message is not text")
	return text
}

type fakeUsers struct {
	linkCode string
	linked   map[int64]model.User
}

func (f *fakeUsers) LinkChat(_ context.Context, code string, chatID int64) (model.User, error) {
	if code != f.linkCode {
		return model.User{}, service.ErrNotFound
	}
	u := model.User{ID: 7, Username: "alice", TelegramChatID: &chatID}
	f.linked[chatID] = u
	return u, nil
}

func (f *fakeUsers) UnlinkChat(_ context.Context, chatID int64) error {
	if _, ok := f.linked[chatID]; !ok {
		return service.ErrNotFound
	}
	delete(f.linked, chatID)
	return nil
}

func (f *fakeUsers) ByChat(_ context.Context, chatID int64) (model.User, error) {
	u, ok := f.linked[chatID]
	if !ok {
		return model.User{}, service.ErrNotFound
	}
	return u, nil
}

type fakeSession struct {
	sessions map[int64]model.ChatSession
}

func (f *fakeSession) GetChatSession(_ context.Context, chatID int64) (model.ChatSession, error) {
	s, ok := f.sessions[chatID]
	if !ok {
		return model.ChatSession{}, repository.ErrNotFound
	}
	return s, nil
}

func (f *fakeSession) SetChatSession(_ context.Context, chatID int64, s model.ChatSession) error {
	f.sessions[chatID] = s
	return nil
}

func (f *fakeSession) DeleteChatSession(_ context.Context, chatID int64) error {
	delete(f.sessions, chatID)
	return nil
}

type fakePortfolio struct {
	summary   model.PortfolioSummary
	report    []byte
	shareErr  error
	gainsYear *int
}

func (f *fakePortfolio) Holdings(context.Context, int64) (model.PortfolioSummary, error) {
	return f.summary, nil
}

func (f *fakePortfolio) RealizedGainsBySymbol(_ context.Context, _ int64, _ string, year *int) (model.RealizedGains, error) {
	f.gainsYear = year
	return model.RealizedGains{Sales: 2}, nil
}

func (f *fakePortfolio) PortfolioReport(context.Context, int64) ([]byte, string, error) {
	return f.report, ".xlsx", nil
}

func (f *fakePortfolio) SharePortfolioReport(context.Context, int64) (string, error) {
	if f.shareErr != nil {
		return "", f.shareErr
	}
	return "https://drive.google.com/file/d/abc/view", nil
}

func newTestController(portfolio *fakePortfolio) (*Controller, *fakeUsers, *fakeSession) {
	cfg := &config.Config{}
	cfg.Portfolio.DefaultCurrency = "CAD"
	cfg.Telegram.HoldingsPerPage = 1
	cfg.Telegram.FileLimitInBytes = 10

	users := &fakeUsers{linkCode: "ABCD1234", linked: map[int64]model.User{}}
	session := &fakeSession{sessions: map[int64]model.ChatSession{}}
	return NewController(cfg, portfolio, users, session), users, session
}

func TestStartLinksChat(t *testing.T) {
	ctrl, users, session := newTestController(&fakePortfolio{})

	c := newFakeContext(42, "ABCD1234")
	require.NoError(t, ctrl.Start(c))

	assert.Contains(t, c.lastText(t), "Linked to alice")
	assert.Contains(t, users.linked, int64(42))
	assert.Equal(t, int64(7), session.sessions[42].UserID)
}

func TestStartWithBadCode(t *testing.T) {
	ctrl, _, session := newTestController(&fakePortfolio{})

	c := newFakeContext(42, "WRONG")
	require.NoError(t, ctrl.Start(c))

	assert.Contains(t, c.lastText(t), "invalid or has expired")
	assert.Empty(t, session.sessions)
}

func TestHoldingsRequiresLinkedChat(t *testing.T) {
	ctrl, _, _ := newTestController(&fakePortfolio{})

	c := newFakeContext(42, "")
	require.NoError(t, ctrl.Holdings(c))

	assert.Equal(t, notLinkedMsg, c.lastText(t))
}

func TestHoldingsPagination(t *testing.T) {
	portfolio := &fakePortfolio{summary: model.PortfolioSummary{Holdings: []model.HoldingView{
		{Stock: model.Stock{Symbol: "AAA"}},
		{Stock: model.Stock{Symbol: "BBB"}},
		{Stock: model.Stock{Symbol: "CCC"}},
	}}}
	ctrl, users, session := newTestController(portfolio)
	users.linked[42] = model.User{ID: 7}

	c := newFakeContext(42, "")
	require.NoError(t, ctrl.Holdings(c))
	assert.Contains(t, c.lastText(t), "AAA")
	assert.Equal(t, 0, session.sessions[42].HoldingPage)

	cb := newFakeContext(42, "")
	cb.callback = &tele.Callback{Data: "1"}
	require.NoError(t, ctrl.HoldingsPage(cb))

	require.Len(t, cb.edited, 1)
	assert.Contains(t, cb.edited[0], "BBB")
	assert.Contains(t, cb.edited[0], "Page 2/3")
	assert.Equal(t, 1, session.sessions[42].HoldingPage)
}

func TestGainsParsesYear(t *testing.T) {
	portfolio := &fakePortfolio{}
	ctrl, users, _ := newTestController(portfolio)
	users.linked[42] = model.User{ID: 7}

	c := newFakeContext(42, "2024")
	require.NoError(t, ctrl.Gains(c))
	require.NotNil(t, portfolio.gainsYear)
	assert.Equal(t, 2024, *portfolio.gainsYear)
	assert.Contains(t, c.lastText(t), "Realized gains in 2024")

	c = newFakeContext(42, "last year")
	require.NoError(t, ctrl.Gains(c))
	assert.Contains(t, c.lastText(t), "Usage: /gains")
}

func TestReportSendsDocumentOrLink(t *testing.T) {
	portfolio := &fakePortfolio{report: []byte("small")}
	ctrl, users, _ := newTestController(portfolio)
	users.linked[42] = model.User{ID: 7}

	c := newFakeContext(42, "")
	require.NoError(t, ctrl.Report(c))
	require.Len(t, c.sent, 1)
	doc, ok := c.sent[0].(*tele.Document)
	require.True(t, ok)
	assert.Contains(t, doc.FileName, ".xlsx")

	portfolio.report = []byte("this report is too large")
	c = newFakeContext(42, "")
	require.NoError(t, ctrl.Report(c))
	assert.Contains(t, c.lastText(t), "drive.google.com")

	portfolio.shareErr = service.ErrNotConfigured
	c = newFakeContext(42, "")
	require.NoError(t, ctrl.Report(c))
	assert.Contains(t, c.lastText(t), "too large to send here")
}

func TestUnlink(t *testing.T) {
	ctrl, users, session := newTestController(&fakePortfolio{})
	users.linked[42] = model.User{ID: 7}
	session.sessions[42] = model.ChatSession{UserID: 7}

	c := newFakeContext(42, "")
	require.NoError(t, ctrl.Unlink(c))

	assert.NotContains(t, users.linked, int64(42))
	assert.Empty(t, session.sessions)
	assert.Contains(t, c.lastText(t), "unlinked")
}
