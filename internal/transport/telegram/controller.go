package telegram

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/KotFed0t/dividend_tracker/config"
	"github.com/KotFed0t/dividend_tracker/data/repository"
	"github.com/KotFed0t/dividend_tracker/internal/converter/telebotConverter"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/service"
	"github.com/KotFed0t/dividend_tracker/utils"
	tele "gopkg.in/telebot.v4"
)

const (
	internalErrMsg = "something went wrong, please try again later"
	notLinkedMsg   = "This chat is not linked yet. Create a link code in the app and send /start <code>."
)

type PortfolioService interface {
	Holdings(ctx context.Context, userID int64) (model.PortfolioSummary, error)
	RealizedGainsBySymbol(ctx context.Context, userID int64, symbol string, year *int) (model.RealizedGains, error)
	PortfolioReport(ctx context.Context, userID int64) ([]byte, string, error)
	SharePortfolioReport(ctx context.Context, userID int64) (string, error)
}

type UserService interface {
	LinkChat(ctx context.Context, code string, chatID int64) (model.User, error)
	UnlinkChat(ctx context.Context, chatID int64) error
	ByChat(ctx context.Context, chatID int64) (model.User, error)
}

type Session interface {
	GetChatSession(ctx context.Context, chatID int64) (model.ChatSession, error)
	SetChatSession(ctx context.Context, chatID int64, chatSession model.ChatSession) error
	DeleteChatSession(ctx context.Context, chatID int64) error
}

type Controller struct {
	portfolio        PortfolioService
	users            UserService
	session          Session
	currency         string
	holdingsPerPage  int
	fileLimitInBytes int
	now              func() time.Time
}

func NewController(cfg *config.Config, portfolio PortfolioService, users UserService, session Session) *Controller {
	return &Controller{
		portfolio:        portfolio,
		users:            users,
		session:          session,
		currency:         cfg.Portfolio.DefaultCurrency,
		holdingsPerPage:  cfg.Telegram.HoldingsPerPage,
		fileLimitInBytes: cfg.Telegram.FileLimitInBytes,
		now:              time.Now,
	}
}

// Start links the chat when a code is given, otherwise explains how to.
func (ctrl *Controller) Start(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	code := strings.TrimSpace(c.Message().Payload)
	if code == "" {
		if _, err := ctrl.chatSession(ctx, c); err == nil {
			return c.Send("Welcome back! Try /holdings, /gains or /report.")
		}
		return c.Send(notLinkedMsg)
	}

	user, err := ctrl.users.LinkChat(ctx, code, c.Chat().ID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrInvalidInput) {
			return c.Send("This link code is invalid or has expired.")
		}
		slog.Error("got error from users.LinkChat", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	_ = ctrl.session.SetChatSession(ctx, c.Chat().ID, model.ChatSession{UserID: user.ID})

	return c.Send("✅ Linked to " + user.Username + ". Try /holdings, /gains or /report.")
}

func (ctrl *Controller) Unlink(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	err := ctrl.users.UnlinkChat(ctx, c.Chat().ID)
	if err != nil && !errors.Is(err, service.ErrNotFound) {
		slog.Error("got error from users.UnlinkChat", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	_ = ctrl.session.DeleteChatSession(ctx, c.Chat().ID)

	return c.Send("This chat is unlinked. You will not get alerts here anymore.")
}

func (ctrl *Controller) Holdings(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	chatSession, err := ctrl.chatSessionFromTeleCtx(ctx, c)
	if err != nil {
		return ctrl.sessionErrReply(ctx, c, err)
	}

	text, markup, err := ctrl.holdingsPage(ctx, &chatSession, 0)
	if err != nil {
		return c.Send(internalErrMsg)
	}
	_ = ctrl.session.SetChatSession(ctx, c.Chat().ID, chatSession)

	return c.Send(text, markup)
}

func (ctrl *Controller) HoldingsPage(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	defer func() { _ = c.Respond() }()

	chatSession, err := ctrl.chatSessionFromTeleCtx(ctx, c)
	if err != nil {
		return ctrl.sessionErrReply(ctx, c, err)
	}

	page, err := strconv.Atoi(c.Callback().Data)
	if err != nil {
		page = chatSession.HoldingPage
	}

	text, markup, err := ctrl.holdingsPage(ctx, &chatSession, page)
	if err != nil {
		return c.Send(internalErrMsg)
	}
	_ = ctrl.session.SetChatSession(ctx, c.Chat().ID, chatSession)

	return c.Edit(text, markup)
}

func (ctrl *Controller) holdingsPage(ctx context.Context, chatSession *model.ChatSession, page int) (string, *tele.ReplyMarkup, error) {
	summary, err := ctrl.portfolio.Holdings(ctx, chatSession.UserID)
	if err != nil {
		slog.Error("got error from portfolio.Holdings", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("err", err.Error()))
		return "", nil, err
	}

	text, markup, curPage := telebotConverter.HoldingsResponse(summary, ctrl.currency, page, ctrl.holdingsPerPage)
	chatSession.HoldingPage = curPage
	return text, markup, nil
}

// Gains answers /gains [year].
func (ctrl *Controller) Gains(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	chatSession, err := ctrl.chatSessionFromTeleCtx(ctx, c)
	if err != nil {
		return ctrl.sessionErrReply(ctx, c, err)
	}

	var year *int
	if payload := strings.TrimSpace(c.Message().Payload); payload != "" {
		y, err := strconv.Atoi(payload)
		if err != nil || y < 1900 || y > 9999 {
			return c.Send("Usage: /gains [year], e.g. /gains " + strconv.Itoa(ctrl.now().Year()))
		}
		year = &y
	}

	gains, err := ctrl.portfolio.RealizedGainsBySymbol(ctx, chatSession.UserID, "", year)
	if err != nil {
		slog.Error("got error from portfolio.RealizedGainsBySymbol", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Send(telebotConverter.GainsResponse(gains, ctrl.currency, year))
}

// Report sends the workbook, or a Drive link when it is over the file limit.
func (ctrl *Controller) Report(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	chatSession, err := ctrl.chatSessionFromTeleCtx(ctx, c)
	if err != nil {
		return ctrl.sessionErrReply(ctx, c, err)
	}

	_ = c.Notify(tele.UploadingDocument)

	fileBytes, ext, err := ctrl.portfolio.PortfolioReport(ctx, chatSession.UserID)
	if err != nil {
		slog.Error("got error from portfolio.PortfolioReport", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	if len(fileBytes) <= ctrl.fileLimitInBytes {
		doc := &tele.Document{
			File:     tele.FromReader(bytes.NewReader(fileBytes)),
			FileName: "portfolio_" + ctrl.now().Format("20060102") + ext,
		}
		return c.Send(doc)
	}

	link, err := ctrl.portfolio.SharePortfolioReport(ctx, chatSession.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNotConfigured) {
			return c.Send("The report is too large to send here. Download it from the app instead.")
		}
		slog.Error("got error from portfolio.SharePortfolioReport", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Send("The report is too large to send here, download it from Google Drive:\n" + link)
}

func (ctrl *Controller) chatSessionFromTeleCtx(ctx context.Context, c tele.Context) (model.ChatSession, error) {
	chatSession, ok := c.Get("session").(model.ChatSession)
	if ok {
		return chatSession, nil
	}
	return ctrl.chatSession(ctx, c)
}

// chatSession returns the chat's session, rebuilding it from the linked user
// when it expired. service.ErrNotFound means the chat is not linked.
func (ctrl *Controller) chatSession(ctx context.Context, c tele.Context) (model.ChatSession, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	chatSession, err := ctrl.session.GetChatSession(ctx, c.Chat().ID)
	if err == nil {
		return chatSession, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		slog.Warn("got error from session.GetChatSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
	}

	user, err := ctrl.users.ByChat(ctx, c.Chat().ID)
	if err != nil {
		return model.ChatSession{}, err
	}

	chatSession = model.ChatSession{UserID: user.ID}
	_ = ctrl.session.SetChatSession(ctx, c.Chat().ID, chatSession)
	return chatSession, nil
}

func (ctrl *Controller) sessionErrReply(ctx context.Context, c tele.Context, err error) error {
	if errors.Is(err, service.ErrNotFound) {
		return c.Send(notLinkedMsg)
	}
	slog.Error("can't resolve chat user", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("err", err.Error()))
	return c.Send(internalErrMsg)
}
