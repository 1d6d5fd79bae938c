package tgbot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/KotFed0t/dividend_tracker/config"
	"github.com/KotFed0t/dividend_tracker/internal/converter/telebotConverter"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/model/tg/tgCallback"
	"github.com/KotFed0t/dividend_tracker/internal/transport/telegram"
	customMW "github.com/KotFed0t/dividend_tracker/internal/transport/telegram/middleware"
	"github.com/KotFed0t/dividend_tracker/utils"
	tele "gopkg.in/telebot.v4"
	"gopkg.in/telebot.v4/middleware"
)

type TGBot struct {
	bot  *tele.Bot
	ctrl *telegram.Controller
}

func New(cfg *config.Config, ctrl *telegram.Controller) (*TGBot, error) {
	settings := tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: cfg.Telegram.UpdTimeout},
	}

	b, err := tele.NewBot(settings)
	if err != nil {
		slog.Error("error while tele.NewBot", slog.String("err", err.Error()))
		return nil, err
	}

	return &TGBot{bot: b, ctrl: ctrl}, nil
}

func (b *TGBot) Start() {
	b.bot.Use(middleware.Recover(), customMW.Logger())

	b.setupRoutes()

	go b.bot.Start()
	slog.Info("tgbot started!")
}

func (b *TGBot) Stop() {
	slog.Info("start stopping tgbot")
	b.bot.Stop()
	slog.Info("tgbot stopped")
}

func (b *TGBot) setupRoutes() {
	b.bot.Handle("/start", b.ctrl.Start)
	b.bot.Handle("/holdings", b.ctrl.Holdings)
	b.bot.Handle("/gains", b.ctrl.Gains)
	b.bot.Handle("/report", b.ctrl.Report)
	b.bot.Handle("/unlink", b.ctrl.Unlink)

	b.bot.Handle("\f"+tgCallback.HoldingsPage, b.ctrl.HoldingsPage)

	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		return c.Send("Commands: /holdings, /gains [year], /report, /unlink")
	})
}

// NotifyDividends sends upcoming dividend payments to the user's linked chat.
func (b *TGBot) NotifyDividends(ctx context.Context, user model.User, alerts []model.DividendAlert) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	if user.TelegramChatID == nil {
		return fmt.Errorf("user %d has no linked chat", user.ID)
	}

	_, err := b.bot.Send(tele.ChatID(*user.TelegramChatID), telebotConverter.DividendAlertsMessage(alerts))
	if err != nil {
		slog.Error("failed to send dividend alerts", slog.String("rqID", rqID), slog.Int64("userID", user.ID), slog.String("err", err.Error()))
		return err
	}
	return nil
}
