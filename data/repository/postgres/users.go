package postgres

import (
	"context"
	"log/slog"

	"github.com/KotFed0t/dividend_tracker/internal/converter/dbConverter"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/model/dbModel"
	"github.com/KotFed0t/dividend_tracker/utils"
)

const userColumns = `id, username, email, is_admin, telegram_chat_id, created_at`

func (r *Postgres) CreateUser(ctx context.Context, username, email string, isAdmin bool) (user model.User, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.CreateUser"
	query := `INSERT INTO users(username, email, is_admin) VALUES($1, $2, $3) RETURNING ` + userColumns

	slog.Debug("CreateUser start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("CreateUser failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("CreateUser completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	var dbUser dbModel.User
	err = r.txOrDb(ctx).GetContext(ctx, &dbUser, query, username, email, isAdmin)
	if err != nil {
		return model.User{}, mapErr(err)
	}

	return dbConverter.ConvertUser(dbUser), nil
}

func (r *Postgres) getUser(ctx context.Context, op, where string, arg any) (user model.User, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	slog.Debug(op+" start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query), slog.Any("arg", arg))
	defer func() {
		if err != nil {
			slog.Error(op+" failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug(op+" completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	var dbUser dbModel.User
	err = r.txOrDb(ctx).GetContext(ctx, &dbUser, query, arg)
	if err != nil {
		return model.User{}, mapErr(err)
	}

	return dbConverter.ConvertUser(dbUser), nil
}

func (r *Postgres) GetUserByID(ctx context.Context, userID int64) (model.User, error) {
	return r.getUser(ctx, "Postgres.GetUserByID", `id = $1`, userID)
}

func (r *Postgres) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return r.getUser(ctx, "Postgres.GetUserByUsername", `username = $1`, username)
}

func (r *Postgres) GetUserByChatID(ctx context.Context, chatID int64) (model.User, error) {
	return r.getUser(ctx, "Postgres.GetUserByChatID", `telegram_chat_id = $1`, chatID)
}

// SetTelegramChatID links chatID to the user, moving it off any other user; nil unlinks.
func (r *Postgres) SetTelegramChatID(ctx context.Context, userID int64, chatID *int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.SetTelegramChatID"
	params := map[string]any{
		"userID": userID,
		"chatID": chatID,
	}

	slog.Debug("SetTelegramChatID start", slog.String("rqID", rqID), slog.String("op", op), slog.Any("params", params))
	defer func() {
		if err != nil {
			slog.Error("SetTelegramChatID failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("SetTelegramChatID completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	return r.WithinTransaction(ctx, func(ctx context.Context) error {
		if chatID != nil {
			_, err := r.txOrDb(ctx).ExecContext(ctx, `UPDATE users SET telegram_chat_id = NULL WHERE telegram_chat_id = $1 AND id <> $2`, *chatID, userID)
			if err != nil {
				return err
			}
		}

		res, err := r.txOrDb(ctx).ExecContext(ctx, `UPDATE users SET telegram_chat_id = $1 WHERE id = $2`, chatID, userID)
		if err != nil {
			return mapErr(err)
		}
		return requireAffected(res)
	})
}

func (r *Postgres) ListLinkedUsers(ctx context.Context) (users []model.User, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.ListLinkedUsers"
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_chat_id IS NOT NULL ORDER BY id`

	slog.Debug("ListLinkedUsers start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("ListLinkedUsers failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("ListLinkedUsers completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("count", len(users)))
		}
	}()

	var dbUsers []dbModel.User
	if err = r.txOrDb(ctx).SelectContext(ctx, &dbUsers, query); err != nil {
		return nil, err
	}

	users = make([]model.User, 0, len(dbUsers))
	for _, u := range dbUsers {
		users = append(users, dbConverter.ConvertUser(u))
	}
	return users, nil
}

func (r *Postgres) ListUserIDsWithHoldings(ctx context.Context) (userIDs []int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.ListUserIDsWithHoldings"
	query := `SELECT DISTINCT user_id FROM holdings ORDER BY user_id`

	slog.Debug("ListUserIDsWithHoldings start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("ListUserIDsWithHoldings failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("ListUserIDsWithHoldings completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	err = r.txOrDb(ctx).SelectContext(ctx, &userIDs, query)
	return userIDs, err
}
