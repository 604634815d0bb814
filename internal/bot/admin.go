package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	coretelegram "schoolbot/core/telegram"
	"schoolbot/core/telegram/callbacks"
	"schoolbot/core/telegram/format"
	tghelpers "schoolbot/core/telegram/helpers"
	"schoolbot/core/telegram/keyboard"
	"schoolbot/internal/dialog"
)

// Inline callback keys for the request review screens.
const (
	cbRequestView     = "req_view"
	cbRequestComplete = "req_complete"
	cbRequestDelete   = "req_delete"
	cbRequestNotify   = "req_notify"
	cbRequestBack     = "req_back"
)

const requestListLimit = 10

// handleAdminPanel serves the /admin command. The admin check is enforced by
// the command router.
func (a *App) handleAdminPanel(c tele.Context) error {
	a.bindBot(c.Bot())
	return tghelpers.SendText(c, "⚙️ Панель администратора", &tele.SendOptions{ReplyMarkup: adminMenu()})
}

// handleAdminPanelButton serves the reply-keyboard entry, which bypasses the
// command router and needs its own check.
func (a *App) handleAdminPanelButton(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if !a.resolveUser(ctx, c.Sender().ID).IsAdmin() {
		return tghelpers.SendText(c, msgAdminsOnly)
	}
	return a.handleAdminPanel(c)
}

func (a *App) handleStats(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if !a.resolveUser(ctx, c.Sender().ID).IsAdmin() {
		return tghelpers.SendText(c, msgAdminsOnly)
	}
	stats, err := a.store.Stats(ctx)
	if err != nil {
		a.log.Error("stats query failed", slog.Any("error", err))
		return tghelpers.SendText(c, msgOops)
	}
	text := fmt.Sprintf(
		"📊 Статистика\n\nМатериалов в каталоге: %d\nВсего скачиваний: %d\nПользователей: %d\n\nЗапросы: %d в ожидании, %d выполнено",
		stats.TotalMaterials, stats.TotalDownloads, stats.TotalUsers,
		stats.PendingRequests, stats.CompletedRequests,
	)
	return tghelpers.SendText(c, text, &tele.SendOptions{ReplyMarkup: adminMenu()})
}

// handleRequestList shows recent requests as an inline list.
func (a *App) handleRequestList(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if !a.resolveUser(ctx, c.Sender().ID).IsAdmin() {
		return tghelpers.SendText(c, msgAdminsOnly)
	}
	return a.renderRequestList(c, ctx, false)
}

func (a *App) renderRequestList(c tele.Context, ctx context.Context, edit bool) error {
	views, err := a.store.ListRequests(ctx, requestListLimit)
	if err != nil {
		a.log.Error("request list failed", slog.Any("error", err))
		return tghelpers.SendText(c, msgOops)
	}
	if len(views) == 0 {
		return tghelpers.SendText(c, "📋 Запросов пока нет.", &tele.SendOptions{ReplyMarkup: adminMenu()})
	}

	var (
		pending int
		btns    []keyboard.InlineBtn
	)
	for _, v := range views {
		mark := "✅"
		if v.IsPending() {
			mark = "⏳"
			pending++
		}
		btns = append(btns, keyboard.InlineBtn{
			Text:   fmt.Sprintf("%s №%d · %d кл · %s · %s", mark, v.ID, v.Grade, v.Subject, v.Topic),
			Unique: cbRequestView,
			Data:   strconv.FormatInt(v.ID, 10),
		})
	}
	text := fmt.Sprintf("📋 Последние запросы (в ожидании: %d):", pending)
	markup := keyboard.InlineButtons(btns)
	if edit {
		return c.EditOrSend(text, markup)
	}
	return tghelpers.SendText(c, text, &tele.SendOptions{ReplyMarkup: markup})
}

func (a *App) registerRequestCallbacks(reg *coretelegram.Registry) {
	_ = reg.RegisterCallback(cbRequestView, a.cbShowRequest)
	_ = reg.RegisterCallback(cbRequestComplete, a.cbCompleteRequest)
	_ = reg.RegisterCallback(cbRequestDelete, a.cbDeleteRequest)
	_ = reg.RegisterCallback(cbRequestNotify, a.cbNotifyRequest)
	_ = reg.RegisterCallback(cbRequestBack, func(c tele.Context) error {
		return a.renderRequestList(c, tghelpers.BuildContext(c), true)
	})
}

func (a *App) requireAdminCallback(c tele.Context) (context.Context, bool) {
	ctx := tghelpers.BuildContext(c)
	if !a.resolveUser(ctx, c.Sender().ID).IsAdmin() {
		_ = c.Respond(&tele.CallbackResponse{Text: msgAdminsOnly})
		return ctx, false
	}
	return ctx, true
}

func (a *App) cbShowRequest(c tele.Context) error {
	ctx, ok := a.requireAdminCallback(c)
	if !ok {
		return nil
	}
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return nil
	}
	view, err := a.store.GetRequest(ctx, id)
	if err != nil {
		return c.EditOrSend("Запрос не найден, список мог устареть.")
	}

	who := format.DerefString(view.Username, "")
	if who != "" {
		who = "@" + who
	} else {
		who = format.DerefString(view.FirstName, "неизвестно")
	}
	status := "✅ выполнен"
	if view.IsPending() {
		status = "⏳ в ожидании"
	}
	text := fmt.Sprintf(
		"*Запрос №%d* (%s)\n\nОт: %s\n%d класс, %s, %s\nТема: %s\nОписание: %s\nСоздан: %s",
		view.ID, status, mdSafe(who),
		view.Grade, view.Subject, view.Category, mdSafe(view.Topic),
		mdSafe(format.DerefString(view.Description, "—")),
		view.CreatedAt.Format("02.01.2006 15:04"),
	)

	payload := strconv.FormatInt(view.ID, 10)
	rows := [][]keyboard.InlineBtn{
		{
			{Text: "✅ Выполнить", Unique: cbRequestComplete, Data: payload},
			{Text: "🗑 Удалить", Unique: cbRequestDelete, Data: payload},
		},
		{
			{Text: "📩 Уведомить", Unique: cbRequestNotify, Data: payload},
			{Text: "⬅️ Назад", Unique: cbRequestBack},
		},
	}
	return tghelpers.EditOrSendMD(c, text, keyboard.InlineButtonsRows(rows...))
}

// mdSafe escapes user-supplied text for embedding in Markdown messages.
func mdSafe(s string) string {
	out, err := format.EscapeMarkdown(s, format.MarkdownV1)
	if err != nil {
		return s
	}
	return out
}

func (a *App) cbCompleteRequest(c tele.Context) error {
	ctx, ok := a.requireAdminCallback(c)
	if !ok {
		return nil
	}
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return nil
	}
	view, verr := a.store.GetRequest(ctx, id)
	if err := a.store.CompleteRequest(ctx, id); err != nil {
		return c.EditOrSend(fmt.Sprintf("Запрос №%d уже выполнен или удалён.", id))
	}
	a.log.Info("request completed manually",
		slog.Int64("request_id", id), slog.Int64("admin_id", c.Sender().ID))

	if verr == nil {
		if b := a.telebot(); b != nil {
			_, serr := b.Send(&tele.User{ID: view.RequesterID}, fmt.Sprintf(
				"🎉 Ваш запрос выполнен!\n\nТема: %s\n\nЗагляните в каталог: %s",
				view.Topic, MenuBrowse,
			))
			if serr != nil {
				a.log.Warn("manual completion notice failed",
					slog.Int64("request_id", id),
					slog.Int64("requester_id", view.RequesterID),
					slog.Any("error", serr))
			}
		}
	}
	return a.renderRequestList(c, ctx, true)
}

func (a *App) cbDeleteRequest(c tele.Context) error {
	ctx, ok := a.requireAdminCallback(c)
	if !ok {
		return nil
	}
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return nil
	}
	if err := a.store.DeleteRequest(ctx, id); err != nil {
		a.log.Error("request delete failed",
			slog.Int64("request_id", id), slog.Any("error", err))
		return c.EditOrSend(msgOops)
	}
	a.log.Info("request deleted",
		slog.Int64("request_id", id), slog.Int64("admin_id", c.Sender().ID))
	return a.renderRequestList(c, ctx, true)
}

// cbNotifyRequest arms manual-notification mode: the admin's next text
// message goes to the requester.
func (a *App) cbNotifyRequest(c tele.Context) error {
	ctx, ok := a.requireAdminCallback(c)
	if !ok {
		return nil
	}
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return nil
	}
	view, err := a.store.GetRequest(ctx, id)
	if err != nil {
		return c.EditOrSend("Запрос не найден, список мог устареть.")
	}

	a.notifyMu.Lock()
	a.awaitingNotify[c.Sender().ID] = notifyTarget{requestID: view.ID, requesterID: view.RequesterID}
	a.notifyMu.Unlock()

	return c.EditOrSend(fmt.Sprintf(
		"Напишите сообщение для автора запроса №%d.\n\nДля отмены отправьте «%s».",
		view.ID, dialog.LabelCancel,
	))
}

func (a *App) takeNotifyTarget(userID int64) (notifyTarget, bool) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()
	t, ok := a.awaitingNotify[userID]
	if ok {
		delete(a.awaitingNotify, userID)
	}
	return t, ok
}

func (a *App) clearNotifyTarget(userID int64) {
	a.notifyMu.Lock()
	delete(a.awaitingNotify, userID)
	a.notifyMu.Unlock()
}

// sendManualNotify forwards the admin's drafted message to the requester.
func (a *App) sendManualNotify(c tele.Context, target notifyTarget) error {
	text := strings.TrimSpace(c.Text())
	if text == "" || dialog.Classify(text).Kind == dialog.KindCancel {
		return tghelpers.SendText(c, "Отправка отменена.", &tele.SendOptions{ReplyMarkup: adminMenu()})
	}

	b := a.telebot()
	if b == nil {
		return tghelpers.SendText(c, msgOops)
	}
	_, err := b.Send(&tele.User{ID: target.requesterID}, fmt.Sprintf(
		"📩 Сообщение от администратора по запросу №%d:\n\n%s", target.requestID, text,
	))
	if err != nil {
		a.log.Warn("manual notification failed",
			slog.Int64("request_id", target.requestID),
			slog.Int64("requester_id", target.requesterID),
			slog.Any("error", err))
		return tghelpers.SendText(c, "Не удалось доставить сообщение. Возможно, пользователь заблокировал бота.",
			&tele.SendOptions{ReplyMarkup: adminMenu()})
	}
	a.log.Info("manual notification sent",
		slog.Int64("request_id", target.requestID),
		slog.Int64("requester_id", target.requesterID))
	return tghelpers.SendText(c, "✅ Сообщение отправлено.", &tele.SendOptions{ReplyMarkup: adminMenu()})
}
