package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"schoolbot/core/logger"
	tghelpers "schoolbot/core/telegram/helpers"
	"schoolbot/core/telegram/keyboard"
	"schoolbot/internal/catalog"
	"schoolbot/internal/dialog"
)

const (
	msgChooseAction = "Выберите действие:"
	msgOops         = "Что-то пошло не так. Попробуйте ещё раз."
	msgAdminsOnly   = "Эта функция доступна только администраторам."
)

// handleStart registers the member and shows the main menu.
func (a *App) handleStart(c tele.Context) error {
	a.bindBot(c.Bot())
	ctx := tghelpers.BuildContext(c)
	sender := c.Sender()

	user, err := a.store.RegisterUser(ctx, sender.ID, sender.Username, sender.FirstName)
	if err != nil {
		a.log.Error("user registration failed",
			slog.Int64("user_id", sender.ID), slog.Any("error", err))
		return tghelpers.SendText(c, msgOops)
	}
	if a.isAdminID(sender.ID) && !user.IsAdmin() {
		if err := a.store.PromoteToAdmin(ctx, sender.ID); err != nil {
			a.log.Error("admin promotion failed",
				slog.Int64("user_id", sender.ID), slog.Any("error", err))
		} else {
			user.Role = catalog.RoleAdmin
		}
	}

	name := sender.FirstName
	if name == "" {
		name = "друг"
	}
	greeting := fmt.Sprintf(
		"Привет, %s! 👋\n\nЯ школьный бот с учебными материалами: конспекты, билеты, шпаргалки и учебники по всем предметам.\n\n%s",
		name, msgChooseAction,
	)
	return tghelpers.SendText(c, greeting, &tele.SendOptions{ReplyMarkup: mainMenu(user.IsAdmin())})
}

// handleCancel aborts any active flow or pending admin input.
func (a *App) handleCancel(c tele.Context) error {
	a.bindBot(c.Bot())
	userID := c.Sender().ID
	a.engine.Reset(userID)
	a.clearNotifyTarget(userID)
	return a.showMainMenu(c, "Действие отменено.\n\n"+msgChooseAction)
}

func (a *App) handleAdminReject(c tele.Context) error {
	return tghelpers.SendText(c, msgAdminsOnly)
}

// handleMenuText maps main-menu and admin-panel button presses onto actions.
// It only runs when no flow is active; in-flow text goes to ManagerHandler.
func (a *App) handleMenuText(c tele.Context) error {
	a.bindBot(c.Bot())
	switch c.Text() {
	case MenuBrowse:
		return a.startFlow(c, dialog.FlowBrowse)
	case MenuRequest:
		return a.startFlow(c, dialog.FlowRequest)
	case MenuSearch:
		return tghelpers.SendText(c, "🛠 Поиск по каталогу пока в разработке.")
	case MenuAdmin:
		return a.handleAdminPanelButton(c)
	case AdminAdd:
		return a.startFlow(c, dialog.FlowAdminAdd)
	case AdminDelete:
		return a.startFlow(c, dialog.FlowAdminDelete)
	case AdminRequests:
		return a.handleRequestList(c)
	case AdminStats:
		return a.handleStats(c)
	case AdminToMain:
		return a.showMainMenu(c, msgChooseAction)
	}
	return a.showMainMenu(c, "Я не понял сообщение. "+msgChooseAction)
}

// handleStrayUpload answers files sent outside the admin upload flow.
func (a *App) handleStrayUpload(c tele.Context) error {
	return a.showMainMenu(c, "Я не ожидаю файл. "+msgChooseAction)
}

func (a *App) startFlow(c tele.Context, flow dialog.Flow) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID
	user := a.resolveUser(ctx, userID)

	p, err := a.engine.StartFlow(ctx, userID, flow, user.IsAdmin())
	if errors.Is(err, dialog.ErrPermissionDenied) {
		return tghelpers.SendText(c, msgAdminsOnly)
	}
	if err != nil {
		a.log.Error("flow start failed",
			slog.Int64("user_id", userID), slog.String("flow", string(flow)), slog.Any("error", err))
		return tghelpers.SendText(c, msgOops)
	}
	return a.sendPrompt(c, &p)
}

// resolveUser loads the member record, falling back to the config allow-list
// when the row is missing (e.g. /start was never sent).
func (a *App) resolveUser(ctx context.Context, userID int64) catalog.User {
	user, err := tghelpers.CurrentUser[catalog.User](ctx, a.store, userID)
	if err != nil {
		user = catalog.User{TelegramID: userID, Role: catalog.RoleStudent}
		if !errors.Is(err, catalog.ErrNotFound) {
			a.log.Warn("user lookup failed",
				slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}
	if a.isAdminID(userID) {
		user.Role = catalog.RoleAdmin
	}
	return user
}

func (a *App) showMainMenu(c tele.Context, text string) error {
	ctx := tghelpers.BuildContext(c)
	user := a.resolveUser(ctx, c.Sender().ID)
	return tghelpers.SendText(c, text, &tele.SendOptions{ReplyMarkup: mainMenu(user.IsAdmin())})
}

// InProgress reports whether the user's next message belongs to an active
// flow or a pending admin notification draft. Part of the router FSM contract.
func (a *App) InProgress(userID int64) bool {
	if a.engine.InProgress(userID) {
		return true
	}
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()
	_, ok := a.awaitingNotify[userID]
	return ok
}

// ManagerHandler feeds one in-flow update through the dialog engine and
// renders the result. Part of the router FSM contract.
func (a *App) ManagerHandler(c tele.Context) error {
	a.bindBot(c.Bot())
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	if target, ok := a.takeNotifyTarget(userID); ok {
		return a.sendManualNotify(c, target)
	}

	res, err := a.engine.HandleInput(ctx, userID, intentFrom(c))
	if errors.Is(err, dialog.ErrNoActiveFlow) {
		return a.showMainMenu(c, msgChooseAction)
	}
	if err != nil {
		a.log.Error("dialog step failed",
			slog.Int64("user_id", userID), slog.Any("error", err))
		return tghelpers.SendText(c, msgOops)
	}

	if res.Prompt != nil {
		if err := a.sendPrompt(c, res.Prompt); err != nil {
			return err
		}
	}
	if res.Outcome != nil {
		return a.renderOutcome(c, ctx, res.Outcome)
	}
	return nil
}

// intentFrom classifies one inbound update for the dialog engine.
func intentFrom(c tele.Context) dialog.Intent {
	if m := c.Message(); m != nil {
		if m.Document != nil {
			return dialog.Attached(dialog.Attachment{
				Ref:  m.Document.FileID,
				Name: m.Document.FileName,
				Size: m.Document.FileSize,
			})
		}
		if m.Photo != nil {
			return dialog.Attached(dialog.Attachment{
				Ref:   m.Photo.FileID,
				Size:  m.Photo.FileSize,
				Photo: true,
			})
		}
	}
	return dialog.Classify(c.Text())
}

func (a *App) sendPrompt(c tele.Context, p *dialog.Prompt) error {
	if p == nil {
		return nil
	}
	switch {
	case p.RemoveKeyboard:
		return tghelpers.SendText(c, p.Text, &tele.SendOptions{ReplyMarkup: keyboard.RemoveKeyboard()})
	case len(p.Options) > 0:
		return tghelpers.SendText(c, p.Text, &tele.SendOptions{ReplyMarkup: keyboard.ReplyButtons(p.Options...)})
	default:
		return tghelpers.SendText(c, p.Text)
	}
}

func (a *App) renderOutcome(c tele.Context, ctx context.Context, o *dialog.Outcome) error {
	switch o.Kind {
	case dialog.OutcomeCancelled:
		return a.showMainMenu(c, "Действие отменено.\n\n"+msgChooseAction)

	case dialog.OutcomeSessionExpired:
		return a.showMainMenu(c, "Сессия устарела, начните заново.\n\n"+msgChooseAction)

	case dialog.OutcomeUnavailable:
		return a.showMainMenu(c, "Материал не найден. Возможно, его только что удалили.\n\n"+msgChooseAction)

	case dialog.OutcomeStorageError:
		return a.showMainMenu(c, storageErrorText(o.Err)+"\n\n"+msgChooseAction)

	case dialog.OutcomeDelivery:
		return a.deliverMaterial(c, ctx, o.Material)

	case dialog.OutcomeRequestCreated:
		req := o.Request
		text := fmt.Sprintf(
			"✅ Запрос №%d принят!\n\nТема: %s\n%d класс, %s, %s\n\nКак только материал появится, я пришлю уведомление.",
			req.ID, req.Topic, req.Grade, req.Subject, req.Category,
		)
		logger.Info(ctx, "bot", "request.created",
			slog.Int64("request_id", req.ID),
			slog.Int64("user_id", req.RequesterID),
		)
		a.notifyAdminsNewRequest(ctx, req)
		return a.showMainMenu(c, text)

	case dialog.OutcomeMaterialAdded:
		m := o.Material
		text := fmt.Sprintf(
			"✅ Материал добавлен!\n\nТема: %s\n%d класс, %s, %s\nФайл: %s",
			m.Topic, m.Grade, m.Subject, m.Category, m.DisplayName,
		)
		if o.Matched > 0 {
			text += fmt.Sprintf("\n\n🎯 Закрыто запросов: %d, авторы уведомлены.", o.Matched)
		}
		logger.Info(ctx, "bot", "material.added",
			slog.Int64("material_id", m.ID),
			slog.Int("matched", o.Matched),
		)
		return a.showMainMenu(c, text)

	case dialog.OutcomeMaterialDeleted:
		m := o.Material
		text := fmt.Sprintf("🗑 Материал удалён.\n\nТема: %s\nФайл: %s", m.Topic, m.DisplayName)
		if !o.BlobRemoved {
			text += "\n\nФайл на диске уже отсутствовал."
		}
		logger.Info(ctx, "bot", "material.deleted",
			slog.Int64("material_id", m.ID),
			slog.Bool("blob_removed", o.BlobRemoved),
		)
		return a.showMainMenu(c, text)
	}
	return nil
}

// storageErrorText reports a blob write failure to the acting admin with a
// truncated diagnostic.
func storageErrorText(err error) string {
	text := "Не удалось сохранить файл. Попробуйте ещё раз."
	if err != nil {
		text += "\n\nПричина: " + logger.SanitizeLimit(err.Error(), 200)
	}
	return text
}

// deliverMaterial sends the stored file to the user with the catalog caption.
func (a *App) deliverMaterial(c tele.Context, ctx context.Context, m *catalog.Material) error {
	f, err := a.blobs.Open(m.StoragePath)
	if err != nil {
		a.log.Error("material blob missing",
			slog.Int64("material_id", m.ID),
			slog.String("path", m.StoragePath),
			slog.Any("error", err))
		return a.showMainMenu(c, "Файл материала недоступен. Сообщите администратору.\n\n"+msgChooseAction)
	}
	defer f.Close()

	doc := &tele.Document{
		File:     tele.FromReader(f),
		FileName: m.DisplayName,
		Caption: fmt.Sprintf(
			"📚 %s\n%d класс, %s, %s\n\nСкачиваний: %d\n\nУспешной подготовки!",
			m.Topic, m.Grade, m.Subject, m.Category, m.Downloads,
		),
	}
	if err := c.Send(doc); err != nil {
		a.log.Error("material delivery failed",
			slog.Int64("material_id", m.ID), slog.Any("error", err))
		return tghelpers.SendText(c, msgOops)
	}
	logger.Info(ctx, "bot", "material.delivered",
		slog.Int64("material_id", m.ID),
		slog.Int64("downloads", m.Downloads),
	)
	return a.showMainMenu(c, msgChooseAction)
}
