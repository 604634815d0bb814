// Package bot is the application layer: it wires the dialog engine, catalog,
// blob storage and fulfillment matcher into the Telegram transport.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"schoolbot/core/logger"
	coretelegram "schoolbot/core/telegram"
	"schoolbot/core/telegram/commands"
	"schoolbot/core/telegram/router"
	tgsender "schoolbot/core/telegram/sender"
	"schoolbot/internal/blobstore"
	"schoolbot/internal/catalog"
	"schoolbot/internal/dialog"
	"schoolbot/internal/fulfill"
)

// notifyTarget remembers which request an admin is composing a manual
// notification for.
type notifyTarget struct {
	requestID   int64
	requesterID int64
}

// App owns the bot's domain services and builds the Telegram runtime options.
type App struct {
	cfg     *Config
	store   *catalog.Store
	blobs   *blobstore.Store
	engine  *dialog.Engine
	matcher *fulfill.Matcher
	log     *slog.Logger

	bot        atomic.Pointer[tele.Bot]
	dispatcher atomic.Pointer[tgsender.Dispatcher]

	notifyMu       sync.Mutex
	awaitingNotify map[int64]notifyTarget
}

// New assembles the application on top of an initialized database handle.
func New(cfg *Config, db *sqlx.DB) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bot: nil config")
	}

	blobs, err := blobstore.New(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("bot: storage init: %w", err)
	}

	a := &App{
		cfg:            cfg,
		store:          catalog.NewStore(db),
		blobs:          blobs,
		log:            logger.BOT,
		awaitingNotify: make(map[int64]notifyTarget),
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	a.matcher = fulfill.New(a.store, a, logger.MATCH)
	a.engine = dialog.NewEngine(a.store, blobs, a, a.matcher, a.log)
	return a, nil
}

// TelegramRunOptions builds the registry, routes and middleware chain.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "Запустить бота",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     a.handleCancel,
		Description: "Отменить текущее действие",
	})
	reg.RegisterCommand("/admin", commands.Command{
		Handler:     a.handleAdminPanel,
		Description: "Панель администратора",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.SetTextFallback(a.handleMenuText)
	a.registerRequestCallbacks(reg)

	adminIDs := a.cfg.Core.Telegram.AdminIDs
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminIDs:      adminIDs,
		OnAdminReject: a.handleAdminReject,
	})
	routes = append(routes, router.TextRoutes(a, reg, router.TextOptions{
		UnknownDocument: a.handleStrayUpload,
		UnknownPhoto:    a.handleStrayUpload,
	})...)
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))

	return coretelegram.RunOptions{
		Config:      &a.cfg.Core,
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(&a.cfg.Core, nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.dispatcher.Store(rt.Dispatcher)
			return nil
		},
	}, nil
}

// bindBot captures the bot instance from the first handled update. The
// transport owns construction; the app only borrows the handle for file
// downloads and out-of-band notifications.
func (a *App) bindBot(api tele.API) {
	b, _ := api.(*tele.Bot)
	if b != nil && a.bot.Load() == nil {
		a.bot.Store(b)
	}
}

func (a *App) telebot() *tele.Bot { return a.bot.Load() }

// Open satisfies the dialog engine's file source: it streams an uploaded file
// from Telegram by its file id.
func (a *App) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	b := a.telebot()
	if b == nil {
		return nil, fmt.Errorf("bot: transport not ready")
	}
	rc, err := b.File(&tele.File{FileID: ref})
	if err != nil {
		return nil, fmt.Errorf("bot: download %s: %w", ref, err)
	}
	return rc, nil
}

// sendTo delivers one out-of-band message, through the async dispatcher when
// it is running, with a direct send as fallback.
func (a *App) sendTo(ctx context.Context, userID int64, action, text string) error {
	b := a.telebot()
	if b == nil {
		return fmt.Errorf("bot: transport not ready")
	}
	run := func() error {
		_, err := b.Send(&tele.User{ID: userID}, text)
		return err
	}
	d := a.dispatcher.Load()
	if d == nil {
		return run()
	}
	if err := d.Enqueue(ctx, action, "sendMessage", run); err != nil {
		if errors.Is(err, tgsender.ErrQueueFull) || errors.Is(err, tgsender.ErrQueueClosed) {
			return run()
		}
		return err
	}
	return nil
}

// newRequestNotice renders the admin-facing alert about a fresh request.
func newRequestNotice(req *catalog.Request) string {
	text := fmt.Sprintf(
		"🔔 Новый запрос материала!\n\nЗапрос №%d\n%d класс, %s, %s\nТема: %s",
		req.ID, req.Grade, req.Subject, req.Category, req.Topic,
	)
	if req.Description != nil {
		text += "\nОписание: " + *req.Description
	}
	return text
}

// notifyAdminsNewRequest alerts every configured admin that a request arrived.
// Delivery is best effort: a failed recipient is logged and never blocks the
// remaining ones.
func (a *App) notifyAdminsNewRequest(ctx context.Context, req *catalog.Request) {
	text := newRequestNotice(req)
	for _, id := range a.cfg.Core.Telegram.AdminIDs {
		if err := a.sendTo(ctx, id, "notify.new_request", text); err != nil {
			a.log.Warn("new request notice failed",
				slog.Int64("request_id", req.ID),
				slog.Int64("admin_id", id),
				slog.Any("error", err))
		}
	}
}

// NotifyFulfilled tells a requester their request has been satisfied.
func (a *App) NotifyFulfilled(ctx context.Context, req catalog.Request, m catalog.Material) error {
	b := a.telebot()
	if b == nil {
		return fmt.Errorf("bot: transport not ready")
	}
	text := fmt.Sprintf(
		"🎉 Ваш запрос выполнен!\n\nТема: %s\n%d класс, %s, %s\n\nМатериал уже в каталоге: %s",
		req.Topic, req.Grade, req.Subject, req.Category, MenuBrowse,
	)
	if _, err := b.Send(&tele.User{ID: req.RequesterID}, text); err != nil {
		return fmt.Errorf("bot: notify requester %d: %w", req.RequesterID, err)
	}
	return nil
}

func (a *App) isAdminID(userID int64) bool {
	for _, id := range a.cfg.Core.Telegram.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
