package bot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "schoolbot/core/config"
	"schoolbot/internal/catalog"
)

type recordHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *recordHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordHandler) WithGroup(string) slog.Handler      { return h }

func TestNewRequestNotice(t *testing.T) {
	desc := "нужны ответы"
	req := &catalog.Request{
		ID: 12, Grade: 8, Subject: "История", Category: "Билеты к зачету",
		Topic: "Крестовые походы", Description: &desc,
	}

	text := newRequestNotice(req)
	assert.Contains(t, text, "Новый запрос материала!")
	assert.Contains(t, text, "№12")
	assert.Contains(t, text, "8 класс, История, Билеты к зачету")
	assert.Contains(t, text, "Крестовые походы")
	assert.Contains(t, text, "нужны ответы")

	req.Description = nil
	assert.NotContains(t, newRequestNotice(req), "Описание")
}

func TestNotifyAdminsNewRequestAttemptsEveryAdmin(t *testing.T) {
	rec := &recordHandler{}
	a := &App{
		cfg: &Config{Core: coreconfig.Config{
			Telegram: coreconfig.TelegramConfig{AdminIDs: []int64{10, 20, 30}},
		}},
		log:            slog.New(rec),
		awaitingNotify: make(map[int64]notifyTarget),
	}

	// No transport bound, so every send fails; each admin must still be
	// attempted instead of the first failure aborting the loop.
	a.notifyAdminsNewRequest(context.Background(), &catalog.Request{
		ID: 1, Grade: 9, Subject: "Физика", Category: "Конспекты", Topic: "Оптика",
	})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.records, 3)
	for _, r := range rec.records {
		assert.Equal(t, slog.LevelWarn, r.Level)
	}
}

func TestStorageErrorText(t *testing.T) {
	withErr := storageErrorText(errors.New("disk full"))
	assert.Contains(t, withErr, "Не удалось сохранить файл")
	assert.Contains(t, withErr, "disk full")

	plain := storageErrorText(nil)
	assert.NotContains(t, plain, "Причина")
}
