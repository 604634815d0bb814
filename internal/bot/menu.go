package bot

import (
	tele "gopkg.in/telebot.v4"

	"schoolbot/core/telegram/keyboard"
)

// Main menu button labels.
const (
	MenuBrowse  = "📚 Получить материал"
	MenuRequest = "✏️ Запросить материал"
	MenuSearch  = "🔍 Поиск"
	MenuAdmin   = "⚙️ Админ-панель"
)

// Admin panel button labels.
const (
	AdminAdd      = "➕ Добавить материал"
	AdminRequests = "📋 Просмотреть запросы"
	AdminDelete   = "🗑 Удалить материал"
	AdminStats    = "📊 Статистика"
	AdminToMain   = "🏠 В главное меню"
)

func mainMenu(isAdmin bool) *tele.ReplyMarkup {
	rows := [][]string{
		{MenuBrowse},
		{MenuRequest, MenuSearch},
	}
	if isAdmin {
		rows = append(rows, []string{MenuAdmin})
	}
	return keyboard.ReplyButtons(rows...)
}

func adminMenu() *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{AdminAdd, AdminDelete},
		[]string{AdminRequests, AdminStats},
		[]string{AdminToMain},
	)
}
