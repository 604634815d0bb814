package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"unicode/utf8"

	"schoolbot/internal/blobstore"
	"schoolbot/internal/catalog"
	"schoolbot/internal/taxonomy"
)

// Minimum rune length for an upload topic.
const minUploadTopicRunes = 2

func adminAddPrompts() ladderPrompts {
	return ladderPrompts{
		grade: gradePrompt("Добавление нового материала\n\nДля какого класса материал?"),
		subject: func(grade int) Prompt {
			return subjectPrompt(fmt.Sprintf("Класс: %d\n\nПо какому предмету материал?", grade), grade)
		},
		category: categoryPrompt("Выберите категорию материала:"),
	}
}

// stepAdminAdd advances the admin upload flow by one intent.
func (e *Engine) stepAdminAdd(ctx context.Context, s *Session, in Intent) (Result, error) {
	c := s.adminAdd
	if c == nil {
		return e.expire(s), nil
	}
	p := adminAddPrompts()

	switch s.state {
	case StateSelectGrade:
		return stepGrade(s, &c.selection, in, p), nil

	case StateSelectSubject:
		return stepSubject(s, &c.selection, in, p), nil

	case StateSelectCategory:
		if in.Kind == KindBack {
			return stepCategoryBack(s, &c.selection, p), nil
		}
		cat := in.selectionValue()
		if !taxonomy.ValidCategory(cat) {
			return prompted(p.category), nil
		}
		c.Category = cat
		s.state = StateEnterTopic
		return prompted(textPrompt(fmt.Sprintf(
			"%s\n\nНапишите тему материала (она станет кнопкой в каталоге):",
			keyLine(c.Grade, c.Subject, c.Category)))), nil

	case StateEnterTopic:
		if in.Kind == KindBack {
			c.Category = ""
			s.state = StateSelectCategory
			return prompted(p.category), nil
		}
		topic := strings.TrimSpace(in.selectionValue())
		if in.Kind != KindFreeText || utf8.RuneCountInString(topic) < minUploadTopicRunes {
			return prompted(textPrompt(fmt.Sprintf(
				"Тема слишком короткая, нужно минимум %d символа. Напишите тему текстом:",
				minUploadTopicRunes))), nil
		}
		c.Topic = topic
		s.state = StateAwaitFile
		return prompted(textPrompt(fmt.Sprintf(
			"Тема: %s\n\nТеперь отправьте файл (документ или фото):", topic))), nil

	case StateAwaitFile:
		if in.Kind == KindBack {
			c.Topic = ""
			s.state = StateEnterTopic
			return prompted(textPrompt("Напишите тему материала:")), nil
		}
		if in.Kind != KindAttachment || in.Attachment == nil {
			return prompted(textPrompt("Отправьте файл документом или фото:")), nil
		}
		return e.storeUpload(ctx, s, c, *in.Attachment)
	}
	return e.expire(s), nil
}

// storeUpload writes the attachment to blob storage, records the material and
// reconciles pending requests. The blob is written first; a failed catalog
// insert rolls it back so storage never holds orphans.
func (e *Engine) storeUpload(ctx context.Context, s *Session, c *AdminAddContext, a Attachment) (Result, error) {
	name := a.Name
	if a.Photo || strings.TrimSpace(name) == "" {
		name = blobstore.PhotoName()
	}

	src, err := e.files.Open(ctx, a.Ref)
	if err != nil {
		e.log.Error("upload fetch failed", slog.String("ref", a.Ref), slog.Any("error", err))
		return finished(Outcome{Kind: OutcomeStorageError, Err: err}), nil
	}
	defer src.Close()

	saved, err := e.blobs.Save(ctx, c.Grade, c.Subject, c.Category, name, src)
	if err != nil {
		e.log.Error("upload store failed", slog.String("name", name), slog.Any("error", err))
		return finished(Outcome{Kind: OutcomeStorageError, Err: err}), nil
	}

	m := catalog.Material{
		Grade:       c.Grade,
		Subject:     c.Subject,
		Category:    c.Category,
		Topic:       c.Topic,
		StoragePath: saved.Path,
		DisplayName: saved.Name,
		ByteSize:    saved.Size,
		UploadedBy:  s.userID,
	}
	id, err := e.catalog.InsertMaterial(ctx, m)
	if err != nil {
		if _, rerr := e.blobs.Remove(saved.Path); rerr != nil {
			e.log.Warn("orphan blob left behind", slog.String("path", saved.Path), slog.Any("error", rerr))
		}
		return Result{}, fmt.Errorf("insert material: %w", err)
	}
	m.ID = id

	matched, err := e.matcher.Resolve(ctx, m)
	if err != nil {
		// The material is stored either way; matching can be retried by a
		// later upload of the same key.
		e.log.Error("request matching failed", slog.Int64("material_id", id), slog.Any("error", err))
	}
	return finished(Outcome{Kind: OutcomeMaterialAdded, Material: &m, Matched: matched}), nil
}
