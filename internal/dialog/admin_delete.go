package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"schoolbot/internal/catalog"
	"schoolbot/internal/taxonomy"
)

func adminDeletePrompts() ladderPrompts {
	return ladderPrompts{
		grade: gradePrompt("Удаление материала\n\nДля какого класса удалить материал?"),
		subject: func(grade int) Prompt {
			return subjectPrompt(fmt.Sprintf("Класс: %d\n\nПо какому предмету?", grade), grade)
		},
		category: categoryPrompt("Из какой категории удалить материал?"),
	}
}

// stepAdminDelete advances the admin delete flow by one intent.
func (e *Engine) stepAdminDelete(ctx context.Context, s *Session, in Intent) (Result, error) {
	c := s.adminDelete
	if c == nil {
		return e.expire(s), nil
	}
	p := adminDeletePrompts()

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
		listings, err := e.catalog.ListMaterials(ctx, c.Grade, c.Subject, cat)
		if err != nil {
			return Result{}, fmt.Errorf("list materials: %w", err)
		}
		if len(listings) == 0 {
			res := finished(Outcome{Kind: OutcomeUnavailable})
			res.Prompt = &Prompt{
				Text: fmt.Sprintf("В разделе '%s' по предмету '%s' нет материалов для удаления.",
					cat, c.Subject),
				RemoveKeyboard: true,
			}
			return res, nil
		}
		c.Category = cat
		c.Topics = topicsOf(listings)
		s.state = StateSelectTopic
		return prompted(topicPrompt("Какой материал удалить?", c.Topics)), nil

	case StateSelectTopic:
		if in.Kind == KindBack {
			c.Category = ""
			c.Topics = nil
			s.state = StateSelectCategory
			return prompted(p.category), nil
		}
		topic := in.selectionValue()
		if !containsTopic(c.Topics, topic) {
			return prompted(topicPrompt("Какой материал удалить?", c.Topics)), nil
		}
		key := catalog.Key{Grade: c.Grade, Subject: c.Subject, Category: c.Category, Topic: topic}
		m, err := e.catalog.FetchMaterial(ctx, key)
		if errors.Is(err, catalog.ErrNotFound) {
			return finished(Outcome{Kind: OutcomeUnavailable}), nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("fetch material: %w", err)
		}
		c.Material = &m
		s.state = StateConfirmDelete
		return prompted(confirmDeletePrompt(fmt.Sprintf(
			"Удалить материал?\n\n%s\nТема: %s\nФайл: %s\nСкачиваний: %d",
			keyLine(m.Grade, m.Subject, m.Category), m.Topic, m.DisplayName, m.Downloads))), nil

	case StateConfirmDelete:
		switch in.Kind {
		case KindBack:
			c.Material = nil
			s.state = StateSelectTopic
			return prompted(topicPrompt("Какой материал удалить?", c.Topics)), nil
		case KindConfirm:
			if c.Material == nil {
				return e.expire(s), nil
			}
			deleted, err := e.catalog.DeleteMaterial(ctx, c.Material.ID)
			if errors.Is(err, catalog.ErrNotFound) {
				// Another admin got there first.
				return finished(Outcome{Kind: OutcomeUnavailable}), nil
			}
			if err != nil {
				return Result{}, fmt.Errorf("delete material: %w", err)
			}
			removed, rerr := e.blobs.Remove(deleted.StoragePath)
			if rerr != nil {
				e.log.Warn("blob removal failed",
					slog.String("path", deleted.StoragePath), slog.Any("error", rerr))
			}
			return finished(Outcome{Kind: OutcomeMaterialDeleted, Material: &deleted, BlobRemoved: removed}), nil
		default:
			if c.Material == nil {
				return e.expire(s), nil
			}
			m := c.Material
			return prompted(confirmDeletePrompt(fmt.Sprintf(
				"Удалить материал?\n\n%s\nТема: %s\nФайл: %s\nСкачиваний: %d",
				keyLine(m.Grade, m.Subject, m.Category), m.Topic, m.DisplayName, m.Downloads))), nil
		}
	}
	return e.expire(s), nil
}
