package dialog

import (
	"context"
	"errors"
	"fmt"

	"schoolbot/internal/catalog"
	"schoolbot/internal/taxonomy"
)

func browsePrompts() ladderPrompts {
	return ladderPrompts{
		grade: gradePrompt("Выберите ваш класс:"),
		subject: func(grade int) Prompt {
			return subjectPrompt(fmt.Sprintf("Класс: %d\n\nВыберите предмет:", grade), grade)
		},
		category: categoryPrompt("Выберите категорию материалов:"),
	}
}

// stepBrowse advances the browse/download flow by one intent.
func (e *Engine) stepBrowse(ctx context.Context, s *Session, in Intent) (Result, error) {
	c := s.browse
	if c == nil {
		return e.expire(s), nil
	}
	p := browsePrompts()

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
			// Stay on the category keyboard so the user can try another shelf.
			return prompted(categoryPrompt(fmt.Sprintf(
				"В разделе '%s' по предмету '%s' пока нет материалов.\n\nВыберите другую категорию или запросите материал через меню.",
				cat, c.Subject))), nil
		}
		c.Category = cat
		c.Topics = topicsOf(listings)
		s.state = StateSelectTopic
		return prompted(topicPrompt("Выберите тему:", c.Topics)), nil

	case StateSelectTopic:
		if in.Kind == KindBack {
			c.Category = ""
			c.Topics = nil
			s.state = StateSelectCategory
			return prompted(p.category), nil
		}
		topic := in.selectionValue()
		if !containsTopic(c.Topics, topic) {
			return prompted(topicPrompt("Выберите тему:", c.Topics)), nil
		}
		key := catalog.Key{Grade: c.Grade, Subject: c.Subject, Category: c.Category, Topic: topic}
		m, err := e.catalog.FetchMaterial(ctx, key)
		if errors.Is(err, catalog.ErrNotFound) {
			// Deleted between listing and pick.
			return finished(Outcome{Kind: OutcomeUnavailable}), nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("fetch material: %w", err)
		}
		if _, err := e.catalog.IncrementDownloads(ctx, key); err != nil && !errors.Is(err, catalog.ErrNotFound) {
			return Result{}, fmt.Errorf("count download: %w", err)
		}
		m.Downloads++
		return finished(Outcome{Kind: OutcomeDelivery, Material: &m}), nil
	}
	return e.expire(s), nil
}

func topicsOf(listings []catalog.Listing) []string {
	topics := make([]string, 0, len(listings))
	seen := make(map[string]struct{}, len(listings))
	for _, l := range listings {
		if _, ok := seen[l.Topic]; ok {
			continue
		}
		seen[l.Topic] = struct{}{}
		topics = append(topics, l.Topic)
	}
	return topics
}

func containsTopic(topics []string, t string) bool {
	for _, known := range topics {
		if known == t {
			return true
		}
	}
	return false
}
