package dialog

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"schoolbot/internal/catalog"
	"schoolbot/internal/taxonomy"
)

// Minimum rune length for a requested topic.
const minRequestTopicRunes = 3

func requestPrompts() ladderPrompts {
	return ladderPrompts{
		grade: gradePrompt("Запрос нового материала\n\nДля какого класса нужен материал?"),
		subject: func(grade int) Prompt {
			return subjectPrompt(fmt.Sprintf("Класс: %d\n\nПо какому предмету нужен материал?", grade), grade)
		},
		category: categoryPrompt("Какой тип материала нужен?"),
	}
}

// stepRequest advances the request-new-material flow by one intent.
func (e *Engine) stepRequest(ctx context.Context, s *Session, in Intent) (Result, error) {
	c := s.request
	if c == nil {
		return e.expire(s), nil
	}
	p := requestPrompts()

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
			"%s\n\nНапишите тему, по которой нужен материал (например: 'Законы Ньютона', 'Глагол to be'):",
			keyLine(c.Grade, c.Subject, c.Category)))), nil

	case StateEnterTopic:
		if in.Kind == KindBack {
			c.Category = ""
			s.state = StateSelectCategory
			return prompted(p.category), nil
		}
		topic := strings.TrimSpace(in.selectionValue())
		if in.Kind != KindFreeText || utf8.RuneCountInString(topic) < minRequestTopicRunes {
			return prompted(textPrompt(fmt.Sprintf(
				"Тема слишком короткая, нужно минимум %d символа. Напишите тему текстом:",
				minRequestTopicRunes))), nil
		}
		c.Topic = topic
		s.state = StateEnterDesc
		return prompted(descriptionPrompt(topic)), nil

	case StateEnterDesc:
		switch in.Kind {
		case KindBack:
			c.Topic = ""
			s.state = StateEnterTopic
			return prompted(textPrompt("Напишите тему, по которой нужен материал:")), nil
		case KindSkip:
			c.Description = nil
		case KindFreeText:
			desc := strings.TrimSpace(in.Value)
			if desc == "" {
				return prompted(descriptionPrompt(c.Topic)), nil
			}
			c.Description = &desc
		default:
			return prompted(descriptionPrompt(c.Topic)), nil
		}

		req := catalog.Request{
			RequesterID: s.userID,
			Grade:       c.Grade,
			Subject:     c.Subject,
			Category:    c.Category,
			Topic:       c.Topic,
			Description: c.Description,
			Status:      catalog.StatusPending,
		}
		id, err := e.catalog.CreateRequest(ctx, req)
		if err != nil {
			return Result{}, fmt.Errorf("create request: %w", err)
		}
		req.ID = id
		return finished(Outcome{Kind: OutcomeRequestCreated, Request: &req}), nil
	}
	return e.expire(s), nil
}
