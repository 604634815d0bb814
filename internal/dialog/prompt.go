package dialog

import (
	"fmt"

	"schoolbot/internal/taxonomy"
)

// Prompt is the transport-neutral payload the engine emits for a state: a
// text body plus an optional fixed option set. Rendering (reply keyboards,
// retries) is the delivery collaborator's concern.
type Prompt struct {
	Text string
	// Options are keyboard rows; nil means the state expects free text.
	Options [][]string
	// RemoveKeyboard asks the renderer to drop any previously shown options.
	RemoveKeyboard bool
}

func chunkRows(items []string, perRow int) [][]string {
	if perRow <= 1 {
		rows := make([][]string, 0, len(items))
		for _, it := range items {
			rows = append(rows, []string{it})
		}
		return rows
	}
	var rows [][]string
	for i := 0; i < len(items); i += perRow {
		end := i + perRow
		if end > len(items) {
			end = len(items)
		}
		rows = append(rows, items[i:end])
	}
	return rows
}

func gradePrompt(header string) Prompt {
	rows := chunkRows(taxonomy.GradeLabels(), 1)
	rows = append(rows, []string{LabelBack})
	return Prompt{Text: header, Options: rows}
}

func subjectPrompt(header string, grade int) Prompt {
	subjects, err := taxonomy.SubjectsForGrade(grade)
	if err != nil {
		subjects = nil
	}
	rows := chunkRows(subjects, 2)
	rows = append(rows, []string{LabelBack})
	return Prompt{Text: header, Options: rows}
}

func categoryPrompt(header string) Prompt {
	rows := chunkRows(taxonomy.Categories, 1)
	rows = append(rows, []string{LabelBack})
	return Prompt{Text: header, Options: rows}
}

func topicPrompt(header string, topics []string) Prompt {
	rows := chunkRows(topics, 3)
	rows = append(rows, []string{LabelBackCategories})
	return Prompt{Text: header, Options: rows}
}

func textPrompt(text string) Prompt {
	return Prompt{Text: text, RemoveKeyboard: true}
}

func confirmDeletePrompt(text string) Prompt {
	return Prompt{Text: text, Options: [][]string{
		{LabelConfirmDelete, LabelCancelDelete},
		{LabelBack},
	}}
}

func descriptionPrompt(topic string) Prompt {
	text := fmt.Sprintf(
		"Тема: %s\n\nДобавьте описание или требования к материалу (например: 'Нужны задачи с решениями', 'Конспект по всей теме'):\n\nИли нажмите '%s'",
		topic, LabelSkipDesc)
	return Prompt{Text: text, Options: [][]string{
		{LabelSkipDesc},
		{LabelBackCategory},
	}}
}
