package dialog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyControlLabels(t *testing.T) {
	cases := []struct {
		text string
		kind Kind
	}{
		{"Назад", KindBack},
		{"Назад к категориям", KindBack},
		{"Назад к категории", KindBack},
		{"Отмена", KindCancel},
		{"/cancel", KindCancel},
		{"Нет, отменить", KindCancel},
		{"Да, удалить", KindConfirm},
		{"Пропустить описание", KindSkip},
		{"  Назад  ", KindBack},
		{"Законы Ньютона", KindFreeText},
		{"", KindFreeText},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, Classify(tc.text).Kind, "text %q", tc.text)
	}
}

func TestClassifyTrimsFreeText(t *testing.T) {
	in := Classify("  Глагол to be  ")
	assert.Equal(t, KindFreeText, in.Kind)
	assert.Equal(t, "Глагол to be", in.Value)
}

func TestSelectionValue(t *testing.T) {
	assert.Equal(t, "Физика", Select("Физика").selectionValue())
	assert.Equal(t, "x", Intent{Kind: KindFreeText, Value: "x"}.selectionValue())
	assert.Empty(t, Intent{Kind: KindBack, Value: "x"}.selectionValue())
}

func TestGradePromptOffersAllGradesAndBack(t *testing.T) {
	p := gradePrompt("Выберите ваш класс:")
	assert.Len(t, p.Options, 8)
	assert.Equal(t, []string{"5 класс"}, p.Options[0])
	assert.Equal(t, []string{LabelBack}, p.Options[len(p.Options)-1])
}

func TestSubjectPromptPairsRows(t *testing.T) {
	p := subjectPrompt("Выберите предмет:", 9)
	// 13 subjects for grade 9 make seven rows plus the back row.
	assert.Len(t, p.Options, 8)
	assert.Equal(t, []string{"Алгебра", "Геометрия"}, p.Options[0])
	assert.Equal(t, []string{"Химия"}, p.Options[6])
	assert.Equal(t, []string{LabelBack}, p.Options[7])
}
