package dialog

import "strings"

// Kind enumerates the closed set of input intents the state machine accepts.
// Raw transport input is classified into one of these before any flow logic
// runs, so the dialog never branches on literal prompt strings.
type Kind int

const (
	// KindFreeText is plain typed text; selection states treat the value as
	// the chosen option, free-text states as the entered value.
	KindFreeText Kind = iota
	// KindSelect is an explicit selection from a previously offered option set.
	KindSelect
	// KindBack asks to return to the previous state of the active flow.
	KindBack
	// KindCancel abandons the active flow entirely.
	KindCancel
	// KindConfirm approves a pending destructive action.
	KindConfirm
	// KindSkip declines an optional free-text entry.
	KindSkip
	// KindAttachment is an uploaded document or photo.
	KindAttachment
)

// Attachment describes an uploaded file by its transport reference. Ref must
// stay resolvable until the flow's terminal state stores the bytes.
type Attachment struct {
	Ref   string
	Name  string
	Size  int64
	Photo bool
}

// Intent is one classified inbound event.
type Intent struct {
	Kind       Kind
	Value      string
	Attachment *Attachment
}

// Keyboard control phrases. These match the button labels the prompts offer.
const (
	LabelBack           = "Назад"
	LabelBackCategories = "Назад к категориям"
	LabelBackCategory   = "Назад к категории"
	LabelCancel         = "Отмена"
	LabelConfirmDelete  = "Да, удалить"
	LabelCancelDelete   = "Нет, отменить"
	LabelSkipDesc       = "Пропустить описание"
)

// Classify maps raw message text onto an intent. Reply keyboards deliver
// presses as plain text, so control labels are recognized here; everything
// else is free text.
func Classify(text string) Intent {
	switch strings.TrimSpace(text) {
	case LabelBack, LabelBackCategories, LabelBackCategory:
		return Intent{Kind: KindBack}
	case LabelCancel, "/cancel", LabelCancelDelete:
		return Intent{Kind: KindCancel}
	case LabelConfirmDelete:
		return Intent{Kind: KindConfirm}
	case LabelSkipDesc:
		return Intent{Kind: KindSkip}
	}
	return Intent{Kind: KindFreeText, Value: strings.TrimSpace(text)}
}

// Select builds a selection intent, used for inline option callbacks.
func Select(value string) Intent {
	return Intent{Kind: KindSelect, Value: value}
}

// Attached builds an attachment intent.
func Attached(a Attachment) Intent {
	return Intent{Kind: KindAttachment, Attachment: &a}
}

// selectionValue returns the option value carried by a select or free-text
// intent, empty otherwise.
func (in Intent) selectionValue() string {
	if in.Kind == KindSelect || in.Kind == KindFreeText {
		return in.Value
	}
	return ""
}
