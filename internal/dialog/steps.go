package dialog

import (
	"fmt"

	"schoolbot/internal/taxonomy"
)

// The first three states of every flow walk the same taxonomy ladder. These
// helpers advance a shared selection struct and hand back the next prompt, so
// each flow only supplies its own headers. Invalid input re-emits the current
// prompt unchanged; the session does not move.

type ladderPrompts struct {
	grade    Prompt
	subject  func(grade int) Prompt
	category Prompt
}

// stepGrade consumes input in StateSelectGrade. Back at the entry state
// abandons the flow.
func stepGrade(s *Session, sel *selection, in Intent, p ladderPrompts) Result {
	if in.Kind == KindBack {
		return finished(Outcome{Kind: OutcomeCancelled})
	}
	g, ok := taxonomy.ParseGrade(in.selectionValue())
	if !ok {
		return prompted(p.grade)
	}
	sel.Grade = g
	s.state = StateSelectSubject
	return prompted(p.subject(g))
}

// stepSubject consumes input in StateSelectSubject. Back returns to grade
// selection and discards the chosen grade.
func stepSubject(s *Session, sel *selection, in Intent, p ladderPrompts) Result {
	if in.Kind == KindBack {
		sel.Grade = 0
		s.state = StateSelectGrade
		return prompted(p.grade)
	}
	subj := in.selectionValue()
	if !taxonomy.ValidSubject(sel.Grade, subj) {
		return prompted(p.subject(sel.Grade))
	}
	sel.Subject = subj
	s.state = StateSelectCategory
	return prompted(p.category)
}

// stepCategoryBack handles Back in StateSelectCategory: return to subject
// selection, discarding the chosen subject.
func stepCategoryBack(s *Session, sel *selection, p ladderPrompts) Result {
	sel.Subject = ""
	s.state = StateSelectSubject
	return prompted(p.subject(sel.Grade))
}

// keyLine renders the selection path the way confirmations display it.
func keyLine(grade int, subject, category string) string {
	return fmt.Sprintf("%d класс, %s, %s", grade, subject, category)
}
