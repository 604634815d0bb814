// Package taxonomy defines the fixed grade/subject/category hierarchy the
// school curriculum uses. Everything here is static reference data; the
// ordering of returned lists drives keyboard rendering and must stay stable.
package taxonomy

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// MinGrade is the lowest supported school grade.
	MinGrade = 5
	// MaxGrade is the highest supported school grade.
	MaxGrade = 11
)

// Subject names. The school teaches in Russian, so the canonical values are
// the Russian labels shown on keyboards.
const (
	SubjectMath      = "Математика"
	SubjectAlgebra   = "Алгебра"
	SubjectGeometry  = "Геометрия"
	SubjectGeography = "География"
	SubjectPhysics   = "Физика"
	SubjectChemistry = "Химия"
)

var coreSubjects = []string{
	"Русский", "Литература", "История",
	"Греческий", "Латынь", "Биология",
	"Английский", "Немецкий",
}

// Categories is the fixed set of material categories, in display order.
var Categories = []string{
	"Конспекты",
	"Билеты к зачету",
	"Шпаргалки",
	"Учебники",
}

// ValidGrade reports whether g is a supported school grade.
func ValidGrade(g int) bool {
	return g >= MinGrade && g <= MaxGrade
}

// ValidCategory reports whether c is one of the fixed material categories.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}

// SubjectsForGrade returns the ordered subject list taught in the given grade.
// Grades 5-6 get the combined math course; from grade 7 it splits into algebra
// and geometry. Physics starts in grade 6, chemistry in grade 7.
func SubjectsForGrade(grade int) ([]string, error) {
	if !ValidGrade(grade) {
		return nil, fmt.Errorf("taxonomy: grade %d outside %d-%d", grade, MinGrade, MaxGrade)
	}

	subjects := make([]string, 0, len(coreSubjects)+5)
	if grade <= 6 {
		subjects = append(subjects, SubjectMath)
	} else {
		subjects = append(subjects, SubjectAlgebra, SubjectGeometry)
	}
	subjects = append(subjects, coreSubjects...)
	subjects = append(subjects, SubjectGeography)
	if grade >= 6 {
		subjects = append(subjects, SubjectPhysics)
	}
	if grade >= 7 {
		subjects = append(subjects, SubjectChemistry)
	}
	return subjects, nil
}

// ValidSubject reports whether the subject is taught in the given grade.
func ValidSubject(grade int, subject string) bool {
	subjects, err := SubjectsForGrade(grade)
	if err != nil {
		return false
	}
	for _, s := range subjects {
		if s == subject {
			return true
		}
	}
	return false
}

// GradeLabel renders the keyboard label for a grade ("7 класс").
func GradeLabel(grade int) string {
	return fmt.Sprintf("%d класс", grade)
}

// GradeLabels returns keyboard labels for every supported grade in order.
func GradeLabels() []string {
	labels := make([]string, 0, MaxGrade-MinGrade+1)
	for g := MinGrade; g <= MaxGrade; g++ {
		labels = append(labels, GradeLabel(g))
	}
	return labels
}

// ParseGrade extracts the grade number from a keyboard label such as
// "7 класс" or a bare "7".
func ParseGrade(label string) (int, bool) {
	fields := strings.Fields(strings.TrimSpace(label))
	if len(fields) == 0 {
		return 0, false
	}
	g, err := strconv.Atoi(fields[0])
	if err != nil || !ValidGrade(g) {
		return 0, false
	}
	return g, true
}
