package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func TestSubjectsForGradeRules(t *testing.T) {
	for grade := MinGrade; grade <= MaxGrade; grade++ {
		subjects, err := SubjectsForGrade(grade)
		require.NoError(t, err)

		assert.True(t, contains(subjects, SubjectGeography), "grade %d must have geography", grade)
		assert.Equal(t, grade >= 6, contains(subjects, SubjectPhysics), "physics for grade %d", grade)
		assert.Equal(t, grade >= 7, contains(subjects, SubjectChemistry), "chemistry for grade %d", grade)

		if grade <= 6 {
			assert.True(t, contains(subjects, SubjectMath), "grade %d", grade)
			assert.False(t, contains(subjects, SubjectAlgebra), "grade %d", grade)
			assert.False(t, contains(subjects, SubjectGeometry), "grade %d", grade)
		} else {
			assert.False(t, contains(subjects, SubjectMath), "grade %d", grade)
			assert.True(t, contains(subjects, SubjectAlgebra), "grade %d", grade)
			assert.True(t, contains(subjects, SubjectGeometry), "grade %d", grade)
		}
	}
}

func TestSubjectsForGradeSevenExactOrder(t *testing.T) {
	subjects, err := SubjectsForGrade(7)
	require.NoError(t, err)

	want := []string{
		SubjectAlgebra, SubjectGeometry,
		"Русский", "Литература", "История",
		"Греческий", "Латынь", "Биология",
		"Английский", "Немецкий",
		SubjectGeography, SubjectPhysics, SubjectChemistry,
	}
	assert.Equal(t, want, subjects)
}

func TestSubjectsForGradeStable(t *testing.T) {
	first, err := SubjectsForGrade(9)
	require.NoError(t, err)
	second, err := SubjectsForGrade(9)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSubjectsForGradeInvalid(t *testing.T) {
	for _, g := range []int{0, 4, 12, -1} {
		_, err := SubjectsForGrade(g)
		assert.Error(t, err, "grade %d", g)
	}
}

func TestParseGrade(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"5 класс", 5, true},
		{"11 класс", 11, true},
		{"7", 7, true},
		{"  9 класс ", 9, true},
		{"4 класс", 0, false},
		{"12 класс", 0, false},
		{"класс", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseGrade(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, "input %q", tc.in)
		}
	}
}

func TestValidSubject(t *testing.T) {
	assert.True(t, ValidSubject(5, SubjectMath))
	assert.False(t, ValidSubject(5, SubjectAlgebra))
	assert.False(t, ValidSubject(5, SubjectChemistry))
	assert.True(t, ValidSubject(8, SubjectChemistry))
	assert.False(t, ValidSubject(99, SubjectMath))
}

func TestValidCategory(t *testing.T) {
	for _, c := range Categories {
		assert.True(t, ValidCategory(c))
	}
	assert.False(t, ValidCategory("Журналы"))
}
