package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeMarkdownV1(t *testing.T) {
	out, err := EscapeMarkdown("a_b*c`d[e", MarkdownV1)
	require.NoError(t, err)
	assert.Equal(t, `a\_b\*c\`+"`"+`d\[e`, out)
}

func TestEscapeMarkdownV2(t *testing.T) {
	out, err := EscapeMarkdown("1+1=2 (точно!)", MarkdownV2)
	require.NoError(t, err)
	assert.Equal(t, `1\+1\=2 \(точно\!\)`, out)
}

func TestEscapeMarkdownPlainTextUntouched(t *testing.T) {
	out, err := EscapeMarkdown("Законы Ньютона", MarkdownV2)
	require.NoError(t, err)
	assert.Equal(t, "Законы Ньютона", out)
}

func TestEscapeMarkdownUnknownVersion(t *testing.T) {
	_, err := EscapeMarkdown("x", 3)
	require.Error(t, err)
}

func TestDerefString(t *testing.T) {
	s := "значение"
	assert.Equal(t, "значение", DerefString(&s, "—"))
	assert.Equal(t, "—", DerefString(nil, "—"))
}

func TestDerefInt(t *testing.T) {
	n := 7
	assert.Equal(t, 7, DerefInt(&n, 0))
	assert.Equal(t, 0, DerefInt(nil, 0))
}
