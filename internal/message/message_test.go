package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApproxTokensCeilsCharsOverFour(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"abcdefgh", 2},
		{"abcdefghi", 3},
	}
	for _, tc := range cases {
		m := NewUser(tc.text)
		assert.Equal(t, tc.want, m.ApproxTokens(), "text=%q", tc.text)
	}
}

func TestApproxTokensCountsImageByURLLength(t *testing.T) {
	m := Message{Role: RoleUser, Content: PartsContent([]ContentPart{
		{Text: "look at this"},
		{Image: "https://example.com/a.png"},
	})}
	want := approxTokens(len("look at this") + len("https://example.com/a.png"))
	assert.Equal(t, want, m.ApproxTokens())
}

func TestTextExtractsPlainAndPartsWithoutImages(t *testing.T) {
	m1 := NewUser("hello")
	text, ok := m1.Text()
	require.True(t, ok)
	assert.Equal(t, "hello", text)

	m2 := Message{Role: RoleUser, Content: PartsContent([]ContentPart{{Text: "a"}, {Text: "b"}})}
	text, ok = m2.Text()
	require.True(t, ok)
	assert.Equal(t, "ab", text)

	m3 := Message{Role: RoleUser, Content: PartsContent([]ContentPart{{Text: "a"}, {Image: "http://x/y.png"}})}
	_, ok = m3.Text()
	assert.False(t, ok)

	m4 := NewAssistantToolCall("c1", "shell", `{"cmd":"ls"}`)
	_, ok = m4.Text()
	assert.False(t, ok)
}

func TestToolCallAndResultConstructors(t *testing.T) {
	call := NewAssistantToolCall("c1", "shell", `{"cmd":"echo ok"}`)
	assert.Equal(t, RoleAssistant, call.Role)
	assert.Equal(t, KindToolCall, call.Content.Kind)
	assert.Equal(t, "c1", call.Content.ToolCall.ToolCallID)

	res := NewToolResult("c1", "ok")
	assert.Equal(t, RoleTool, res.Role)
	assert.Equal(t, KindToolResult, res.Content.Kind)
	assert.Equal(t, "ok", res.Content.ToolResult.Text)
}
