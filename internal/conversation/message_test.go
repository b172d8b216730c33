package conversation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageHelpers(t *testing.T) {
	msgs := []Message{
		System("sys"),
		User("first question"),
		Assistant("", ToolCall{ID: "c1", Name: "upc_validator"}),
		ToolResult("upc_validator", "c1", "Valid UPC-A"),
		Assistant("answer one"),
		User("second question"),
		Assistant("answer two"),
	}

	last, ok := LastAnswer(msgs)
	require.True(t, ok)
	require.Equal(t, "answer two", last.Content)

	u, ok := LastUserBefore(msgs, 6)
	require.True(t, ok)
	require.Equal(t, "second question", u.Content)

	u, ok = LastUserBefore(msgs, 4)
	require.True(t, ok)
	require.Equal(t, "first question", u.Content)

	require.Len(t, ToolResults(msgs), 1)
	tr, ok := LastToolResult(msgs)
	require.True(t, ok)
	require.Equal(t, "upc_validator", tr.ToolName)

	require.True(t, msgs[2].HasToolCalls())
	require.False(t, msgs[2].IsAnswer())
	require.True(t, msgs[4].IsAnswer())
	require.False(t, msgs[1].IsAnswer())
}

func TestCloneDoesNotShareBackingArray(t *testing.T) {
	orig := []Message{User("a"), Assistant("b")}
	cp := Clone(orig)
	cp[0] = User("changed")
	require.Equal(t, "a", orig[0].Content)
	require.Nil(t, Clone(nil))
}

func TestVerdicts(t *testing.T) {
	require.Equal(t, DefaultFailReason, Fail("").Reason)
	require.Equal(t, "FAIL(missing Ingredients section)", Fail("missing Ingredients section").String())
	require.True(t, Pass().Terminal())
	require.True(t, End().Terminal())
	require.False(t, Fail("x").Terminal())
}
