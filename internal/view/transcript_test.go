package view

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chat-widget/internal/domain"
)

func TestTranscript_MatchesWidgetMarkup(t *testing.T) {
	out, err := TranscriptString([]domain.Message{
		{Sender: domain.SenderUser, Text: "Hello", StyleClass: domain.StyleUser},
		{Sender: domain.SenderBot, Text: "Hi there!", StyleClass: domain.StyleBot},
	})
	require.NoError(t, err)
	require.Equal(t,
		`<div class="message user"><div><b>You:</b> Hello</div></div>`+"\n"+
			`<div class="message bot"><div><b>Bot:</b> Hi there!</div></div>`+"\n",
		out)
}

func TestTranscript_EscapesMarkup(t *testing.T) {
	out, err := TranscriptString([]domain.Message{
		{Sender: domain.SenderBot, Text: `<img src=x onerror="alert(1)">`, StyleClass: domain.StyleBot},
	})
	require.NoError(t, err)
	require.NotContains(t, out, "<img")
	require.Contains(t, out, "&lt;img src=x onerror=&#34;alert(1)&#34;&gt;")
}

func TestTranscript_Empty(t *testing.T) {
	out, err := TranscriptString(nil)
	require.NoError(t, err)
	require.Empty(t, out)
}
