package view

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/x/ansi"

	"chat-widget/internal/domain"
)

// Sanitize makes s safe to print on a terminal. Escape sequences are stripped
// and control runes other than tab and newline are dropped, so text from the
// user or the server can never drive the terminal.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	s = ansi.Strip(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != '\t' && r != '\n' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Line formats a message as "Sender: text" for plain output.
func Line(m domain.Message) string {
	return Sanitize(m.Sender) + ": " + Sanitize(m.Text)
}
