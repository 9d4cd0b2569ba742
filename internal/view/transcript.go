package view

import (
	"fmt"
	"html/template"
	"io"
	"strings"

	"chat-widget/internal/domain"
)

// transcriptTmpl renders one div per message, the markup of the web chat
// widget. html/template escapes every field.
var transcriptTmpl = template.Must(template.New("transcript").Parse(
	`{{range .}}<div class="message {{.StyleClass}}"><div><b>{{.Sender}}:</b> {{.Text}}</div></div>
{{end}}`))

// WriteTranscript writes msgs as an HTML fragment. Sender and text are always
// treated as data.
func WriteTranscript(w io.Writer, msgs []domain.Message) error {
	if err := transcriptTmpl.Execute(w, msgs); err != nil {
		return fmt.Errorf("view: write transcript: %w", err)
	}
	return nil
}

// TranscriptString is WriteTranscript into a string.
func TranscriptString(msgs []domain.Message) (string, error) {
	var b strings.Builder
	if err := WriteTranscript(&b, msgs); err != nil {
		return "", err
	}
	return b.String(), nil
}
