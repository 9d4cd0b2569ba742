package domain

// Sender labels shown in front of every rendered message.
const (
	SenderUser = "You"
	SenderBot  = "Bot"
)

// Style classes attached to rendered messages.
const (
	StyleUser    = "user"
	StyleBot     = "bot"
	StyleLoading = "bot loading-message"
	StyleError   = "bot error"
)

// LoadingText is the body of the transient placeholder shown while a reply is
// outstanding.
const LoadingText = "..."

// Message is a single entry in the conversation view.
type Message struct {
	Sender     string
	Text       string
	StyleClass string
}
