package usecase

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/rs/zerolog/log"

	"chat-widget/internal/domain"
	"chat-widget/internal/integrations/chatapi"
	"chat-widget/internal/session"
	"chat-widget/internal/view"
)

// ChatSender posts one message to the chat endpoint.
type ChatSender interface {
	Send(ctx context.Context, message string, sessionID *string) (chatapi.Reply, error)
}

// SessionIdentity supplies and records the conversation's session id.
type SessionIdentity interface {
	Mode() session.Mode
	Current() (string, bool)
	Adopt(ctx context.Context, serverID string) error
}

// Input is the text field the widget reads from and clears.
type Input interface {
	Value() string
	Reset()
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// Widget runs the send, display, await-reply, display cycle against a chat
// box.
type Widget struct {
	api         ChatSender
	identity    SessionIdentity
	box         *view.ChatBox
	showLoading bool
}

type Option func(*Widget)

// WithLoading toggles the transient placeholder shown while a reply is
// outstanding. It is on by default.
func WithLoading(enabled bool) Option {
	return func(w *Widget) {
		w.showLoading = enabled
	}
}

func NewWidget(api ChatSender, identity SessionIdentity, box *view.ChatBox, opts ...Option) (*Widget, error) {
	if api == nil {
		return nil, errors.New("usecase: chat sender must not be nil")
	}
	if identity == nil {
		return nil, errors.New("usecase: session identity must not be nil")
	}
	if box == nil {
		return nil, errors.New("usecase: chat box must not be nil")
	}
	w := &Widget{
		api:         api,
		identity:    identity,
		box:         box,
		showLoading: true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *Widget) ChatBox() *view.ChatBox { return w.box }

// Exchange is a submitted message whose reply is still outstanding.
type Exchange struct {
	widget  *Widget
	message string
	user    *view.Node
	loading *view.Node
}

// Message is the trimmed text that was submitted.
func (x *Exchange) Message() string { return x.message }

// Result is the outcome of one exchange. Reply is the rendered bot node on
// success and the rendered error node on failure. An INTERNAL_ERROR comes
// with the real reply: the answer arrived but the new session id could not be
// persisted.
type Result struct {
	Reply *view.Node
	Err   error
}

// Submit performs the synchronous half of a send: it renders the user's
// message, clears the input and shows the placeholder. It returns false and
// does nothing when the trimmed input is empty.
func (w *Widget) Submit(in Input) (*Exchange, bool) {
	message := strings.TrimSpace(in.Value())
	if message == "" {
		return nil, false
	}
	x := &Exchange{widget: w, message: message}
	x.user = w.box.Append(domain.SenderUser, message, domain.StyleUser)
	in.Reset()
	if w.showLoading {
		x.loading = w.box.Append(domain.SenderBot, domain.LoadingText, domain.StyleLoading)
	}
	return x, true
}

// Await issues the request and renders its outcome. It may run on any
// goroutine; overlapping exchanges render in the order their replies arrive.
func (x *Exchange) Await(ctx context.Context) Result {
	w := x.widget

	var sessionID *string
	if id, ok := w.identity.Current(); ok {
		sessionID = &id
	}

	reply, err := w.api.Send(ctx, x.message, sessionID)
	if err == nil {
		err = w.checkReply(reply)
	}
	if err != nil {
		return x.fail(err)
	}

	// Adopt before rendering so that a follow-up sent in reaction to the
	// reply carries the new id.
	var adoptErr error
	if reply.HasSessionID {
		if err := w.identity.Adopt(ctx, reply.SessionID); err != nil {
			log.Warn().Err(err).Msg("failed to persist server session id")
			adoptErr = newError(ErrorInternal, "session_persist_error", err)
		}
	}

	w.box.Remove(x.loading)
	node := w.box.Append(domain.SenderBot, reply.Response, domain.StyleBot)
	if adoptErr != nil {
		return Result{Reply: node, Err: adoptErr}
	}
	return Result{Reply: node}
}

func (w *Widget) checkReply(reply chatapi.Reply) error {
	if w.identity.Mode() == session.ModeServerIssued && (!reply.HasSessionID || strings.TrimSpace(reply.SessionID) == "") {
		return &chatapi.ProtocolError{Reason: `missing "session_id" field`}
	}
	return nil
}

func (x *Exchange) fail(err error) Result {
	w := x.widget
	uerr, detail := classify(err)
	log.Warn().Err(err).Str("code", string(uerr.Code)).Str("reason", uerr.Reason).Msg("chat request failed")

	w.box.Remove(x.loading)
	node := w.box.Append(domain.SenderBot, fallbackText(uerr, detail), domain.StyleError)
	return Result{Reply: node, Err: uerr}
}

// Send runs Submit and Await back to back. ok is false when the input was
// empty and nothing happened.
func (w *Widget) Send(ctx context.Context, in Input) (Result, bool) {
	x, ok := w.Submit(in)
	if !ok {
		return Result{}, false
	}
	return x.Await(ctx), true
}

// SendText sends text as if it had been typed into an input.
func (w *Widget) SendText(ctx context.Context, text string) (Result, bool) {
	return w.Send(ctx, NewTextInput(text))
}

func classify(err error) (*Error, string) {
	var protoErr *chatapi.ProtocolError
	if errors.As(err, &protoErr) {
		return newError(ErrorProtocol, "malformed_response", err), ""
	}
	var statusErr *chatapi.HTTPStatusError
	if errors.As(err, &statusErr) {
		return newError(ErrorUpstream, "http_status", err), statusErr.Detail
	}
	var coder httpStatusCoder
	if errors.As(err, &coder) {
		return newError(ErrorUpstream, "http_status", err), ""
	}
	if errors.Is(err, context.Canceled) {
		return newError(ErrorTransport, "cancelled", err), ""
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return newError(ErrorTransport, "timeout", err), ""
	}
	return newError(ErrorTransport, "network_error", err), ""
}

// TextInput is an Input backed by a plain string, used by non-interactive
// surfaces.
type TextInput struct {
	value string
}

func NewTextInput(value string) *TextInput {
	return &TextInput{value: value}
}

func (t *TextInput) Value() string { return t.value }

func (t *TextInput) Reset() { t.value = "" }
