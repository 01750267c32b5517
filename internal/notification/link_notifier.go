package notification

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/garyjia/indent-flow/internal/application/port"
)

// DefaultOutboxSize is the number of links kept when no size is configured
const DefaultOutboxSize = 200

// Channel names the kind of link built for a recipient
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// Link is a prepared share link for one notification
type Link struct {
	Channel   Channel   `json:"channel"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// LinkNotifier turns notifications into mailto or wa.me links that a user
// opens by hand. Links are logged and kept in a bounded outbox.
type LinkNotifier struct {
	logger *zap.Logger
	size   int
	now    func() time.Time

	mu     sync.Mutex
	outbox []Link
}

// NewLinkNotifier creates a link notifier keeping the last size links
func NewLinkNotifier(size int, logger *zap.Logger) *LinkNotifier {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &LinkNotifier{
		logger: logger,
		size:   size,
		now:    time.Now,
	}
}

// Notify implements port.Notifier
func (n *LinkNotifier) Notify(ctx context.Context, msg port.Message) error {
	link, err := BuildLink(msg)
	if err != nil {
		return err
	}
	link.CreatedAt = n.now()

	n.mu.Lock()
	n.outbox = append(n.outbox, link)
	if over := len(n.outbox) - n.size; over > 0 {
		n.outbox = append([]Link(nil), n.outbox[over:]...)
	}
	n.mu.Unlock()

	n.logger.Info("Notification link prepared",
		zap.String("channel", string(link.Channel)),
		zap.String("recipient", link.Recipient),
		zap.String("url", link.URL))

	return nil
}

// Recent returns up to limit links, newest first. A limit of zero returns all.
func (n *LinkNotifier) Recent(limit int) []Link {
	n.mu.Lock()
	defer n.mu.Unlock()

	if limit <= 0 || limit > len(n.outbox) {
		limit = len(n.outbox)
	}
	result := make([]Link, 0, limit)
	for i := len(n.outbox) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, n.outbox[i])
	}
	return result
}

// BuildLink picks the channel from the recipient: addresses with "@" get a
// mailto link, phone numbers a wa.me link
func BuildLink(msg port.Message) (Link, error) {
	recipient := strings.TrimSpace(msg.Recipient)
	text := messageText(msg)

	if strings.Contains(recipient, "@") {
		query := url.Values{}
		query.Set("subject", msg.Subject)
		query.Set("body", text)
		return Link{
			Channel:   ChannelEmail,
			Recipient: recipient,
			Subject:   msg.Subject,
			URL:       "mailto:" + recipient + "?" + strings.ReplaceAll(query.Encode(), "+", "%20"),
		}, nil
	}

	digits := phoneDigits(recipient)
	if digits == "" {
		return Link{}, fmt.Errorf("recipient %q is neither an email address nor a phone number", msg.Recipient)
	}
	return Link{
		Channel:   ChannelWhatsApp,
		Recipient: recipient,
		Subject:   msg.Subject,
		URL:       "https://wa.me/" + digits + "?text=" + url.QueryEscape(msg.Subject+"\n"+text),
	}, nil
}

func messageText(msg port.Message) string {
	text := msg.Body
	if msg.Link != "" {
		if text != "" {
			text += "\n"
		}
		text += msg.Link
	}
	return text
}

// phoneDigits keeps the digits of a phone number; any letter makes it invalid
func phoneDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return ""
		}
	}
	if b.Len() < 7 {
		return ""
	}
	return b.String()
}

var _ port.Notifier = (*LinkNotifier)(nil)
