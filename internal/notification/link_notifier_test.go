package notification

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/indent-flow/internal/application/port"
)

func TestBuildLink(t *testing.T) {
	tests := []struct {
		name        string
		recipient   string
		wantChannel Channel
		wantPrefix  string
		wantErr     bool
	}{
		{name: "email", recipient: "pm@plant.example", wantChannel: ChannelEmail, wantPrefix: "mailto:pm@plant.example?"},
		{name: "phone", recipient: "+91 98450-12345", wantChannel: ChannelWhatsApp, wantPrefix: "https://wa.me/919845012345?text="},
		{name: "open id", recipient: "ou_7d8a6e6df7", wantErr: true},
		{name: "too short", recipient: "12345", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, err := BuildLink(port.Message{
				Recipient: tt.recipient,
				Subject:   "Generate GRN awaits action: PO-0001",
				Body:      "Material accepted",
				Link:      "https://indents.plant.example/api/purchase-orders/PO-0001",
			})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantChannel, link.Channel)
			assert.True(t, strings.HasPrefix(link.URL, tt.wantPrefix), link.URL)
		})
	}
}

func TestBuildLink_MailtoEncoding(t *testing.T) {
	link, err := BuildLink(port.Message{
		Recipient: "stores@plant.example",
		Subject:   "Receive Material awaits action",
		Body:      "Qty 10 & challan CH-22",
	})
	require.NoError(t, err)
	assert.NotContains(t, link.URL, "+")

	parsed, err := url.Parse(link.URL)
	require.NoError(t, err)
	query, err := url.ParseQuery(parsed.RawQuery)
	require.NoError(t, err)
	assert.Equal(t, "Receive Material awaits action", query.Get("subject"))
	assert.Equal(t, "Qty 10 & challan CH-22", query.Get("body"))
}

func TestLinkNotifier_OutboxIsBounded(t *testing.T) {
	n := NewLinkNotifier(3, zap.NewNop())

	for i := 1; i <= 5; i++ {
		require.NoError(t, n.Notify(context.Background(), port.Message{
			Recipient: "buyer@plant.example",
			Subject:   fmt.Sprintf("message %d", i),
		}))
	}

	recent := n.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "message 5", recent[0].Subject)
	assert.Equal(t, "message 3", recent[2].Subject)
	assert.Len(t, n.Recent(1), 1)
}

func TestLinkNotifier_InvalidRecipient(t *testing.T) {
	n := NewLinkNotifier(0, zap.NewNop())

	err := n.Notify(context.Background(), port.Message{Recipient: "stores desk"})
	assert.Error(t, err)
	assert.Empty(t, n.Recent(0))
}
