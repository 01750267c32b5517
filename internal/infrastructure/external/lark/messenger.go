package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/indent-flow/internal/application/port"
)

// createMessageFunc sends one message body through the SDK's Im.Message.Create call
type createMessageFunc func(ctx context.Context, receiveIDType string, body *larkim.CreateMessageReqBody) (*larkim.CreateMessageResp, error)

// Messenger delivers workflow notifications as Lark text messages.
// Recipients containing "@" are addressed by email, anything else by open_id.
type Messenger struct {
	create createMessageFunc
	logger *zap.Logger
}

// NewMessenger creates a Lark notifier on top of the SDK client
func NewMessenger(sdkClient *SDKClient, logger *zap.Logger) *Messenger {
	client := sdkClient.GetClient()
	return &Messenger{
		create: func(ctx context.Context, receiveIDType string, body *larkim.CreateMessageReqBody) (*larkim.CreateMessageResp, error) {
			req := larkim.NewCreateMessageReqBuilder().
				ReceiveIdType(receiveIDType).
				Body(body).
				Build()
			return client.Im.Message.Create(ctx, req)
		},
		logger: logger,
	}
}

// Notify implements port.Notifier
func (m *Messenger) Notify(ctx context.Context, msg port.Message) error {
	if msg.Recipient == "" {
		return fmt.Errorf("recipient cannot be empty")
	}

	content, err := textContent(msg)
	if err != nil {
		return err
	}

	_, err = m.SendMessage(ctx, receiveIDType(msg.Recipient), msg.Recipient, "text", content)
	return err
}

// SendMessage sends a message to a user or group and returns the message id
func (m *Messenger) SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	body := larkim.NewCreateMessageReqBodyBuilder().
		ReceiveId(receiveID).
		MsgType(msgType).
		Content(content).
		Build()

	resp, err := m.create(ctx, receiveIDType, body)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("receive_id", receiveID),
			zap.Error(err))
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("receive_id", receiveID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return "", fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}

	m.logger.Info("Message sent successfully",
		zap.String("message_id", messageID),
		zap.String("receive_id", receiveID))

	return messageID, nil
}

func receiveIDType(recipient string) string {
	if strings.Contains(recipient, "@") {
		return larkim.ReceiveIdTypeEmail
	}
	return larkim.ReceiveIdTypeOpenId
}

func textContent(msg port.Message) (string, error) {
	lines := []string{msg.Subject}
	if msg.Body != "" {
		lines = append(lines, msg.Body)
	}
	if msg.Link != "" {
		lines = append(lines, msg.Link)
	}

	content, err := json.Marshal(map[string]string{"text": strings.Join(lines, "\n")})
	if err != nil {
		return "", fmt.Errorf("failed to marshal message content: %w", err)
	}
	return string(content), nil
}

var _ port.Notifier = (*Messenger)(nil)
