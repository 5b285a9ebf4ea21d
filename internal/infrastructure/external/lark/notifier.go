package lark

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// MessageCreator is the slice of the Lark IM API the notifier needs
type MessageCreator interface {
	Create(ctx context.Context, req *larkIm.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkIm.CreateMessageResp, error)
}

// Notifier implements port.Notifier with Lark text messages
type Notifier struct {
	messages MessageCreator
	logger   *zap.Logger
}

// NewNotifier creates a notifier backed by a Lark SDK client
func NewNotifier(client *lark.Client, logger *zap.Logger) *Notifier {
	return NewNotifierWithCreator(client.Im.Message, logger)
}

// NewNotifierWithCreator creates a notifier on top of any message creator
func NewNotifierWithCreator(messages MessageCreator, logger *zap.Logger) *Notifier {
	return &Notifier{messages: messages, logger: logger}
}

// Notify sends message to the user, addressed by Lark open id or else by email
func (n *Notifier) Notify(ctx context.Context, user *entity.User, message string) error {
	if message == "" {
		return fmt.Errorf("message cannot be empty")
	}

	receiveIDType, receiveID := recipient(user)
	if receiveID == "" {
		return fmt.Errorf("user %s has no lark open id or email", user.ID)
	}

	content, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return fmt.Errorf("failed to marshal message content: %w", err)
	}

	req := larkIm.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(larkIm.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := n.messages.Create(ctx, req)
	if err != nil {
		n.logger.Error("Failed to send message",
			zap.String("user_id", user.ID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		n.logger.Error("API returned failure",
			zap.String("user_id", user.ID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	n.logger.Info("Message sent successfully",
		zap.String("message_id", messageID),
		zap.String("user_id", user.ID))
	return nil
}

func recipient(user *entity.User) (string, string) {
	if user.LarkOpenID != "" {
		return "open_id", user.LarkOpenID
	}
	if user.Email != "" {
		return "email", user.Email
	}
	return "", ""
}

// LogNotifier writes notifications to the log; used when no Lark app is configured
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the message for the user
func (n *LogNotifier) Notify(_ context.Context, user *entity.User, message string) error {
	n.logger.Info("Notification", zap.String("user_id", user.ID), zap.String("message", message))
	return nil
}

var (
	_ port.Notifier = (*Notifier)(nil)
	_ port.Notifier = (*LogNotifier)(nil)
)
