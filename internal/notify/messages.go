package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/survey-notify/internal/domain"
	"github.com/ashureev/survey-notify/internal/store"
	"github.com/containerd/errdefs"
	"github.com/google/uuid"
)

const messageTitle = "Message"

// Messenger stores researcher messages and shows a notification for each.
type Messenger struct {
	messages  store.Messages
	presenter Presenter
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time
}

// NewMessenger creates a Messenger.
func NewMessenger(messages store.Messages, presenter Presenter, logger *slog.Logger) *Messenger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Messenger{
		messages:  messages,
		presenter: presenter,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// HandleNewMessage persists a message under a fresh id and shows it.
func (m *Messenger) HandleNewMessage(ctx context.Context, content string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("%w: message content is empty", errdefs.ErrInvalidArgument)
	}

	msg := domain.StoredMessage{
		ID:         m.newID(),
		Content:    content,
		ReceivedOn: m.now(),
	}
	if err := m.messages.PutMessage(ctx, msg); err != nil {
		return "", fmt.Errorf("%w: store message: %w", errdefs.ErrUnavailable, err)
	}

	m.present(ctx, msg)
	return msg.ID, nil
}

// ShowMessage presents a stored message.
func (m *Messenger) ShowMessage(ctx context.Context, messageID string) error {
	msg, err := m.messages.GetMessage(ctx, messageID)
	if err != nil {
		return fmt.Errorf("%w: load message: %w", errdefs.ErrUnavailable, err)
	}
	if msg == nil {
		return fmt.Errorf("%w: message %s", errdefs.ErrNotFound, messageID)
	}
	m.present(ctx, *msg)
	return nil
}

// ShowAllMessages presents every stored message, oldest first, and returns
// how many were presented.
func (m *Messenger) ShowAllMessages(ctx context.Context) int {
	msgs, err := m.messages.ListMessages(ctx)
	if err != nil {
		m.logger.Error("failed to list stored messages", "error", err)
		return 0
	}

	shown := 0
	for _, msg := range msgs {
		if m.present(ctx, msg) {
			shown++
		}
	}
	return shown
}

func (m *Messenger) present(ctx context.Context, msg domain.StoredMessage) bool {
	n := Notification{
		ID:        NotificationID(msg.ID),
		Channel:   ChannelMessages,
		Title:     messageTitle,
		Body:      msg.Content,
		Ticker:    msg.Content,
		Icon:      "message_icon",
		Group:     string(ChannelMessages),
		Target:    domain.ScreenViewMessage,
		MessageID: msg.ID,
		Ongoing:   true,
	}
	if err := m.presenter.Present(ctx, n); err != nil {
		m.logger.Error("failed to present message notification", "message_id", msg.ID, "error", err)
		return false
	}
	return true
}
