package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ats-auth/internal/events"
)

// NotificationService is the development sink for user events when no
// broker is configured. In production the profile services consume the
// user-events topic instead.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger.Named("user-events"),
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventUserCreated, n.handleUserCreated)
}

func (n *NotificationService) handleUserCreated(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.UserCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected %s payload %T", event.Type, event.Payload)
	}
	n.logger.Info("user created",
		zap.String("event_id", event.ID),
		zap.String("user_id", payload.UserID),
		zap.String("email", payload.Email),
		zap.String("role", string(payload.Role)))
	return nil
}
