package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// NotificationService tells users about expenses that need or changed their attention
type NotificationService interface {
	// Register subscribes the service's handlers on d
	Register(d dispatcher.Dispatcher)

	// NotifyApprovers messages the approvers whose step just became active
	NotifyApprovers(ctx context.Context, evt *event.Event) error

	// NotifySubmitter messages the employee once the expense reaches a final status
	NotifySubmitter(ctx context.Context, evt *event.Event) error

	// NotifyRuleApprovers tells the approvers named on a rule that an admin changed it
	NotifyRuleApprovers(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	users    port.UserDirectory
	notifier port.Notifier
	logger   Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(users port.UserDirectory, notifier port.Notifier, logger Logger) NotificationService {
	return &notificationServiceImpl{
		users:    users,
		notifier: notifier,
		logger:   logger,
	}
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	d.Subscribe("notify-approvers", s.NotifyApprovers, event.TypeExpenseSubmitted, event.TypeExpenseAdvanced)
	d.Subscribe("notify-submitter", s.NotifySubmitter, event.TypeExpenseApproved, event.TypeExpenseRejected)
	d.Subscribe("notify-rule-approvers", s.NotifyRuleApprovers, event.TypeRuleChanged)
}

func (s *notificationServiceImpl) NotifyApprovers(ctx context.Context, evt *event.Event) error {
	approvers := evt.GetPayloadStrings(event.KeyApprovers)
	if len(approvers) == 0 {
		s.logger.Info("No active approvers to notify", "aggregate_id", evt.AggregateID)
		return nil
	}

	submitter := evt.GetPayloadString(event.KeyEmployeeID)
	if u, err := s.users.GetByID(ctx, submitter); err == nil {
		submitter = u.Name
	}

	message := fmt.Sprintf("Expense %s from %s awaits your approval: %s %s, %q",
		evt.AggregateID,
		submitter,
		evt.GetPayloadString(event.KeyAmount),
		evt.GetPayloadString(event.KeyCurrency),
		evt.GetPayloadString(event.KeyDescription),
	)

	var errs []error
	for _, id := range approvers {
		if err := s.send(ctx, id, message, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *notificationServiceImpl) NotifySubmitter(ctx context.Context, evt *event.Event) error {
	verdict := "approved"
	if evt.Type == event.TypeExpenseRejected {
		verdict = "rejected"
	}

	message := fmt.Sprintf("Your expense %s (%s %s) was %s",
		evt.AggregateID,
		evt.GetPayloadString(event.KeyAmount),
		evt.GetPayloadString(event.KeyCurrency),
		verdict,
	)
	if comments := evt.GetPayloadString(event.KeyComments); comments != "" {
		message += ": " + comments
	}

	return s.send(ctx, evt.GetPayloadString(event.KeyEmployeeID), message, evt)
}

func (s *notificationServiceImpl) NotifyRuleApprovers(ctx context.Context, evt *event.Event) error {
	actor := evt.GetPayloadString(event.KeyActorID)
	message := fmt.Sprintf("Approval rule %q, which lists you as an approver, was %s",
		evt.GetPayloadString(event.KeyRuleName),
		evt.GetPayloadString(event.KeyChange),
	)

	var errs []error
	for _, id := range evt.GetPayloadStrings(event.KeyApprovers) {
		if id == actor {
			continue
		}
		if err := s.send(ctx, id, message, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *notificationServiceImpl) send(ctx context.Context, userID, message string, evt *event.Event) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to resolve recipient", "error", err, "user_id", userID, "aggregate_id", evt.AggregateID)
		return fmt.Errorf("resolve recipient %s: %w", userID, err)
	}

	if err := s.notifier.Notify(ctx, user, message); err != nil {
		s.logger.Error("Failed to send notification", "error", err, "user_id", userID, "aggregate_id", evt.AggregateID)
		return fmt.Errorf("notify %s: %w", userID, err)
	}

	s.logger.Info("Notification sent",
		"user_id", userID,
		"aggregate_id", evt.AggregateID,
		"event_type", evt.Type,
	)
	return nil
}
