package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/indent-flow/internal/application/dispatcher"
	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/internal/domain/event"
	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
)

// Directory resolves the people holding a role
type Directory interface {
	Recipients(role domainwf.Role) []string
}

// StaticDirectory is a fixed role to recipients map loaded from configuration
type StaticDirectory map[domainwf.Role][]string

// Recipients returns the configured recipients of the role
func (d StaticDirectory) Recipients(role domainwf.Role) []string {
	return d[role]
}

// NotificationService turns committed workflow events into advisory messages.
// Delivery failures are logged and never reach the caller of a transition.
type NotificationService interface {
	// Register subscribes the service to the events it notifies on
	Register(d dispatcher.Dispatcher)

	// HandleEvent builds and sends the messages for one event
	HandleEvent(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	indents   port.IndentRepository
	directory Directory
	notifiers []port.Notifier
	baseURL   string
	logger    Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	indents port.IndentRepository,
	directory Directory,
	notifiers []port.Notifier,
	baseURL string,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		indents:   indents,
		directory: directory,
		notifiers: notifiers,
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    logger,
	}
}

var notifiedEvents = []event.Type{
	event.TypeStepCompleted,
	event.TypeStepRejected,
	event.TypeRejectionEntered,
	event.TypePOCreated,
	event.TypeItemsUngrouped,
	event.TypeAncillaryFailed,
	event.TypeIndentRejected,
	event.TypeIndentCompleted,
}

// Register subscribes the service to the events it notifies on
func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	for _, t := range notifiedEvents {
		d.SubscribeNamed(t, "notification."+string(t), s.HandleEvent)
	}
}

// HandleEvent builds and sends the messages for one event
func (s *notificationServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	messages, err := s.buildMessages(ctx, evt)
	if err != nil {
		s.logger.Warn("Failed to build notifications", "event_type", string(evt.Type), "entity_id", evt.EntityID, "error", err)
		return err
	}

	failed := 0
	for _, msg := range messages {
		for _, n := range s.notifiers {
			if err := n.Notify(ctx, msg); err != nil {
				failed++
				s.logger.Warn("Notification delivery failed",
					"event_type", string(evt.Type),
					"entity_id", evt.EntityID,
					"recipient", msg.Recipient,
					"error", err,
				)
			}
		}
	}

	if len(messages) > 0 {
		s.logger.Info("Notifications sent",
			"event_type", string(evt.Type),
			"entity_id", evt.EntityID,
			"messages", len(messages),
			"failed", failed,
		)
	}
	return nil
}

func (s *notificationServiceImpl) buildMessages(ctx context.Context, evt *event.Event) ([]port.Message, error) {
	link := s.linkFor(evt)

	switch evt.Type {
	case event.TypeStepCompleted, event.TypeStepRejected:
		next := domainwf.Stage(evt.GetPayloadInt("next_stage"))
		role := domainwf.Role(evt.GetPayloadString("next_role"))
		if next == domainwf.StageNone || role == "" {
			return nil, nil
		}
		subject := fmt.Sprintf("%s awaits action: %s", evt.EntityID, next.Name())
		body := fmt.Sprintf("%s finished %s. Stage %s is now waiting for %s.",
			evt.EntityID, evt.Stage.Name(), next, role)
		if comments := evt.GetPayloadString("comments"); comments != "" {
			body += "\nComments: " + comments
		}
		return s.toRole(role, subject, body, link), nil

	case event.TypeRejectionEntered:
		subject := fmt.Sprintf("Material rejected on %s", evt.EntityID)
		body := fmt.Sprintf("Material on %s was rejected (cycle %d): %s",
			evt.EntityID, evt.GetPayloadInt("cycle"), evt.GetPayloadString("rejection_note"))
		return s.toRole(domainwf.RolePurchaseManager, subject, body, link), nil

	case event.TypePOCreated:
		subject := fmt.Sprintf("Purchase order %s created", evt.EntityID)
		body := fmt.Sprintf("Purchase order %s for vendor %s (total %s) groups indents %s.",
			evt.EntityID,
			evt.GetPayloadString("vendor_code"),
			evt.GetPayloadString("total"),
			strings.Join(evt.GetPayloadStrings("indent_ids"), ", "),
		)
		return s.toRole(domainwf.RolePurchaseExecutive, subject, body, link), nil

	case event.TypeItemsUngrouped:
		subject := "Items left at Sort Vendors"
		body := "These items need a vendor decision before they can be grouped:\n" +
			strings.Join(evt.GetPayloadStrings("items"), "\n")
		return s.toRole(domainwf.RolePurchaseExecutive, subject, body, link), nil

	case event.TypeAncillaryFailed:
		subject := fmt.Sprintf("Follow-up needed on %s", evt.EntityID)
		body := fmt.Sprintf("The %s step for %s did not complete: %s",
			evt.GetPayloadString("operation"), evt.EntityID, evt.GetPayloadString("error"))
		return s.toRole(domainwf.RoleAdmin, subject, body, link), nil

	case event.TypeIndentRejected, event.TypeIndentCompleted:
		indent, err := s.indents.GetIndent(ctx, evt.EntityID)
		if err != nil {
			return nil, fmt.Errorf("get indent: %w", err)
		}
		subject := fmt.Sprintf("Indent %s completed", indent.ID)
		body := fmt.Sprintf("Every purchase order of your indent %q has been paid.", indent.Title)
		if evt.Type == event.TypeIndentRejected {
			subject = fmt.Sprintf("Indent %s rejected", indent.ID)
			body = fmt.Sprintf("Your indent %q was rejected at %s.", indent.Title, evt.Stage.Name())
			if note := evt.GetPayloadString("rejection_note"); note != "" {
				body += "\nReason: " + note
			}
		}
		return []port.Message{{Recipient: indent.RequestedBy, Subject: subject, Body: body, Link: link}}, nil
	}
	return nil, nil
}

func (s *notificationServiceImpl) toRole(role domainwf.Role, subject, body, link string) []port.Message {
	recipients := s.directory.Recipients(role)
	if len(recipients) == 0 {
		s.logger.Warn("No recipients configured for role", "role", string(role))
		return nil
	}
	messages := make([]port.Message, 0, len(recipients))
	for _, r := range recipients {
		messages = append(messages, port.Message{Recipient: r, Subject: subject, Body: body, Link: link})
	}
	return messages
}

func (s *notificationServiceImpl) linkFor(evt *event.Event) string {
	if s.baseURL == "" || evt.EntityID == "" {
		return ""
	}
	switch evt.EntityKind {
	case event.EntityPurchaseOrder:
		return s.baseURL + "/api/purchase-orders/" + evt.EntityID
	default:
		return s.baseURL + "/api/indents/" + evt.EntityID
	}
}
