package port

import (
	"context"
)

// DocumentKind names the generated documents the workflow requires
type DocumentKind string

const (
	DocumentPurchaseOrder DocumentKind = "purchase_order"
	DocumentGRN           DocumentKind = "grn"
)

// DocumentService stores structured document data and returns an opaque document id
type DocumentService interface {
	Store(ctx context.Context, kind DocumentKind, ownerID string, data interface{}) (string, error)
}

// Message is an advisory notification
type Message struct {
	Recipient string
	Subject   string
	Body      string
	Link      string
}

// Notifier delivers advisory messages; failures never block a transition
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Logger is the minimal structured logger used by the application layer
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
