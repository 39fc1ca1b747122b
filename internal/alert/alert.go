// Package alert raises operations tickets for deliveries that need a human.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/spinhouse/delivery/internal/delivery"
)

// Ticket is one raised alert.
type Ticket struct {
	ID        string         `json:"id"`
	OrderID   string         `json:"orderId"`
	Issue     string         `json:"issue"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

func newTicket(orderID, issue string, details map[string]any) Ticket {
	return Ticket{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Issue:     issue,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
}

// Log raises tickets as error-level log entries.
type Log struct {
	logger *otelzap.Logger
}

// NewLog creates a Log alerter.
func NewLog(logger *otelzap.Logger) *Log {
	return &Log{logger: logger}
}

// CreateTicket logs the ticket and returns its ID.
func (l *Log) CreateTicket(ctx context.Context, orderID, issue string, details map[string]any) (string, error) {
	t := newTicket(orderID, issue, details)
	l.logger.Ctx(ctx).Error("Ops ticket",
		zap.String("ticket_id", t.ID),
		zap.String("order_id", orderID),
		zap.String("issue", issue),
		zap.Any("details", details),
	)
	return t.ID, nil
}

// File appends tickets as JSON lines to a file.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile creates a File alerter writing to path.
func NewFile(path string) *File {
	return &File{path: path}
}

// CreateTicket appends the ticket and returns its ID.
func (f *File) CreateTicket(_ context.Context, orderID, issue string, details map[string]any) (string, error) {
	t := newTicket(orderID, issue, details)
	line, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encoding ticket: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("opening alert file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return "", fmt.Errorf("writing ticket: %w", err)
	}
	return t.ID, nil
}

var (
	_ delivery.Alerter = (*Log)(nil)
	_ delivery.Alerter = (*File)(nil)
)
