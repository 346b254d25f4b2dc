package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type EventType string

const (
	EventActivated   EventType = "activated"
	EventHeartbeat   EventType = "heartbeat"
	EventDeactivated EventType = "deactivated"
)

type LicenseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	LicenseKey  string    `json:"license_key"`
	MachineID   string    `json:"machine_id"`
	ActivatedBy string    `json:"activated_by,omitempty"`
	Status      string    `json:"status"`
	Activations int       `json:"activations"`
	Timestamp   time.Time `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, event *LicenseEvent) error
	Close()
}

// Subject builds the NATS subject for an event type, e.g. "licenses.activated".
func Subject(prefix string, t EventType) string {
	if prefix == "" {
		return string(t)
	}
	return prefix + "." + string(t)
}

type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

func NewNATSPublisher(natsURL, prefix string, logger *zap.Logger) (*NATSPublisher, error) {
	log := logger.Named("NATSPublisher")

	nc, err := nats.Connect(natsURL, nats.Name("license-manager"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info("Connected to NATS", zap.String("url", natsURL))

	return &NATSPublisher{
		nc:     nc,
		prefix: prefix,
		logger: log,
	}, nil
}

var _ Publisher = (*NATSPublisher)(nil)

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

func (p *NATSPublisher) Publish(ctx context.Context, event *LicenseEvent) error {
	data, err := Encode(event)
	if err != nil {
		return err
	}

	subject := Subject(p.prefix, event.Type)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Published license event",
		zap.String("subject", subject),
		zap.String("license_key", event.LicenseKey),
		zap.String("machine_id", event.MachineID),
	)
	return nil
}

// Encode fills in the id and timestamp when missing and marshals the event.
func Encode(event *LicenseEvent) ([]byte, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// NopPublisher drops every event. Used when NATS is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *LicenseEvent) error { return nil }
func (NopPublisher) Close()                                       {}
