package audit

import (
	"context"
	"fmt"

	"github.com/adeyemiloye/chowhub-backend/pkg/db/models"
	"github.com/adeyemiloye/chowhub-backend/pkg/enums"
	"github.com/adeyemiloye/chowhub-backend/pkg/logger"
	"github.com/adeyemiloye/chowhub-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service records state changes and security incidents. All writers in the
// mutation path call it inside their own transaction so the trail commits
// atomically with the change it describes.
type Service interface {
	WithTx(tx *gorm.DB) Service
	RecordChange(ctx context.Context, input RecordChangeInput) (*models.AuditEntry, error)
	RecordIncident(ctx context.Context, input RecordIncidentInput) (*models.SecurityIncident, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.AuditEntry, error)
}

// RecordChangeInput captures one applied mutation.
type RecordChangeInput struct {
	OrderID   *uuid.UUID
	ActorID   uuid.UUID
	Action    string
	OldStatus *string
	NewStatus *string
	Metadata  types.JSONMap
}

// RecordIncidentInput captures one security-relevant anomaly.
type RecordIncidentInput struct {
	Severity    enums.IncidentSeverity
	Kind        string
	OrderID     *uuid.UUID
	Description string
	Details     types.JSONMap
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires an audit service with the provided repository.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx), logg: s.logg}
}

func (s *service) RecordChange(ctx context.Context, input RecordChangeInput) (*models.AuditEntry, error) {
	if input.ActorID == uuid.Nil {
		return nil, fmt.Errorf("actor id is required")
	}
	if input.Action == "" {
		return nil, fmt.Errorf("action is required")
	}

	entry := &models.AuditEntry{
		ID:        uuid.New(),
		OrderID:   input.OrderID,
		ActorID:   input.ActorID,
		Action:    input.Action,
		OldStatus: input.OldStatus,
		NewStatus: input.NewStatus,
		Metadata:  input.Metadata,
	}
	if err := s.repo.CreateEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) RecordIncident(ctx context.Context, input RecordIncidentInput) (*models.SecurityIncident, error) {
	if !input.Severity.IsValid() {
		return nil, fmt.Errorf("invalid incident severity %q", input.Severity)
	}
	if input.Kind == "" {
		return nil, fmt.Errorf("incident kind is required")
	}
	if input.Description == "" {
		return nil, fmt.Errorf("incident description is required")
	}

	incident := &models.SecurityIncident{
		ID:          uuid.New(),
		Severity:    input.Severity,
		Kind:        input.Kind,
		OrderID:     input.OrderID,
		Description: input.Description,
		Details:     input.Details,
	}
	if err := s.repo.CreateIncident(ctx, incident); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"incident_id":       incident.ID,
		"incident_severity": incident.Severity,
		"incident_kind":     incident.Kind,
	})
	s.logg.Warn(logCtx, "security incident recorded")
	return incident, nil
}

func (s *service) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.AuditEntry, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	return s.repo.ListEntriesByOrderID(ctx, orderID)
}
