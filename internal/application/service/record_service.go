package service

import (
	"context"
	"strings"

	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/internal/domain/entity"
	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
)

// RecordService reads the append-only stage records and attaches finalize notes
type RecordService interface {
	ListRecords(ctx context.Context, collection, poID string) ([]entity.SatelliteRecord, error)
	FinalizeRecord(ctx context.Context, collection, recordID, note string, actor entity.Actor) error
}

type recordServiceImpl struct {
	reader port.SatelliteRepository
	uow    port.UnitOfWork
	logger Logger
}

// NewRecordService creates a new RecordService
func NewRecordService(reader port.SatelliteRepository, uow port.UnitOfWork, logger Logger) RecordService {
	return &recordServiceImpl{
		reader: reader,
		uow:    uow,
		logger: logger,
	}
}

func knownCollection(collection string) bool {
	for _, c := range entity.SatelliteCollections {
		if c == collection {
			return true
		}
	}
	return false
}

// ListRecords returns the records of one collection for a purchase order, oldest first
func (s *recordServiceImpl) ListRecords(ctx context.Context, collection, poID string) ([]entity.SatelliteRecord, error) {
	if !knownCollection(collection) {
		return nil, domainwf.Validation("unknown record collection %q", collection)
	}
	return s.reader.ListSatellites(ctx, collection, poID)
}

// FinalizeRecord attaches the finalize note once; requesters and HODs may not finalize
func (s *recordServiceImpl) FinalizeRecord(ctx context.Context, collection, recordID, note string, actor entity.Actor) error {
	if !knownCollection(collection) {
		return domainwf.Validation("unknown record collection %q", collection)
	}
	if strings.TrimSpace(note) == "" {
		return domainwf.Validation("finalize note is required")
	}
	switch actor.Role {
	case domainwf.RoleRequester, domainwf.RoleHOD, "":
		return domainwf.Forbidden("role %s cannot finalize stage records", actor.Role)
	}

	err := s.uow.Do(ctx, func(ctx context.Context, repo port.ProcurementRepository) error {
		return repo.AttachFinalizeNote(ctx, collection, recordID, note)
	})
	if err != nil {
		s.logger.Error("Failed to finalize record",
			"collection", collection,
			"record_id", recordID,
			"error", err,
		)
		return err
	}

	s.logger.Info("Record finalized",
		"collection", collection,
		"record_id", recordID,
		"actor", actor.Email,
	)
	return nil
}
