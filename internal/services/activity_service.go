package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/school-admin/backend/internal/docstore"
	"github.com/school-admin/backend/internal/models"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 100
)

// ActivityService implements the append-only audit trail and the
// field-level diff engine behind it. Entries are never mutated or deleted.
type ActivityService struct {
	store docstore.Store
	log   zerolog.Logger
}

func NewActivityService(store docstore.Store, log zerolog.Logger) *ActivityService {
	return &ActivityService{
		store: store,
		log:   log.With().Str("component", "activity_service").Logger(),
	}
}

// ComputeDiff returns the field-level changes between two records: the
// union of keys present in either record, excluding the bookkeeping
// timestamps, keeping only fields whose values differ structurally.
func (s *ActivityService) ComputeDiff(oldData, newData models.JSONB) map[string]models.FieldChange {
	diff := make(map[string]models.FieldChange)

	keys := make(map[string]struct{}, len(oldData)+len(newData))
	for k := range oldData {
		keys[k] = struct{}{}
	}
	for k := range newData {
		keys[k] = struct{}{}
	}

	for k := range keys {
		if k == "createdAt" || k == "updatedAt" {
			continue
		}
		oldValue := oldData[k]
		newValue := newData[k]
		if !structurallyEqual(oldValue, newValue) {
			diff[k] = models.FieldChange{Old: oldValue, New: newValue}
		}
	}

	return diff
}

// structurallyEqual compares two JSON-ish values by canonical encoding.
// json.Marshal sorts map keys, so two maps with equal contents encode
// identically regardless of construction order.
func structurallyEqual(a, b interface{}) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}

// Log appends one immutable entry. The timestamp is assigned here, at
// write time, never by the caller.
func (s *ActivityService) Log(ctx context.Context, actorUID, actorName, action, entityType, entityID string, diff map[string]models.FieldChange, snapshot, meta models.JSONB) (string, error) {
	entry := models.ActivityLog{
		ActorUID:   actorUID,
		ActorName:  actorName,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Diff:       diff,
		Snapshot:   snapshot,
		Meta:       meta,
		Timestamp:  time.Now().UTC(),
	}

	data, err := docstore.Encode(entry)
	if err != nil {
		return "", fmt.Errorf("encode activity entry: %w", err)
	}

	id, err := s.store.Add(ctx, models.CollectionActivityLogs, data)
	if err != nil {
		return "", fmt.Errorf("append activity entry: %w", err)
	}

	s.log.Debug().
		Str("action", action).
		Str("entity_type", entityType).
		Str("entity_id", entityID).
		Msg("activity recorded")

	return id, nil
}

// EntityHistory returns all entries for one entity, newest first.
func (s *ActivityService) EntityHistory(ctx context.Context, entityType, entityID string) ([]models.ActivityLog, error) {
	docs, err := s.store.Query(ctx, models.CollectionActivityLogs, docstore.Query{
		Filters: []docstore.Filter{
			docstore.Where("entityType", "==", entityType),
			docstore.Where("entityId", "==", entityID),
		},
		NewestFirst: true,
	})
	if err != nil {
		return nil, err
	}
	return docstore.DecodeAll[models.ActivityLog](docs)
}

// RecentActivity returns the most recent entries, optionally filtered to
// one actor. The limit defaults to 50 and is capped at 100.
func (s *ActivityService) RecentActivity(ctx context.Context, actorUID string, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}

	q := docstore.Query{NewestFirst: true, Limit: limit}
	if actorUID != "" {
		q.Filters = append(q.Filters, docstore.Where("actorUid", "==", actorUID))
	}

	docs, err := s.store.Query(ctx, models.CollectionActivityLogs, q)
	if err != nil {
		return nil, err
	}
	return docstore.DecodeAll[models.ActivityLog](docs)
}

// RevertToSnapshot overwrites the live entity with the snapshot's fields
// and appends a revert entry whose snapshot equals the restored state. It
// restores current state only; history is left intact.
func (s *ActivityService) RevertToSnapshot(ctx context.Context, entityType, entityID string, snapshot models.JSONB, actorUID, actorName string) error {
	if err := s.store.Update(ctx, entityType, entityID, snapshot); err != nil {
		return fmt.Errorf("revert %s/%s: %w", entityType, entityID, err)
	}

	_, err := s.Log(ctx, actorUID, actorName, models.ActionRevert, entityType, entityID,
		nil, snapshot, models.JSONB{"revertedFrom": "snapshot"})
	return err
}
