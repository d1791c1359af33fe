package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
)

// SubjectGeofenceEvents is the NATS subject geofence events are published on
const SubjectGeofenceEvents = "nuzum.geofence.events"

// ingestRetries bounds local retries on transient storage errors
const ingestRetries = 3

// IngestService accepts GPS samples from employee devices, persists them and
// hands fresh samples to the presence resolver under the per-employee lock.
type IngestService struct {
	db       *gorm.DB
	redis    *redis.Client
	nats     *nats.Conn
	presence *PresenceService
	locks    *KeyedLocker
}

// NewIngestService creates a new ingest service
func NewIngestService(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn, presence *PresenceService, locks *KeyedLocker) *IngestService {
	return &IngestService{
		db:       db,
		redis:    redisClient,
		nats:     natsConn,
		presence: presence,
		locks:    locks,
	}
}

// Ingest validates and persists one location sample. Fresh samples are
// resolved against the employee's open sessions in the same transaction;
// samples older than the newest stored one are persisted only. Retries of
// the same (employee_id, recorded_at, lat, lon) return the stored sample id
// without emitting duplicate events.
func (s *IngestService) Ingest(ctx context.Context, req *model.IngestRequest) (uint, error) {
	if !ValidCoordinates(req.Lat, req.Lon) {
		return 0, model.ValidationError("invalid_coordinates")
	}
	if req.AccuracyM != nil && *req.AccuracyM < 0 {
		return 0, model.ValidationError("accuracy_m must be non-negative")
	}

	var employee model.Employee
	if err := s.db.First(&employee, req.EmployeeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, model.NotFoundError("employee", req.EmployeeID)
		}
		return 0, model.TransientError(err)
	}
	if !employee.IsActive() {
		return 0, model.NotFoundError("employee", req.EmployeeID)
	}

	recordedAt := time.Now().UTC()
	if req.RecordedAt != nil {
		recordedAt = req.RecordedAt.UTC()
	}

	sample := model.LocationSample{
		EmployeeID: employee.ID,
		Lat:        req.Lat,
		Lon:        req.Lon,
		AccuracyM:  req.AccuracyM,
		SpeedKmh:   req.SpeedKmh,
		RecordedAt: recordedAt,
		ReceivedAt: time.Now().UTC(),
		VehicleID:  req.VehicleID,
	}

	key := EmployeeLockKey(employee.ID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var messages []model.GeofenceEventMessage
	var err error
	for attempt := 1; attempt <= ingestRetries; attempt++ {
		messages, err = s.ingestOnce(ctx, &employee, &sample)
		if err == nil || !errors.Is(err, model.ErrTransient) {
			break
		}
		log.Printf("[Ingest] Transient failure for employee %d (attempt %d/%d): %v", employee.ID, attempt, ingestRetries, err)
		time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
	}
	if err != nil {
		return 0, err
	}

	s.updateShadow(ctx, &sample)
	s.publishEvents(messages)

	return sample.ID, nil
}

// ingestOnce runs one transactional attempt; the per-employee lock is
// already held by the caller
func (s *IngestService) ingestOnce(ctx context.Context, employee *model.Employee, sample *model.LocationSample) ([]model.GeofenceEventMessage, error) {
	// load zones before the transaction; the resolver must not borrow a
	// second pooled connection while tx holds one
	zones, err := s.presence.ActiveZones(ctx)
	if err != nil {
		return nil, model.TransientError(err)
	}

	var messages []model.GeofenceEventMessage

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// retry with identical natural key returns the stored sample
		var existing model.LocationSample
		err := tx.Where("employee_id = ? AND recorded_at = ? AND lat = ? AND lon = ?",
			employee.ID, sample.RecordedAt, sample.Lat, sample.Lon).First(&existing).Error
		if err == nil {
			sample.ID = existing.ID
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return model.TransientError(err)
		}

		var newest model.LocationSample
		stale := false
		err = tx.Where("employee_id = ?", employee.ID).Order("recorded_at DESC").First(&newest).Error
		if err == nil {
			stale = sample.RecordedAt.Before(newest.RecordedAt)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return model.TransientError(err)
		}

		if err := tx.Create(sample).Error; err != nil {
			return classifyDBError(err)
		}

		if stale {
			// late sample: keep it, do not touch presence state
			return nil
		}

		messages, err = s.presence.resolveTx(tx, zones, employee, sample)
		return err
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// updateShadow stores the employee's newest position in Redis for live
// dashboard queries. Best effort; a stale shadow self-heals on the next sample.
func (s *IngestService) updateShadow(ctx context.Context, sample *model.LocationSample) {
	if s.redis == nil {
		return
	}
	shadow := model.EmployeeShadow{
		EmployeeID: sample.EmployeeID,
		Lat:        sample.Lat,
		Lon:        sample.Lon,
		RecordedAt: sample.RecordedAt.Unix(),
	}
	if sample.SpeedKmh != nil {
		shadow.SpeedKmh = *sample.SpeedKmh
	}
	data, _ := json.Marshal(shadow)
	if err := s.redis.Set(ctx, shadowKey(sample.EmployeeID), data, 24*time.Hour).Err(); err != nil {
		log.Printf("[Ingest] Failed to update shadow for employee %d: %v", sample.EmployeeID, err)
	}
}

// publishEvents pushes resolved geofence events to NATS for the notification
// fan-out and the WebSocket hub
func (s *IngestService) publishEvents(messages []model.GeofenceEventMessage) {
	if s.nats == nil {
		return
	}
	for i := range messages {
		data, err := json.Marshal(&messages[i])
		if err != nil {
			continue
		}
		if err := s.nats.Publish(SubjectGeofenceEvents, data); err != nil {
			log.Printf("[Ingest] Failed to publish geofence event: %v", err)
		}
	}
}

// classifyDBError maps storage errors to the core error taxonomy
func classifyDBError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return model.ErrConflict
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return model.ErrConflict
	}
	return model.TransientError(err)
}
