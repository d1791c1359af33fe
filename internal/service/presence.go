package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
)

const activeZonesCacheKey = "nuzum:zones:active"

// PresenceService derives geofence events, sessions and attendance from
// incoming location samples. All writes for one sample happen inside the
// ingest transaction while the per-employee lock is held.
type PresenceService struct {
	db    *gorm.DB
	redis *redis.Client
	audit *AuditService
	tz    *time.Location
}

// NewPresenceService creates a new presence service
func NewPresenceService(db *gorm.DB, redisClient *redis.Client, audit *AuditService, tz *time.Location) *PresenceService {
	return &PresenceService{
		db:    db,
		redis: redisClient,
		audit: audit,
		tz:    tz,
	}
}

// ActiveZones returns all active zones, served from the Redis cache when
// available. Zone mutations invalidate the cache.
func (s *PresenceService) ActiveZones(ctx context.Context) ([]model.Zone, error) {
	if s.redis != nil {
		if data, err := s.redis.Get(ctx, activeZonesCacheKey).Result(); err == nil {
			var zones []model.Zone
			if err := json.Unmarshal([]byte(data), &zones); err == nil {
				return zones, nil
			}
		}
	}

	var zones []model.Zone
	if err := s.db.Where("is_active = ?", true).Find(&zones).Error; err != nil {
		return nil, err
	}

	if s.redis != nil {
		if data, err := json.Marshal(zones); err == nil {
			s.redis.Set(ctx, activeZonesCacheKey, data, time.Hour)
		}
	}

	return zones, nil
}

// InvalidateZoneCache drops the active-zones cache entry
func (s *PresenceService) InvalidateZoneCache(ctx context.Context) {
	if s.redis != nil {
		s.redis.Del(ctx, activeZonesCacheKey)
	}
}

// resolveTx diffs the zones the employee is inside now against their open
// sessions and writes the resulting events, sessions and attendance rows.
// The active zone set is loaded by the caller before the transaction opens;
// reading it here through s.db would need a second pooled connection while
// tx holds one. Returns the messages to publish after the commit.
func (s *PresenceService) resolveTx(tx *gorm.DB, zones []model.Zone, employee *model.Employee, sample *model.LocationSample) ([]model.GeofenceEventMessage, error) {
	insideNow := make(map[uint]*model.Zone)
	for i := range zones {
		z := &zones[i]
		if !InBoundingBox(sample.Lat, sample.Lon, z) {
			continue
		}
		if IsInside(sample.Lat, sample.Lon, z) {
			insideNow[z.ID] = z
		}
	}

	var openSessions []model.GeofenceSession
	if err := tx.Where("employee_id = ? AND is_active = ?", employee.ID, true).Find(&openSessions).Error; err != nil {
		return nil, model.TransientError(err)
	}

	insideBefore := make(map[uint]*model.GeofenceSession)
	for i := range openSessions {
		sess := &openSessions[i]
		if _, dup := insideBefore[sess.ZoneID]; dup {
			return nil, model.InternalError("two open sessions for zone %d employee %d", sess.ZoneID, employee.ID)
		}
		insideBefore[sess.ZoneID] = sess
	}

	var messages []model.GeofenceEventMessage

	// entries: inside now, no open session
	for zoneID, zone := range insideNow {
		if _, ok := insideBefore[zoneID]; ok {
			continue
		}
		msg, err := s.openSession(tx, zone, employee, sample)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}

	// exits: open session, not inside now (includes zones deactivated meanwhile)
	for zoneID, sess := range insideBefore {
		if _, ok := insideNow[zoneID]; ok {
			continue
		}
		zone, active := findZone(zones, zoneID)
		notes := ""
		if !active {
			zone = new(model.Zone)
			if err := tx.First(zone, zoneID).Error; err != nil {
				return nil, model.TransientError(err)
			}
			notes = "zone_deactivated"
		}
		msg, err := s.closeSession(tx, zone, employee, sess, sample, notes)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}

	return messages, nil
}

// openSession emits an enter event, opens a session and upserts the day's
// attendance row
func (s *PresenceService) openSession(tx *gorm.DB, zone *model.Zone, employee *model.Employee, sample *model.LocationSample) (*model.GeofenceEventMessage, error) {
	event := model.GeofenceEvent{
		ZoneID:             zone.ID,
		EmployeeID:         employee.ID,
		EventType:          model.EventEnter,
		Lat:                sample.Lat,
		Lon:                sample.Lon,
		DistanceFromCenter: ZoneDistanceMeters(sample.Lat, sample.Lon, zone),
		RecordedAt:         sample.RecordedAt,
		Source:             model.SourceAuto,
	}
	if err := tx.Create(&event).Error; err != nil {
		return nil, model.TransientError(err)
	}

	session := model.GeofenceSession{
		ZoneID:       zone.ID,
		EmployeeID:   employee.ID,
		EntryEventID: event.ID,
		EntryTime:    sample.RecordedAt,
		IsActive:     true,
	}
	if err := tx.Create(&session).Error; err != nil {
		return nil, model.TransientError(err)
	}

	if err := s.upsertAttendance(tx, zone.ID, employee.ID, sample.RecordedAt); err != nil {
		return nil, err
	}

	if err := s.audit.RecordChange(tx, nil, model.AuditSessionOpen, "geofence_session", session.ID, zone.Name, nil, &session); err != nil {
		return nil, model.TransientError(err)
	}

	return &model.GeofenceEventMessage{
		ZoneID:     zone.ID,
		ZoneName:   zone.Name,
		EmployeeID: employee.ID,
		EventType:  model.EventEnter,
		Lat:        sample.Lat,
		Lon:        sample.Lon,
		DistanceM:  event.DistanceFromCenter,
		RecordedAt: sample.RecordedAt.Unix(),
	}, nil
}

// closeSession emits an exit event and finalizes the open session
func (s *PresenceService) closeSession(tx *gorm.DB, zone *model.Zone, employee *model.Employee, session *model.GeofenceSession, sample *model.LocationSample, notes string) (*model.GeofenceEventMessage, error) {
	event := model.GeofenceEvent{
		ZoneID:             zone.ID,
		EmployeeID:         employee.ID,
		EventType:          model.EventExit,
		Lat:                sample.Lat,
		Lon:                sample.Lon,
		DistanceFromCenter: ZoneDistanceMeters(sample.Lat, sample.Lon, zone),
		RecordedAt:         sample.RecordedAt,
		Source:             model.SourceAuto,
		Notes:              notes,
	}
	if err := tx.Create(&event).Error; err != nil {
		return nil, model.TransientError(err)
	}

	before := *session
	session.Close(event.ID, sample.RecordedAt)
	if err := tx.Model(&model.GeofenceSession{}).
		Where("id = ? AND is_active = ?", session.ID, true).
		Updates(map[string]interface{}{
			"exit_event_id":    session.ExitEventID,
			"exit_time":        session.ExitTime,
			"duration_minutes": session.DurationMinutes,
			"is_active":        false,
		}).Error; err != nil {
		return nil, model.TransientError(err)
	}

	if err := s.audit.RecordChange(tx, nil, model.AuditSessionClose, "geofence_session", session.ID, zone.Name, &before, session); err != nil {
		return nil, model.TransientError(err)
	}

	return &model.GeofenceEventMessage{
		ZoneID:     zone.ID,
		ZoneName:   zone.Name,
		EmployeeID: employee.ID,
		EventType:  model.EventExit,
		Lat:        sample.Lat,
		Lon:        sample.Lon,
		DistanceM:  event.DistanceFromCenter,
		RecordedAt: sample.RecordedAt.Unix(),
	}, nil
}

// upsertAttendance fills the morning or evening slot of the day's attendance
// row. A slot is only overwritten by an earlier entry on the same day.
func (s *PresenceService) upsertAttendance(tx *gorm.DB, zoneID, employeeID uint, entryTime time.Time) error {
	date := LocalDate(entryTime, s.tz)

	var att model.GeofenceAttendance
	err := tx.Where("zone_id = ? AND employee_id = ? AND attendance_date = ?", zoneID, employeeID, date).First(&att).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return model.TransientError(err)
		}
		att = model.GeofenceAttendance{
			ZoneID:         zoneID,
			EmployeeID:     employeeID,
			AttendanceDate: date,
		}
		if err := tx.Create(&att).Error; err != nil {
			return model.TransientError(err)
		}
	}

	slot := &att.EveningEntry
	column := "evening_entry"
	if IsMorningEntry(entryTime, s.tz) {
		slot = &att.MorningEntry
		column = "morning_entry"
	}
	if *slot != nil && !entryTime.Before(**slot) {
		return nil
	}

	if err := tx.Model(&model.GeofenceAttendance{}).Where("id = ?", att.ID).
		Update(column, entryTime).Error; err != nil {
		return model.TransientError(err)
	}
	return nil
}

// CheckIn records a manual check_in event for an employee in a zone and
// updates the attendance slot for the current time.
func (s *PresenceService) CheckIn(ctx context.Context, zoneID, employeeID uint, actor *uint, notes string) (*model.GeofenceEvent, error) {
	var zone model.Zone
	if err := s.db.First(&zone, zoneID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, model.NotFoundError("zone", zoneID)
		}
		return nil, model.TransientError(err)
	}

	var employee model.Employee
	if err := s.db.First(&employee, employeeID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, model.NotFoundError("employee", employeeID)
		}
		return nil, model.TransientError(err)
	}

	now := time.Now().UTC()
	event := model.GeofenceEvent{
		ZoneID:     zone.ID,
		EmployeeID: employee.ID,
		EventType:  model.EventCheckIn,
		Lat:        zone.CenterLat,
		Lon:        zone.CenterLon,
		RecordedAt: now,
		Source:     model.SourceManual,
		Notes:      notes,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&event).Error; err != nil {
			return err
		}
		return s.upsertAttendance(tx, zone.ID, employee.ID, now)
	})
	if err != nil {
		return nil, model.TransientError(err)
	}

	log.Printf("[Presence] Manual check-in: employee %d in zone %q", employee.ID, zone.Name)
	return &event, nil
}

func findZone(zones []model.Zone, id uint) (*model.Zone, bool) {
	for i := range zones {
		if zones[i].ID == id {
			return &zones[i], true
		}
	}
	return nil, false
}

// shadowKey is the Redis key for an employee's latest position
func shadowKey(employeeID uint) string {
	return fmt.Sprintf("nuzum:shadow:%d", employeeID)
}
