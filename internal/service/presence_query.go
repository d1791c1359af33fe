package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
)

// Presence query scopes
const (
	ScopeDepartment = "department"
	ScopeAll        = "all"
)

// DefaultStaleness is how old an employee's newest sample may be before they
// stop counting as present in a zone
const DefaultStaleness = time.Hour

// PresenceQueryService answers live and historical presence questions
type PresenceQueryService struct {
	db    *gorm.DB
	redis *redis.Client
	tz    *time.Location
}

// NewPresenceQueryService creates a new presence query service
func NewPresenceQueryService(db *gorm.DB, redisClient *redis.Client, tz *time.Location) *PresenceQueryService {
	return &PresenceQueryService{db: db, redis: redisClient, tz: tz}
}

// EmployeesInZone returns employees whose newest sample lies inside the zone
// and is not older than the staleness threshold. Scope "department" restricts
// to the zone's owning department; "all" returns everyone geographically
// inside, flagged with is_eligible.
func (s *PresenceQueryService) EmployeesInZone(ctx context.Context, zoneID uint, scope string, staleness time.Duration) ([]model.PresenceEntry, error) {
	var zone model.Zone
	if err := s.db.First(&zone, zoneID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundError("zone", zoneID)
		}
		return nil, model.TransientError(err)
	}

	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	cutoff := time.Now().Add(-staleness)

	var employees []model.Employee
	query := s.db.Preload("Departments").Where("status = ?", model.EmployeeActive)
	if scope == ScopeDepartment {
		query = query.Joins("JOIN employee_departments ON employee_departments.employee_id = employees.id").
			Where("employee_departments.department_id = ?", zone.DepartmentID)
	}
	if err := query.Find(&employees).Error; err != nil {
		return nil, model.TransientError(err)
	}

	entries := make([]model.PresenceEntry, 0)
	for i := range employees {
		emp := &employees[i]
		sample, err := s.latestSample(ctx, emp.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, model.TransientError(err)
		}
		if sample.RecordedAt.Before(cutoff) {
			continue
		}
		if !IsInside(sample.Lat, sample.Lon, &zone) {
			continue
		}

		eligible := false
		for _, dept := range emp.Departments {
			if dept.ID == zone.DepartmentID {
				eligible = true
				break
			}
		}

		entries = append(entries, model.PresenceEntry{
			EmployeeID:       emp.ID,
			Name:             emp.Name,
			LastSampleAt:     sample.RecordedAt,
			Lat:              sample.Lat,
			Lon:              sample.Lon,
			DistanceM:        ZoneDistanceMeters(sample.Lat, sample.Lon, &zone),
			ConnectionStatus: ConnectionStatus(sample.RecordedAt, time.Now()),
			IsEligible:       eligible,
		})
	}

	return entries, nil
}

// ZoneAttendance returns the daily roll-up for a zone: one row per department
// employee with their morning/evening entries and derived status.
func (s *PresenceQueryService) ZoneAttendance(ctx context.Context, zoneID uint, date string) ([]model.AttendanceEntry, error) {
	var zone model.Zone
	if err := s.db.First(&zone, zoneID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundError("zone", zoneID)
		}
		return nil, model.TransientError(err)
	}

	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, model.ValidationError("malformed date %q", date)
	}

	var employees []model.Employee
	if err := s.db.Joins("JOIN employee_departments ON employee_departments.employee_id = employees.id").
		Where("employee_departments.department_id = ?", zone.DepartmentID).
		Where("status = ?", model.EmployeeActive).
		Find(&employees).Error; err != nil {
		return nil, model.TransientError(err)
	}

	entries := make([]model.AttendanceEntry, 0, len(employees))
	for i := range employees {
		emp := &employees[i]

		entry := model.AttendanceEntry{EmployeeID: emp.ID, Name: emp.Name}

		var att model.GeofenceAttendance
		err := s.db.Where("zone_id = ? AND employee_id = ? AND attendance_date = ?", zone.ID, emp.ID, date).First(&att).Error
		if err == nil {
			entry.MorningEntry = att.MorningEntry
			entry.EveningEntry = att.EveningEntry
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.TransientError(err)
		}

		session, err := s.firstSessionOfDay(zone.ID, emp.ID, date)
		if err != nil {
			return nil, err
		}
		entry.Status = s.attendanceStatus(&zone, session)

		entries = append(entries, entry)
	}

	return entries, nil
}

// attendanceStatus derives the status of one employee's day from their first
// session in the zone
func (s *PresenceQueryService) attendanceStatus(zone *model.Zone, session *model.GeofenceSession) string {
	if session == nil {
		return "absent"
	}
	if session.DurationMinutes != nil && *session.DurationMinutes < zone.AttendanceRequiredMinutes {
		return "insufficient_time"
	}
	if zone.AttendanceStartTime == "" {
		return "present"
	}
	status, lateMinutes := ClassifyEntry(session.EntryTime, zone.AttendanceStartTime, s.tz)
	if status == "late" {
		return fmt.Sprintf("late_%d", lateMinutes)
	}
	return status
}

// firstSessionOfDay returns the earliest session of that local day, or nil
func (s *PresenceQueryService) firstSessionOfDay(zoneID, employeeID uint, date string) (*model.GeofenceSession, error) {
	day, _ := time.ParseInLocation("2006-01-02", date, s.tz)
	dayStart := day.UTC()
	dayEnd := day.Add(24 * time.Hour).UTC()

	var session model.GeofenceSession
	err := s.db.Where("zone_id = ? AND employee_id = ? AND entry_time >= ? AND entry_time < ?",
		zoneID, employeeID, dayStart, dayEnd).
		Order("entry_time ASC").First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, model.TransientError(err)
	}
	return &session, nil
}

// EmployeeHistory returns the employee's samples over the last N hours,
// newest first, decorated with the zone and vehicle they mapped to.
func (s *PresenceQueryService) EmployeeHistory(ctx context.Context, employeeID uint, hours int) ([]model.HistorySample, error) {
	var employee model.Employee
	if err := s.db.First(&employee, employeeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundError("employee", employeeID)
		}
		return nil, model.TransientError(err)
	}

	if hours <= 0 {
		hours = 24
	}
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)

	var samples []model.LocationSample
	if err := s.db.Where("employee_id = ? AND recorded_at >= ?", employeeID, cutoff).
		Order("recorded_at DESC").Find(&samples).Error; err != nil {
		return nil, model.TransientError(err)
	}

	var zones []model.Zone
	if err := s.db.Find(&zones).Error; err != nil {
		return nil, model.TransientError(err)
	}
	vehicles := make(map[uint]string)

	history := make([]model.HistorySample, 0, len(samples))
	for i := range samples {
		sample := samples[i]
		h := model.HistorySample{LocationSample: sample}
		for j := range zones {
			if IsInside(sample.Lat, sample.Lon, &zones[j]) {
				h.ZoneName = zones[j].Name
				break
			}
		}
		if sample.VehicleID != nil {
			plate, ok := vehicles[*sample.VehicleID]
			if !ok {
				var vehicle model.Vehicle
				if err := s.db.First(&vehicle, *sample.VehicleID).Error; err == nil {
					plate = vehicle.PlateNumber
				}
				vehicles[*sample.VehicleID] = plate
			}
			h.VehiclePlate = plate
		}
		history = append(history, h)
	}

	return history, nil
}

// LiveLocations returns the latest known positions of all active employees,
// served from the Redis shadows with a database fallback.
func (s *PresenceQueryService) LiveLocations(ctx context.Context) ([]model.EmployeeShadow, error) {
	var employees []model.Employee
	if err := s.db.Where("status = ?", model.EmployeeActive).Find(&employees).Error; err != nil {
		return nil, model.TransientError(err)
	}

	shadows := make([]model.EmployeeShadow, 0, len(employees))
	for i := range employees {
		emp := &employees[i]
		if s.redis != nil {
			if data, err := s.redis.Get(ctx, shadowKey(emp.ID)).Result(); err == nil {
				var shadow model.EmployeeShadow
				if err := json.Unmarshal([]byte(data), &shadow); err == nil {
					shadows = append(shadows, shadow)
					continue
				}
			}
		}
		sample, err := s.latestSampleDB(emp.ID)
		if err != nil {
			continue
		}
		shadow := model.EmployeeShadow{
			EmployeeID: emp.ID,
			Lat:        sample.Lat,
			Lon:        sample.Lon,
			RecordedAt: sample.RecordedAt.Unix(),
		}
		if sample.SpeedKmh != nil {
			shadow.SpeedKmh = *sample.SpeedKmh
		}
		shadows = append(shadows, shadow)
	}

	return shadows, nil
}

// latestSample reads the employee's newest sample, preferring the Redis shadow
func (s *PresenceQueryService) latestSample(ctx context.Context, employeeID uint) (*model.LocationSample, error) {
	if s.redis != nil {
		if data, err := s.redis.Get(ctx, shadowKey(employeeID)).Result(); err == nil {
			var shadow model.EmployeeShadow
			if err := json.Unmarshal([]byte(data), &shadow); err == nil {
				return &model.LocationSample{
					EmployeeID: shadow.EmployeeID,
					Lat:        shadow.Lat,
					Lon:        shadow.Lon,
					RecordedAt: time.Unix(shadow.RecordedAt, 0).UTC(),
				}, nil
			}
		}
	}
	return s.latestSampleDB(employeeID)
}

func (s *PresenceQueryService) latestSampleDB(employeeID uint) (*model.LocationSample, error) {
	var sample model.LocationSample
	if err := s.db.Where("employee_id = ?", employeeID).Order("recorded_at DESC").First(&sample).Error; err != nil {
		return nil, err
	}
	return &sample, nil
}

// ConnectionStatus buckets sample age into the dashboard's connection states:
// 5 minutes, 30 minutes, 6 hours, older.
func ConnectionStatus(lastSampleAt, now time.Time) string {
	age := now.Sub(lastSampleAt)
	switch {
	case age < 5*time.Minute:
		return model.ConnectionConnected
	case age < 30*time.Minute:
		return model.ConnectionRecentlyActive
	case age < 6*time.Hour:
		return model.ConnectionDisconnected
	default:
		return model.ConnectionInactive
	}
}
