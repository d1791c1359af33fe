package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"gorm.io/gorm"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
)

const (
	// maxDeliveryAttempts bounds push delivery before a notification is left
	// as in-app only
	maxDeliveryAttempts = 3

	dispatchInterval = 10 * time.Second
	dispatchBatch    = 50
)

// NotificationService persists in-app notifications and pushes them to an
// external gateway with bounded retries. Rows are created inside the caller's
// transaction; delivery runs asynchronously off the stored rows, so a crashed
// dispatcher picks up where it left off.
type NotificationService struct {
	db         *gorm.DB
	nats       *nats.Conn
	pushURL    string
	httpClient *http.Client

	sub    *nats.Subscription
	stopCh chan struct{}
}

// NewNotificationService creates a new notification service. pushURL may be
// empty, in which case notifications stay in-app only.
func NewNotificationService(db *gorm.DB, natsConn *nats.Conn, pushURL string) *NotificationService {
	return &NotificationService{
		db:      db,
		nats:    natsConn,
		pushURL: pushURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		stopCh: make(chan struct{}),
	}
}

// Start subscribes to geofence events and launches the push dispatcher
func (s *NotificationService) Start() error {
	if s.nats != nil {
		sub, err := s.nats.Subscribe(SubjectGeofenceEvents, s.handleGeofenceEvent)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", SubjectGeofenceEvents, err)
		}
		s.sub = sub
	}

	go s.dispatchLoop()
	log.Println("[Notification] Service started")
	return nil
}

// Stop unsubscribes and stops the dispatcher
func (s *NotificationService) Stop() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	close(s.stopCh)
}

// EnqueueTx inserts one notification row per recipient inside tx
func (s *NotificationService) EnqueueTx(tx *gorm.DB, operationID *uint, userIDs []uint, kind, title, message string) error {
	if len(userIDs) == 0 {
		return nil
	}
	rows := make([]model.Notification, 0, len(userIDs))
	for _, userID := range userIDs {
		rows = append(rows, model.Notification{
			OperationRequestID: operationID,
			UserID:             userID,
			Kind:               kind,
			Title:              title,
			Message:            message,
		})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return model.TransientError(err)
	}
	return nil
}

// EnqueueForAdminsTx notifies every admin and manager account
func (s *NotificationService) EnqueueForAdminsTx(tx *gorm.DB, operationID *uint, kind, title, message string) error {
	var userIDs []uint
	if err := tx.Model(&model.User{}).
		Where("role IN ? AND status = ?", []string{model.RoleAdmin, model.RoleManager}, 1).
		Pluck("id", &userIDs).Error; err != nil {
		return model.TransientError(err)
	}
	return s.EnqueueTx(tx, operationID, userIDs, kind, title, message)
}

// List returns a user's notifications, newest first
func (s *NotificationService) List(ctx context.Context, userID uint, unreadOnly bool, page, pageSize int) ([]model.Notification, int64, error) {
	query := s.db.Model(&model.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, model.TransientError(err)
	}

	var notifications []model.Notification
	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&notifications).Error; err != nil {
		return nil, 0, model.TransientError(err)
	}
	return notifications, total, nil
}

// UnreadCount returns how many unread notifications a user has
func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, model.TransientError(err)
	}
	return count, nil
}

// MarkRead marks one notification as read. Only the owner may mark it.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) error {
	now := time.Now().UTC()
	res := s.db.Model(&model.Notification{}).
		Where("id = ? AND user_id = ? AND is_read = ?", id, userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": now})
	if res.Error != nil {
		return model.TransientError(res.Error)
	}
	if res.RowsAffected == 0 {
		var existing model.Notification
		if err := s.db.Where("id = ? AND user_id = ?", id, userID).First(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.NotFoundError("notification", id)
			}
			return model.TransientError(err)
		}
		// already read, treat as success
	}
	return nil
}

// MarkAllRead marks every unread notification of a user as read and returns
// the number affected
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	now := time.Now().UTC()
	res := s.db.Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": now})
	if res.Error != nil {
		return 0, model.TransientError(res.Error)
	}
	return res.RowsAffected, nil
}

// handleGeofenceEvent turns enter/exit events into notifications when the
// zone asks for them
func (s *NotificationService) handleGeofenceEvent(msg *nats.Msg) {
	var event model.GeofenceEventMessage
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		log.Printf("[Notification] Bad geofence event payload: %v", err)
		return
	}

	var zone model.Zone
	if err := s.db.First(&zone, event.ZoneID).Error; err != nil {
		return
	}

	var kind, title string
	switch event.EventType {
	case model.EventEnter:
		if !zone.NotifyOnEntry {
			return
		}
		kind = model.NotificationZoneEntry
		title = fmt.Sprintf("Entry into %s", zone.Name)
	case model.EventExit:
		if !zone.NotifyOnExit {
			return
		}
		kind = model.NotificationZoneExit
		title = fmt.Sprintf("Exit from %s", zone.Name)
	default:
		return
	}

	var employee model.Employee
	if err := s.db.First(&employee, event.EmployeeID).Error; err != nil {
		return
	}

	message := fmt.Sprintf("%s %s zone %s (%d m from center)",
		employee.Name, event.EventType, zone.Name, event.DistanceM)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.EnqueueForAdminsTx(tx, nil, kind, title, message)
	})
	if err != nil {
		log.Printf("[Notification] Failed to enqueue geofence notification: %v", err)
	}
}

// dispatchLoop periodically pushes undelivered notifications
func (s *NotificationService) dispatchLoop() {
	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.dispatchPending()
		}
	}
}

// dispatchPending pushes a batch of undelivered notifications to the gateway.
// Each failure bumps delivery_attempts; rows at the cap are left in-app only.
func (s *NotificationService) dispatchPending() {
	if s.pushURL == "" {
		return
	}

	var pending []model.Notification
	err := s.db.
		Where("delivered_at IS NULL AND delivery_attempts < ?", maxDeliveryAttempts).
		Order("created_at ASC").
		Limit(dispatchBatch).
		Find(&pending).Error
	if err != nil {
		log.Printf("[Notification] Failed to load pending notifications: %v", err)
		return
	}

	for i := range pending {
		n := &pending[i]
		if err := s.push(n); err != nil {
			s.db.Model(n).Update("delivery_attempts", gorm.Expr("delivery_attempts + 1"))
			if n.DeliveryAttempts+1 >= maxDeliveryAttempts {
				log.Printf("[Notification] Giving up on push for notification %d after %d attempts: %v",
					n.ID, maxDeliveryAttempts, err)
			}
			continue
		}
		now := time.Now().UTC()
		s.db.Model(n).Updates(map[string]interface{}{
			"delivered_at":      now,
			"delivery_attempts": gorm.Expr("delivery_attempts + 1"),
		})
	}
}

// push sends one notification to the external gateway
func (s *NotificationService) push(n *model.Notification) error {
	payload, err := json.Marshal(map[string]interface{}{
		"user_id": n.UserID,
		"kind":    n.Kind,
		"title":   n.Title,
		"message": n.Message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, s.pushURL, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway returned %d", resp.StatusCode)
	}
	return nil
}
