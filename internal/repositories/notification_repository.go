package repositories

import (
	"encoding/json"
	"time"

	"github.com/phlockapp/backend/internal/models"
	"gorm.io/gorm"
)

// NotificationRepository defines the interface for notification operations.
// The merge operations are single UPDATE statements so two racing aggregator
// calls cannot drop a counter increment.
type NotificationRepository interface {
	CreateNotification(notification *models.Notification) error
	GetByRecipientID(recipientID uint, limit int) ([]models.Notification, error)
	FindDailyAggregate(recipientID uint, notifType string, dayStart time.Time) (*models.Notification, error)
	FindByRecipientActorType(recipientID, actorID uint, notifType string) (*models.Notification, error)
	UpdateActorSet(id uint, actorIDs []uint, message string, now time.Time) error
	IncrementCount(id uint, now time.Time) error
	RefreshUnread(id uint, now time.Time) error
	GetUnreadCount(recipientID uint) (int64, error)
	MarkAsRead(notificationID, recipientID uint, now time.Time) (bool, error)
	MarkAllAsRead(recipientID uint, now time.Time) error
}

type postgresNotificationRepository struct {
	db *gorm.DB
}

func NewPostgresNotificationRepository(db *gorm.DB) NotificationRepository {
	return &postgresNotificationRepository{db: db}
}

func (r *postgresNotificationRepository) CreateNotification(notification *models.Notification) error {
	return r.db.Create(notification).Error
}

func (r *postgresNotificationRepository) GetByRecipientID(recipientID uint, limit int) ([]models.Notification, error) {
	var notifications []models.Notification
	err := r.db.Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error
	return notifications, err
}

// FindDailyAggregate returns the most recent row of an aggregating type
// created at or after the recipient's local midnight. gorm.ErrRecordNotFound
// means a fresh row should be started.
func (r *postgresNotificationRepository) FindDailyAggregate(recipientID uint, notifType string, dayStart time.Time) (*models.Notification, error) {
	var notification models.Notification
	err := r.db.Where("recipient_id = ? AND type = ? AND created_at >= ?", recipientID, notifType, dayStart).
		Order("created_at DESC").
		First(&notification).Error
	if err != nil {
		return nil, err
	}
	return &notification, nil
}

// FindByRecipientActorType looks up the single dedup row for follower-style
// types, regardless of date.
func (r *postgresNotificationRepository) FindByRecipientActorType(recipientID, actorID uint, notifType string) (*models.Notification, error) {
	var notification models.Notification
	err := r.db.Where("recipient_id = ? AND actor_id = ? AND type = ?", recipientID, actorID, notifType).
		First(&notification).Error
	if err != nil {
		return nil, err
	}
	return &notification, nil
}

// UpdateActorSet writes the merged actor list and refreshes the row timestamp
// and message in one statement. The list is marshalled here because map-form
// updates skip the model's field serializer.
func (r *postgresNotificationRepository) UpdateActorSet(id uint, actorIDs []uint, message string, now time.Time) error {
	encoded, err := json.Marshal(actorIDs)
	if err != nil {
		return err
	}
	return r.db.Model(&models.Notification{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"actor_ids":  string(encoded),
			"message":    message,
			"created_at": now,
		}).Error
}

// IncrementCount bumps an anonymous engagement counter atomically.
func (r *postgresNotificationRepository) IncrementCount(id uint, now time.Time) error {
	return r.db.Model(&models.Notification{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"count":      gorm.Expr("count + 1"),
			"created_at": now,
		}).Error
}

// RefreshUnread brings a dedup row back to the top of the feed as unread.
func (r *postgresNotificationRepository) RefreshUnread(id uint, now time.Time) error {
	return r.db.Model(&models.Notification{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"read_at":    nil,
			"created_at": now,
		}).Error
}

func (r *postgresNotificationRepository) GetUnreadCount(recipientID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Notification{}).
		Where("recipient_id = ? AND read_at IS NULL", recipientID).
		Count(&count).Error
	return count, err
}

// MarkAsRead flips one of the recipient's own unread rows and reports whether
// a row actually changed, so callers can keep cached unread counts honest.
func (r *postgresNotificationRepository) MarkAsRead(notificationID, recipientID uint, now time.Time) (bool, error) {
	res := r.db.Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ? AND read_at IS NULL", notificationID, recipientID).
		Update("read_at", now)
	return res.RowsAffected == 1, res.Error
}

func (r *postgresNotificationRepository) MarkAllAsRead(recipientID uint, now time.Time) error {
	return r.db.Model(&models.Notification{}).
		Where("recipient_id = ? AND read_at IS NULL", recipientID).
		Update("read_at", now).Error
}
