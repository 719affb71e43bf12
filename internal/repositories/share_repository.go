package repositories

import (
	"time"

	"github.com/phlockapp/backend/internal/models"
	"gorm.io/gorm"
)

// ShareRepository defines the interface for share data operations
type ShareRepository interface {
	CreateShare(share *models.Share) error
	GetShareByID(id string) (*models.Share, error)
	GetDailySong(senderID uint, date string) (*models.Share, error)
	GetDailySongsForDate(senderIDs []uint, date string) ([]models.Share, error)
	HasDailySongOnDate(senderID uint, date string) (bool, error)
	RecentDailyDates(senderID uint, limit int) ([]string, error)
	UpdateStatus(id, status string) error
	SetSaved(id string, savedAt *time.Time) error
	DeleteDailySong(senderID uint, date string) error
	GetSharesForRecipient(recipientID uint, limit int) ([]models.Share, error)
}

// PostgresShareRepository implements ShareRepository for PostgreSQL
type PostgresShareRepository struct {
	db *gorm.DB
}

// NewPostgresShareRepository creates a new PostgresShareRepository
func NewPostgresShareRepository(db *gorm.DB) *PostgresShareRepository {
	return &PostgresShareRepository{db: db}
}

func (r *PostgresShareRepository) CreateShare(share *models.Share) error {
	return r.db.Create(share).Error
}

func (r *PostgresShareRepository) GetShareByID(id string) (*models.Share, error) {
	var share models.Share
	if err := r.db.Where("id = ?", id).First(&share).Error; err != nil {
		return nil, err
	}
	return &share, nil
}

// GetDailySong looks up a user's pick for a local calendar day.
func (r *PostgresShareRepository) GetDailySong(senderID uint, date string) (*models.Share, error) {
	var share models.Share
	err := r.db.Where("sender_id = ? AND is_daily_song = ? AND selected_date = ?", senderID, true, date).
		First(&share).Error
	if err != nil {
		return nil, err
	}
	return &share, nil
}

// GetDailySongsForDate fetches the picks of a set of users (the phlock feed)
// in one query.
func (r *PostgresShareRepository) GetDailySongsForDate(senderIDs []uint, date string) ([]models.Share, error) {
	var shares []models.Share
	if len(senderIDs) == 0 {
		return shares, nil
	}
	err := r.db.Where("sender_id IN ? AND is_daily_song = ? AND selected_date = ?", senderIDs, true, date).
		Order("created_at DESC").
		Find(&shares).Error
	return shares, err
}

// HasDailySongOnDate is the privacy-preserving boolean check: it never
// exposes song content.
func (r *PostgresShareRepository) HasDailySongOnDate(senderID uint, date string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Share{}).
		Where("sender_id = ? AND is_daily_song = ? AND selected_date = ?", senderID, true, date).
		Count(&count).Error
	return count > 0, err
}

// RecentDailyDates returns a user's daily-song dates newest first, for
// streak computation.
func (r *PostgresShareRepository) RecentDailyDates(senderID uint, limit int) ([]string, error) {
	var dates []string
	err := r.db.Model(&models.Share{}).
		Where("sender_id = ? AND is_daily_song = ?", senderID, true).
		Order("selected_date DESC").
		Limit(limit).
		Pluck("selected_date", &dates).Error
	return dates, err
}

func (r *PostgresShareRepository) UpdateStatus(id, status string) error {
	return r.db.Model(&models.Share{}).Where("id = ?", id).Update("status", status).Error
}

// SetSaved records or clears the saved timestamp; saving is reversible.
func (r *PostgresShareRepository) SetSaved(id string, savedAt *time.Time) error {
	status := models.ShareStatusSaved
	if savedAt == nil {
		status = models.ShareStatusPlayed
	}
	return r.db.Model(&models.Share{}).Where("id = ?", id).
		Updates(map[string]interface{}{"saved_at": savedAt, "status": status}).Error
}

// DeleteDailySong removes today's pick; debug/reset only, shares are never
// otherwise deleted.
func (r *PostgresShareRepository) DeleteDailySong(senderID uint, date string) error {
	return r.db.Where("sender_id = ? AND is_daily_song = ? AND selected_date = ?", senderID, true, date).
		Delete(&models.Share{}).Error
}

func (r *PostgresShareRepository) GetSharesForRecipient(recipientID uint, limit int) ([]models.Share, error) {
	var shares []models.Share
	err := r.db.Where("recipient_id = ? AND sender_id <> ?", recipientID, recipientID).
		Order("created_at DESC").
		Limit(limit).
		Find(&shares).Error
	return shares, err
}
