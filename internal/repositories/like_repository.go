package repositories

import (
	"fmt"

	"github.com/phlockapp/backend/internal/models"
	"gorm.io/gorm"
)

// LikeRepository defines the interface for like data operations
type LikeRepository interface {
	CreateLike(like *models.Like) error
	DeleteLike(shareID string, userID uint) error
	GetLikedShareIDs(userID uint, shareIDs []string) ([]string, error)
	GetLikesCountByShareID(shareID string) (int64, error)
	HasUserLikedShare(shareID string, userID uint) (bool, error)
}

// PostgresLikeRepository implements LikeRepository for PostgreSQL
type PostgresLikeRepository struct {
	db *gorm.DB
}

// NewPostgresLikeRepository creates a new PostgresLikeRepository
func NewPostgresLikeRepository(db *gorm.DB) *PostgresLikeRepository {
	return &PostgresLikeRepository{db: db}
}

func (r *PostgresLikeRepository) CreateLike(like *models.Like) error {
	return r.db.Create(like).Error
}

func (r *PostgresLikeRepository) DeleteLike(shareID string, userID uint) error {
	res := r.db.Where("share_id = ? AND user_id = ?", shareID, userID).Delete(&models.Like{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("like not found")
	}
	return nil
}

// GetLikedShareIDs answers "which of these did this user like" in one query,
// used to hydrate a freshly loaded feed page.
func (r *PostgresLikeRepository) GetLikedShareIDs(userID uint, shareIDs []string) ([]string, error) {
	var ids []string
	if len(shareIDs) == 0 {
		return ids, nil
	}
	err := r.db.Model(&models.Like{}).
		Where("user_id = ? AND share_id IN ?", userID, shareIDs).
		Pluck("share_id", &ids).Error
	return ids, err
}

func (r *PostgresLikeRepository) GetLikesCountByShareID(shareID string) (int64, error) {
	var count int64
	if err := r.db.Model(&models.Like{}).Where("share_id = ?", shareID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PostgresLikeRepository) HasUserLikedShare(shareID string, userID uint) (bool, error) {
	var count int64
	if err := r.db.Model(&models.Like{}).Where("share_id = ? AND user_id = ?", shareID, userID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
