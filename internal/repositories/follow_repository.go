package repositories

import (
	"fmt"
	"time"

	"github.com/phlockapp/backend/internal/models"
	"gorm.io/gorm"
)

// FollowRepository defines the interface for follow and phlock data operations
type FollowRepository interface {
	CreateFollow(follow *models.Follow) error
	DeleteFollow(followerID, followingID uint) error
	GetFollow(followerID, followingID uint) (*models.Follow, error)
	UpdateFollow(follow *models.Follow) error
	IsFollowing(followerID, followingID uint) (bool, error)
	GetFollowers(userID uint) ([]models.User, error)
	GetFollowing(userID uint) ([]models.User, error)
	GetFollowingIDs(userID uint) ([]uint, error)
	GetPhlock(userID uint) ([]models.Follow, error)
	GetPhlockMembers(userID uint) ([]models.User, error)
	GetPhlockOwnerIDs(memberID uint) ([]uint, error)
	GetMostPhlockedUserIDs(excludeIDs []uint, limit int) ([]uint, error)
	SwapPhlockSlots(userID, outID, inID uint, position int, now time.Time) error
	CreateSwap(swap *models.PhlockSwap) error
	GetDueSwaps(now time.Time) ([]models.PhlockSwap, error)
	MarkSwapApplied(id uint, now time.Time) error
}

// PostgresFollowRepository implements FollowRepository for PostgreSQL
type PostgresFollowRepository struct {
	db *gorm.DB
}

// NewPostgresFollowRepository creates a new PostgresFollowRepository
func NewPostgresFollowRepository(db *gorm.DB) *PostgresFollowRepository {
	return &PostgresFollowRepository{db: db}
}

func (r *PostgresFollowRepository) CreateFollow(follow *models.Follow) error {
	return r.db.Create(follow).Error
}

func (r *PostgresFollowRepository) DeleteFollow(followerID, followingID uint) error {
	res := r.db.Where("follower_id = ? AND following_id = ?", followerID, followingID).Delete(&models.Follow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("follow relationship not found")
	}
	return nil
}

func (r *PostgresFollowRepository) GetFollow(followerID, followingID uint) (*models.Follow, error) {
	var follow models.Follow
	if err := r.db.Where("follower_id = ? AND following_id = ?", followerID, followingID).First(&follow).Error; err != nil {
		return nil, err
	}
	return &follow, nil
}

func (r *PostgresFollowRepository) UpdateFollow(follow *models.Follow) error {
	// Save skips zero-valued fields; phlock removal nulls position and
	// added-at, so write the full column set explicitly.
	return r.db.Model(&models.Follow{}).Where("id = ?", follow.ID).
		Updates(map[string]interface{}{
			"is_in_phlock":    follow.IsInPhlock,
			"phlock_position": follow.PhlockPosition,
			"phlock_added_at": follow.PhlockAddedAt,
		}).Error
}

func (r *PostgresFollowRepository) IsFollowing(followerID, followingID uint) (bool, error) {
	var count int64
	if err := r.db.Model(&models.Follow{}).Where("follower_id = ? AND following_id = ?", followerID, followingID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *PostgresFollowRepository) GetFollowers(userID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.Where("id IN (?)",
		r.db.Table("follows").Select("follower_id").Where("following_id = ?", userID),
	).Find(&users).Error
	return users, err
}

func (r *PostgresFollowRepository) GetFollowing(userID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.Where("id IN (?)",
		r.db.Table("follows").Select("following_id").Where("follower_id = ?", userID),
	).Find(&users).Error
	return users, err
}

func (r *PostgresFollowRepository) GetFollowingIDs(userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Follow{}).Where("follower_id = ?", userID).Pluck("following_id", &ids).Error
	return ids, err
}

// GetPhlock returns a user's phlock rows ordered by slot position.
func (r *PostgresFollowRepository) GetPhlock(userID uint) ([]models.Follow, error) {
	var follows []models.Follow
	err := r.db.Where("follower_id = ? AND is_in_phlock = ?", userID, true).
		Order("phlock_position ASC").
		Find(&follows).Error
	return follows, err
}

func (r *PostgresFollowRepository) GetPhlockMembers(userID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.Where("id IN (?)",
		r.db.Table("follows").Select("following_id").Where("follower_id = ? AND is_in_phlock = ?", userID, true),
	).Find(&users).Error
	return users, err
}

// GetPhlockOwnerIDs lists everyone who currently has this user in their
// phlock; the fan-out audience for "phlock song ready".
func (r *PostgresFollowRepository) GetPhlockOwnerIDs(memberID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Follow{}).
		Where("following_id = ? AND is_in_phlock = ?", memberID, true).
		Pluck("follower_id", &ids).Error
	return ids, err
}

// GetMostPhlockedUserIDs is the popularity fallback for recommendations:
// users appearing in the most phlocks, excluding already-connected ones.
func (r *PostgresFollowRepository) GetMostPhlockedUserIDs(excludeIDs []uint, limit int) ([]uint, error) {
	var ids []uint
	q := r.db.Model(&models.Follow{}).
		Select("following_id").
		Where("is_in_phlock = ?", true).
		Group("following_id").
		Order("COUNT(*) DESC").
		Limit(limit)
	if len(excludeIDs) > 0 {
		q = q.Where("following_id NOT IN ?", excludeIDs)
	}
	err := q.Pluck("following_id", &ids).Error
	return ids, err
}

// SwapPhlockSlots vacates the outgoing member's slot and seats the incoming
// member at the same position in one transaction, so a failed swap can never
// leave the slot half-empty.
func (r *PostgresFollowRepository) SwapPhlockSlots(userID, outID, inID uint, position int, now time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Follow{}).
			Where("follower_id = ? AND following_id = ? AND is_in_phlock = ?", userID, outID, true).
			Updates(map[string]interface{}{
				"is_in_phlock":    false,
				"phlock_position": nil,
				"phlock_added_at": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		res = tx.Model(&models.Follow{}).
			Where("follower_id = ? AND following_id = ?", userID, inID).
			Updates(map[string]interface{}{
				"is_in_phlock":    true,
				"phlock_position": position,
				"phlock_added_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *PostgresFollowRepository) CreateSwap(swap *models.PhlockSwap) error {
	return r.db.Create(swap).Error
}

func (r *PostgresFollowRepository) GetDueSwaps(now time.Time) ([]models.PhlockSwap, error) {
	var swaps []models.PhlockSwap
	err := r.db.Where("applied_at IS NULL AND execute_after <= ?", now).
		Order("execute_after ASC").
		Find(&swaps).Error
	return swaps, err
}

func (r *PostgresFollowRepository) MarkSwapApplied(id uint, now time.Time) error {
	return r.db.Model(&models.PhlockSwap{}).Where("id = ?", id).Update("applied_at", now).Error
}
