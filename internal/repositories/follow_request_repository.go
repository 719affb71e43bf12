package repositories

import (
	"fmt"
	"time"

	"github.com/phlockapp/backend/internal/models"
	"gorm.io/gorm"
)

// FollowRequestRepository defines the interface for follow-request data operations
type FollowRequestRepository interface {
	CreateRequest(req *models.FollowRequest) error
	GetRequestByID(id uint) (*models.FollowRequest, error)
	GetRequestByRequesterTarget(requesterID, targetID uint) (*models.FollowRequest, error)
	GetPendingForTarget(targetID uint) ([]models.FollowRequest, error)
	AcceptRequest(id uint, now time.Time) error
	RejectRequest(id uint, now time.Time) error
}

// PostgresFollowRequestRepository implements FollowRequestRepository for PostgreSQL
type PostgresFollowRequestRepository struct {
	db *gorm.DB
}

// NewPostgresFollowRequestRepository creates a new PostgresFollowRequestRepository
func NewPostgresFollowRequestRepository(db *gorm.DB) *PostgresFollowRequestRepository {
	return &PostgresFollowRequestRepository{db: db}
}

// CreateRequest creates a pending request. Asking again while one is pending
// is a no-op; the existing request keeps its timestamps.
func (r *PostgresFollowRequestRepository) CreateRequest(req *models.FollowRequest) error {
	var existing models.FollowRequest
	err := r.db.Where("requester_id = ? AND target_id = ? AND status = ?",
		req.RequesterID, req.TargetID, models.FollowRequestPending).First(&existing).Error
	if err == nil {
		*req = existing
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	req.Status = models.FollowRequestPending
	return r.db.Create(req).Error
}

func (r *PostgresFollowRequestRepository) GetRequestByID(id uint) (*models.FollowRequest, error) {
	var req models.FollowRequest
	if err := r.db.First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *PostgresFollowRequestRepository) GetRequestByRequesterTarget(requesterID, targetID uint) (*models.FollowRequest, error) {
	var req models.FollowRequest
	if err := r.db.Where("requester_id = ? AND target_id = ?", requesterID, targetID).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *PostgresFollowRequestRepository) GetPendingForTarget(targetID uint) ([]models.FollowRequest, error) {
	var requests []models.FollowRequest
	if err := r.db.Where("target_id = ? AND status = ?", targetID, models.FollowRequestPending).Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

// AcceptRequest atomically flips the request status and creates the Follow
// row; callers must treat the two as a unit.
func (r *PostgresFollowRequestRepository) AcceptRequest(id uint, now time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var req models.FollowRequest
		if err := tx.First(&req, id).Error; err != nil {
			return err
		}
		if req.Status != models.FollowRequestPending {
			return fmt.Errorf("follow request is not pending")
		}
		if err := tx.Model(&models.FollowRequest{}).Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":       models.FollowRequestAccepted,
				"responded_at": now,
			}).Error; err != nil {
			return err
		}
		return tx.Create(&models.Follow{
			FollowerID:  req.RequesterID,
			FollowingID: req.TargetID,
		}).Error
	})
}

func (r *PostgresFollowRequestRepository) RejectRequest(id uint, now time.Time) error {
	return r.db.Model(&models.FollowRequest{}).Where("id = ? AND status = ?", id, models.FollowRequestPending).
		Updates(map[string]interface{}{
			"status":       models.FollowRequestRejected,
			"responded_at": now,
		}).Error
}
