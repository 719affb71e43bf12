package repositories

import (
	"context"
	"time"

	"github.com/phlockapp/backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EngagementRepository defines the interface for the append-only engagement
// log. Entries are analytics input only and are never updated or deleted.
type EngagementRepository interface {
	AppendEvent(ctx context.Context, event *models.EngagementEvent) error
	GetEventsByShareID(ctx context.Context, shareID string, limit int64) ([]models.EngagementEvent, error)
	CountByShareAction(ctx context.Context, shareID, action string) (int64, error)
}

// MongoEngagementRepository implements EngagementRepository for MongoDB
type MongoEngagementRepository struct {
	collection *mongo.Collection
}

// NewMongoEngagementRepository creates a new MongoEngagementRepository
func NewMongoEngagementRepository(db *mongo.Database) *MongoEngagementRepository {
	return &MongoEngagementRepository{collection: db.Collection("engagement_events")}
}

// AppendEvent appends one engagement log entry
func (r *MongoEngagementRepository) AppendEvent(ctx context.Context, event *models.EngagementEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	_, err := r.collection.InsertOne(ctx, event)
	return err
}

// GetEventsByShareID retrieves recent engagement entries for a share
func (r *MongoEngagementRepository) GetEventsByShareID(ctx context.Context, shareID string, limit int64) ([]models.EngagementEvent, error) {
	opts := options.Find().SetSort(bson.M{"created_at": -1}).SetLimit(limit)
	cursor, err := r.collection.Find(ctx, bson.M{"share_id": shareID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []models.EngagementEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CountByShareAction counts entries of one action type for a share
func (r *MongoEngagementRepository) CountByShareAction(ctx context.Context, shareID, action string) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"share_id": shareID, "action": action})
}
