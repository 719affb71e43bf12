package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/phlockapp/backend/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a per-test in-memory SQLite database with the same schema
// the server migrates at startup.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.DeviceToken{},
		&models.Notification{},
		&models.Share{},
		&models.Follow{},
		&models.PhlockSwap{},
		&models.FollowRequest{},
		&models.Like{},
		&models.Comment{},
		&models.CommentLike{},
	))
	return db
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func createTestUser(t *testing.T, db *gorm.DB, handle string) *models.User {
	t.Helper()
	user := &models.User{
		Name:   handle,
		Handle: handle,
		Email:  handle + "@example.com",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// fakePusher records every push dispatch instead of calling FCM.
type fakePusher struct {
	mu    sync.Mutex
	sends []pushSend
}

type pushSend struct {
	RecipientID uint
	Body        string
	TypeTag     string
	Data        map[string]string
}

func (p *fakePusher) Send(_ context.Context, recipientID uint, _, body, typeTag string, data map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sends = append(p.sends, pushSend{RecipientID: recipientID, Body: body, TypeTag: typeTag, Data: data})
	return nil
}

func (p *fakePusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sends)
}

func (p *fakePusher) countByType(typeTag string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.sends {
		if s.TypeTag == typeTag {
			n++
		}
	}
	return n
}

// fakeEngagementLog is an in-memory stand-in for the Mongo engagement log.
type fakeEngagementLog struct {
	mu     sync.Mutex
	events []models.EngagementEvent
}

func (l *fakeEngagementLog) AppendEvent(_ context.Context, event *models.EngagementEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, *event)
	return nil
}

func (l *fakeEngagementLog) GetEventsByShareID(_ context.Context, shareID string, limit int64) ([]models.EngagementEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.EngagementEvent
	for _, e := range l.events {
		if e.ShareID == shareID {
			out = append(out, e)
		}
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (l *fakeEngagementLog) CountByShareAction(_ context.Context, shareID, action string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, e := range l.events {
		if e.ShareID == shareID && e.Action == action {
			n++
		}
	}
	return n, nil
}

func (l *fakeEngagementLog) actions(shareID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		if e.ShareID == shareID {
			out = append(out, e.Action)
		}
	}
	return out
}

// fixedClock pins a service's notion of now; tests advance it by reassigning.
func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
