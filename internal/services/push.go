package services

import (
	"context"
	"strconv"

	"firebase.google.com/go/v4/messaging"
	"github.com/phlockapp/backend/internal/repositories"
)

// Pusher delivers one push notification to all of a user's devices. Dispatch
// is always fire-and-forget from the caller's perspective: errors are logged
// by the TaskRunner, never surfaced to the triggering operation.
type Pusher interface {
	Send(ctx context.Context, recipientID uint, title, body, typeTag string, data map[string]string) error
}

// FCMPusher sends through Firebase Cloud Messaging.
type FCMPusher struct {
	client *messaging.Client
	users  repositories.UserRepository
}

// NewFCMPusher creates a new FCMPusher
func NewFCMPusher(client *messaging.Client, users repositories.UserRepository) *FCMPusher {
	return &FCMPusher{client: client, users: users}
}

func (p *FCMPusher) Send(ctx context.Context, recipientID uint, title, body, typeTag string, data map[string]string) error {
	tokens, err := p.users.GetDeviceTokens(recipientID)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}

	payload := map[string]string{"type": typeTag, "recipient_id": strconv.FormatUint(uint64(recipientID), 10)}
	for k, v := range data {
		payload[k] = v
	}

	registration := make([]string, len(tokens))
	for i, t := range tokens {
		registration[i] = t.Token
	}

	_, err = p.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens:       registration,
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         payload,
	})
	return err
}

// NopPusher discards pushes; used when FCM credentials are not configured.
type NopPusher struct{}

func (NopPusher) Send(context.Context, uint, string, string, string, map[string]string) error {
	return nil
}
