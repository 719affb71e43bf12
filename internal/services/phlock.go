package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/phlockapp/backend/internal/models"
	"github.com/phlockapp/backend/internal/repositories"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// fofFanout bounds the parallel friends-of-friends lookups.
const fofFanout = 10

// Phlock manages follow relationships, the fixed-size phlock (5 slots,
// positions 1..5), swap scheduling, and friend recommendations.
type Phlock struct {
	follows  repositories.FollowRepository
	requests repositories.FollowRequestRepository
	users    repositories.UserRepository
	shares   repositories.ShareRepository
	notifier *Notifier
	log      *logrus.Logger
	cache    *membershipCache
	loc      *time.Location
	now      func() time.Time
}

// NewPhlock creates a new Phlock service
func NewPhlock(
	follows repositories.FollowRepository,
	requests repositories.FollowRequestRepository,
	users repositories.UserRepository,
	shares repositories.ShareRepository,
	notifier *Notifier,
	log *logrus.Logger,
	loc *time.Location,
) *Phlock {
	if loc == nil {
		loc = time.Local
	}
	return &Phlock{
		follows:  follows,
		requests: requests,
		users:    users,
		shares:   shares,
		notifier: notifier,
		log:      log,
		cache:    newMembershipCache(membershipTTL),
		loc:      loc,
		now:      time.Now,
	}
}

// Follow creates the directed relationship and records the new-follower
// notification (deduped and refreshed by the aggregator on re-follows).
func (s *Phlock) Follow(ctx context.Context, followerID, targetID uint) error {
	if followerID == targetID {
		return ErrCannotFollowSelf
	}
	following, err := s.follows.IsFollowing(followerID, targetID)
	if err != nil {
		return err
	}
	if following {
		return ErrAlreadyFollowing
	}
	if err := s.follows.CreateFollow(&models.Follow{FollowerID: followerID, FollowingID: targetID}); err != nil {
		return err
	}
	s.cache.invalidate(followerID)
	s.cache.invalidate(targetID)

	if err := s.notifier.RecordEvent(ctx, targetID, followerID, Event{Type: models.NotificationNewFollower}); err != nil {
		s.log.WithError(err).Warn("new-follower notification failed")
	}
	return nil
}

// Unfollow deletes the relationship; phlock membership goes with the row.
func (s *Phlock) Unfollow(ctx context.Context, followerID, targetID uint) error {
	if err := s.follows.DeleteFollow(followerID, targetID); err != nil {
		return err
	}
	s.cache.invalidate(followerID)
	s.cache.invalidate(targetID)
	return nil
}

// RequestFollow files a pending request against a private profile.
func (s *Phlock) RequestFollow(ctx context.Context, requesterID, targetID uint) error {
	if requesterID == targetID {
		return ErrCannotFollowSelf
	}
	following, err := s.follows.IsFollowing(requesterID, targetID)
	if err != nil {
		return err
	}
	if following {
		return ErrAlreadyFollowing
	}
	if err := s.requests.CreateRequest(&models.FollowRequest{RequesterID: requesterID, TargetID: targetID}); err != nil {
		return err
	}
	if err := s.notifier.RecordEvent(ctx, targetID, requesterID, Event{Type: models.NotificationFollowRequest}); err != nil {
		s.log.WithError(err).Warn("follow-request notification failed")
	}
	return nil
}

// AcceptFollowRequest flips the request and creates the Follow row in one
// backend transaction, then surfaces the new follower to the target.
func (s *Phlock) AcceptFollowRequest(ctx context.Context, targetID, requestID uint) error {
	req, err := s.requests.GetRequestByID(requestID)
	if err != nil {
		return err
	}
	if req.TargetID != targetID {
		return gorm.ErrRecordNotFound
	}
	if err := s.requests.AcceptRequest(requestID, s.now().In(s.loc)); err != nil {
		return err
	}
	s.cache.invalidate(req.RequesterID)
	s.cache.invalidate(targetID)

	if err := s.notifier.RecordEvent(ctx, targetID, req.RequesterID, Event{Type: models.NotificationNewFollower}); err != nil {
		s.log.WithError(err).Warn("new-follower notification failed")
	}
	return nil
}

// RejectFollowRequest declines a pending request.
func (s *Phlock) RejectFollowRequest(ctx context.Context, targetID, requestID uint) error {
	req, err := s.requests.GetRequestByID(requestID)
	if err != nil {
		return err
	}
	if req.TargetID != targetID {
		return gorm.ErrRecordNotFound
	}
	return s.requests.RejectRequest(requestID, s.now().In(s.loc))
}

// AddToPhlock places a followed user at a slot position. Adding at an
// occupied position evicts the current occupant first.
func (s *Phlock) AddToPhlock(ctx context.Context, userID, targetID uint, position int) error {
	if position < 1 || position > models.PhlockSize {
		return ErrInvalidPhlockPosition
	}
	follow, err := s.follows.GetFollow(userID, targetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFollowing
		}
		return err
	}

	phlock, err := s.follows.GetPhlock(userID)
	if err != nil {
		return err
	}
	for i := range phlock {
		occupant := &phlock[i]
		if occupant.FollowingID == targetID {
			continue
		}
		if occupant.PhlockPosition != nil && *occupant.PhlockPosition == position {
			occupant.IsInPhlock = false
			occupant.PhlockPosition = nil
			occupant.PhlockAddedAt = nil
			if err := s.follows.UpdateFollow(occupant); err != nil {
				return err
			}
		}
	}

	now := s.now().In(s.loc)
	follow.IsInPhlock = true
	follow.PhlockPosition = &position
	if follow.PhlockAddedAt == nil {
		follow.PhlockAddedAt = &now
	}
	if err := s.follows.UpdateFollow(follow); err != nil {
		return err
	}
	s.cache.invalidate(userID)
	return nil
}

// RemoveFromPhlock frees the member's slot.
func (s *Phlock) RemoveFromPhlock(ctx context.Context, userID, targetID uint) error {
	follow, err := s.follows.GetFollow(userID, targetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFollowing
		}
		return err
	}
	if !follow.IsInPhlock {
		return ErrNotInPhlock
	}
	follow.IsInPhlock = false
	follow.PhlockPosition = nil
	follow.PhlockAddedAt = nil
	if err := s.follows.UpdateFollow(follow); err != nil {
		return err
	}
	s.cache.invalidate(userID)
	return nil
}

// ReorderPhlock re-assigns positions 1..N in the given order. Every id must
// already be a phlock member.
func (s *Phlock) ReorderPhlock(ctx context.Context, userID uint, orderedIDs []uint) error {
	if len(orderedIDs) > models.PhlockSize {
		return ErrInvalidPhlockPosition
	}
	phlock, err := s.follows.GetPhlock(userID)
	if err != nil {
		return err
	}
	byFollowing := make(map[uint]*models.Follow, len(phlock))
	for i := range phlock {
		byFollowing[phlock[i].FollowingID] = &phlock[i]
	}

	for i, id := range orderedIDs {
		follow, ok := byFollowing[id]
		if !ok {
			return ErrNotInPhlock
		}
		position := i + 1
		follow.PhlockPosition = &position
		if err := s.follows.UpdateFollow(follow); err != nil {
			return err
		}
	}
	s.cache.invalidate(userID)
	return nil
}

// SwapPhlockMember replaces outID with inID. The swap applies immediately
// unless the incoming member already picked today, in which case it is
// scheduled for the next local midnight so an already-rendered feed is not
// disrupted mid-day.
func (s *Phlock) SwapPhlockMember(ctx context.Context, userID, outID, inID uint) (scheduled bool, err error) {
	outFollow, err := s.follows.GetFollow(userID, outID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrNotInPhlock
		}
		return false, err
	}
	if !outFollow.IsInPhlock || outFollow.PhlockPosition == nil {
		return false, ErrNotInPhlock
	}
	if _, err := s.follows.GetFollow(userID, inID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrNotFollowing
		}
		return false, err
	}

	now := s.now().In(s.loc)
	today := now.Format(models.DateLayout)
	picked, err := s.shares.HasDailySongOnDate(inID, today)
	if err != nil {
		return false, err
	}
	if picked {
		if err := s.follows.CreateSwap(&models.PhlockSwap{
			UserID:       userID,
			OutUserID:    outID,
			InUserID:     inID,
			ExecuteAfter: nextMidnight(now, s.loc),
		}); err != nil {
			return false, err
		}
		return true, nil
	}

	return false, s.applySwap(userID, outID, inID, *outFollow.PhlockPosition)
}

func (s *Phlock) applySwap(userID, outID, inID uint, position int) error {
	if err := s.follows.SwapPhlockSlots(userID, outID, inID, position, s.now().In(s.loc)); err != nil {
		return err
	}
	s.cache.invalidate(userID)
	return nil
}

// ProcessDueSwaps applies every scheduled swap whose midnight has passed.
// Swaps that can no longer apply (unfollowed, slot gone) are logged and
// marked applied so they never retry forever.
func (s *Phlock) ProcessDueSwaps(ctx context.Context) error {
	now := s.now().In(s.loc)
	swaps, err := s.follows.GetDueSwaps(now)
	if err != nil {
		return err
	}
	for _, swap := range swaps {
		outFollow, err := s.follows.GetFollow(swap.UserID, swap.OutUserID)
		if err == nil && outFollow.IsInPhlock && outFollow.PhlockPosition != nil {
			if err := s.applySwap(swap.UserID, swap.OutUserID, swap.InUserID, *outFollow.PhlockPosition); err != nil {
				s.log.WithError(err).WithField("swap_id", swap.ID).Warn("scheduled phlock swap failed")
			}
		} else {
			s.log.WithField("swap_id", swap.ID).Info("scheduled phlock swap no longer applicable")
		}
		if err := s.follows.MarkSwapApplied(swap.ID, now); err != nil {
			return err
		}
	}
	return nil
}

// GetPhlockMembers returns the user's phlock through the short-lived cache.
func (s *Phlock) GetPhlockMembers(userID uint) ([]models.User, error) {
	if users, ok := s.cache.get("phlock", userID); ok {
		return users, nil
	}
	users, err := s.follows.GetPhlockMembers(userID)
	if err != nil {
		return nil, err
	}
	s.cache.set("phlock", userID, users)
	return users, nil
}

// GetPhlock returns the raw slot rows (uncached; used where positions matter).
func (s *Phlock) GetPhlock(userID uint) ([]models.Follow, error) {
	return s.follows.GetPhlock(userID)
}

// GetFollowing returns who the user follows, through the cache.
func (s *Phlock) GetFollowing(userID uint) ([]models.User, error) {
	if users, ok := s.cache.get("following", userID); ok {
		return users, nil
	}
	users, err := s.follows.GetFollowing(userID)
	if err != nil {
		return nil, err
	}
	s.cache.set("following", userID, users)
	return users, nil
}

// GetFollowers returns the user's followers, through the cache.
func (s *Phlock) GetFollowers(userID uint) ([]models.User, error) {
	if users, ok := s.cache.get("followers", userID); ok {
		return users, nil
	}
	users, err := s.follows.GetFollowers(userID)
	if err != nil {
		return nil, err
	}
	s.cache.set("followers", userID, users)
	return users, nil
}

// PendingFollowRequests lists requests awaiting the user's decision.
func (s *Phlock) PendingFollowRequests(userID uint) ([]models.FollowRequest, error) {
	return s.requests.GetPendingForTarget(userID)
}

// Recommendations ranks friend suggestions from three sources in priority
// order: address-book contact matches, friends-of-friends by mutual count,
// and a phlock-popularity fallback. Dedup is by user id, first source wins.
func (s *Phlock) Recommendations(ctx context.Context, userID uint, contactEmails []string, limit int) ([]models.User, error) {
	followingIDs, err := s.follows.GetFollowingIDs(userID)
	if err != nil {
		return nil, err
	}
	connected := map[uint]bool{userID: true}
	for _, id := range followingIDs {
		connected[id] = true
	}

	var out []models.User
	seen := make(map[uint]bool)
	add := func(users []models.User) {
		for _, u := range users {
			if len(out) >= limit {
				return
			}
			if seen[u.ID] || connected[u.ID] {
				continue
			}
			seen[u.ID] = true
			out = append(out, u)
		}
	}

	// 1. Contact matches.
	if len(contactEmails) > 0 {
		contacts, err := s.users.GetUsersByEmails(contactEmails)
		if err != nil {
			return nil, err
		}
		add(contacts)
	}
	if len(out) >= limit {
		return out, nil
	}

	// 2. Friends-of-friends, tallied in parallel across up to ten
	// immediate connections. Completion order does not matter, the
	// results land in a count map.
	fof := s.tallyFriendsOfFriends(followingIDs, connected)
	if len(fof) > 0 {
		fofUsers, err := s.users.GetUsersByIDs(fof)
		if err != nil {
			return nil, err
		}
		ordered := orderByIDList(fofUsers, fof)
		add(ordered)
	}
	if len(out) >= limit {
		return out, nil
	}

	// 3. Popularity fallback.
	exclude := make([]uint, 0, len(connected))
	for id := range connected {
		exclude = append(exclude, id)
	}
	popularIDs, err := s.follows.GetMostPhlockedUserIDs(exclude, limit)
	if err != nil {
		return nil, err
	}
	popular, err := s.users.GetUsersByIDs(popularIDs)
	if err != nil {
		return nil, err
	}
	add(orderByIDList(popular, popularIDs))
	return out, nil
}

// tallyFriendsOfFriends fetches each immediate connection's following list in
// parallel and returns candidate ids sorted by mutual-connection frequency.
func (s *Phlock) tallyFriendsOfFriends(followingIDs []uint, connected map[uint]bool) []uint {
	prefix := followingIDs
	if len(prefix) > fofFanout {
		prefix = prefix[:fofFanout]
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		tally = make(map[uint]int)
	)
	for _, friendID := range prefix {
		wg.Add(1)
		go func(friendID uint) {
			defer wg.Done()
			ids, err := s.follows.GetFollowingIDs(friendID)
			if err != nil {
				s.log.WithError(err).WithField("friend_id", friendID).Debug("friends-of-friends lookup failed")
				return
			}
			mu.Lock()
			for _, id := range ids {
				if !connected[id] {
					tally[id]++
				}
			}
			mu.Unlock()
		}(friendID)
	}
	wg.Wait()

	candidates := make([]uint, 0, len(tally))
	for id := range tally {
		candidates = append(candidates, id)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if tally[candidates[i]] != tally[candidates[j]] {
			return tally[candidates[i]] > tally[candidates[j]]
		}
		return candidates[i] < candidates[j]
	})
	return candidates
}

// orderByIDList re-sorts a fetched user batch into the given id order.
func orderByIDList(users []models.User, ids []uint) []models.User {
	byID := make(map[uint]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	ordered := make([]models.User, 0, len(users))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			ordered = append(ordered, u)
		}
	}
	return ordered
}

// nextMidnight returns the first instant of the next local calendar day.
func nextMidnight(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}
