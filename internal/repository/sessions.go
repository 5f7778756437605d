package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"kairos/server/internal/model"
)

// CreateSession allocates a fresh opaque session id and persists the record
// as valid. The id space is UUIDv4; collisions are not a practical concern and
// the unique index would reject one anyway.
func (s *Store) CreateSession(ctx context.Context, userPki, ip, userAgent string, ttl time.Duration) (model.Session, error) {
	now := time.Now().UTC()
	session := model.Session{
		SessionID: uuid.NewString(),
		UserPKI:   userPki,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Valid:     true,
	}
	if _, err := s.sessions.InsertOne(ctx, session); err != nil {
		return model.Session{}, err
	}
	return session, nil
}

// FindActiveSession returns the record only when the id matches, the owner
// matches, the valid flag is set and the expiry is in the future. Every miss
// is ErrNotFound; callers cannot tell why a session was rejected.
func (s *Store) FindActiveSession(ctx context.Context, sessionID, userPki string) (model.Session, error) {
	var session model.Session
	err := s.sessions.FindOne(ctx, bson.M{
		"sessionId": sessionID,
		"userPki":   userPki,
		"valid":     true,
		"expiresAt": bson.M{"$gt": time.Now().UTC()},
	}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Session{}, ErrNotFound
	}
	return session, err
}

// InvalidateSession flips one session to invalid. Unknown or already-invalid
// ids are not errors; logout must stay idempotent.
func (s *Store) InvalidateSession(ctx context.Context, sessionID string) error {
	_, err := s.sessions.UpdateOne(ctx,
		bson.M{"sessionId": sessionID},
		bson.M{"$set": bson.M{"valid": false}},
	)
	return err
}

func (s *Store) InvalidateAllSessionsForUser(ctx context.Context, userPki string) error {
	_, err := s.sessions.UpdateMany(ctx,
		bson.M{"userPki": userPki, "valid": true},
		bson.M{"$set": bson.M{"valid": false}},
	)
	return err
}

func (s *Store) CountActiveSessions(ctx context.Context, userPki string) (int64, error) {
	return s.sessions.CountDocuments(ctx, bson.M{
		"userPki":   userPki,
		"valid":     true,
		"expiresAt": bson.M{"$gt": time.Now().UTC()},
	})
}

// DeleteExpiredSessionsBefore purges records whose expiry passed before the
// cutoff. Correctness never depends on the purge; it only keeps the
// collection from growing without bound.
func (s *Store) DeleteExpiredSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.sessions.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
