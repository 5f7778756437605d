package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"kairos/server/internal/model"
)

func (s *Store) GetUserByPKI(ctx context.Context, pki string) (model.User, error) {
	var user model.User
	err := s.users.FindOne(ctx, bson.M{"pki": pki}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.User{}, ErrNotFound
	}
	return user, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	var user model.User
	err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.User{}, ErrNotFound
	}
	return user, err
}

func (s *Store) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.users.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

// UserUpdate carries the fields a profile update may touch. Nil pointers leave
// the stored value untouched; PasswordHash must already be hashed.
type UserUpdate struct {
	Name         *string
	Email        *string
	Role         *string
	PasswordHash *string
	Active       *bool
}

func (s *Store) UpdateUser(ctx context.Context, pki, modifiedBy string, update UserUpdate) error {
	set := bson.M{
		"updatedAt":      time.Now().UTC(),
		"lastModifiedBy": modifiedBy,
	}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Email != nil {
		set["email"] = *update.Email
	}
	if update.Role != nil {
		set["role"] = *update.Role
	}
	if update.PasswordHash != nil {
		set["password"] = *update.PasswordHash
	}
	if update.Active != nil {
		set["active"] = *update.Active
	}

	result, err := s.users.UpdateOne(ctx, bson.M{"pki": pki}, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUsersByPKI reports how many of the given pkis resolve to stored users.
// Team assignment uses it to verify every reference before writing.
func (s *Store) CountUsersByPKI(ctx context.Context, pkis []string) (int64, error) {
	if len(pkis) == 0 {
		return 0, nil
	}
	return s.users.CountDocuments(ctx, bson.M{"pki": bson.M{"$in": pkis}})
}

// GetUsersByPKI resolves the given pkis to profiles, preserving no particular
// order. Used to embed member summaries in team responses.
func (s *Store) GetUsersByPKI(ctx context.Context, pkis []string) ([]model.User, error) {
	if len(pkis) == 0 {
		return nil, nil
	}
	cursor, err := s.users.Find(ctx, bson.M{"pki": bson.M{"$in": pkis}})
	if err != nil {
		return nil, err
	}
	var users []model.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}
