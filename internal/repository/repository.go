package repository

import (
	"errors"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// ErrNotFound is returned for every lookup miss. Session lookups deliberately
// do not distinguish missing, invalidated and expired records.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert hits a unique index.
var ErrDuplicate = errors.New("duplicate key")

type Store struct {
	users    *mongo.Collection
	sessions *mongo.Collection
	teams    *mongo.Collection
}

func NewStore(database *mongo.Database) *Store {
	return &Store{
		users:    database.Collection("users"),
		sessions: database.Collection("sessions"),
		teams:    database.Collection("teams"),
	}
}
