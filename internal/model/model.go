package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type User struct {
	ID             bson.ObjectID `bson:"_id,omitempty"`
	PKI            string        `bson:"pki"`
	Name           string        `bson:"name"`
	Email          string        `bson:"email"`
	PasswordHash   string        `bson:"password"`
	Role           string        `bson:"role"`
	Active         bool          `bson:"active"`
	CreatedAt      time.Time     `bson:"createdAt"`
	UpdatedAt      time.Time     `bson:"updatedAt"`
	LastModifiedBy string        `bson:"lastModifiedBy"`
}

type Session struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	SessionID string        `bson:"sessionId"`
	UserPKI   string        `bson:"userPki"`
	IP        string        `bson:"ip"`
	UserAgent string        `bson:"userAgent"`
	CreatedAt time.Time     `bson:"createdAt"`
	ExpiresAt time.Time     `bson:"expiresAt"`
	Valid     bool          `bson:"valid"`
}

// Active reports whether the session can still authenticate requests at the
// given instant. The stored flag and expiry are the only inputs; nothing is
// inferred from token state.
func (s Session) Active(now time.Time) bool {
	return s.Valid && now.Before(s.ExpiresAt)
}

type Team struct {
	ID             bson.ObjectID `bson:"_id,omitempty"`
	TeamID         string        `bson:"id"`
	Name           string        `bson:"name"`
	Active         bool          `bson:"active"`
	Users          []string      `bson:"users"`
	Managers       []string      `bson:"managers"`
	CreatedAt      time.Time     `bson:"createdAt"`
	UpdatedAt      time.Time     `bson:"updatedAt"`
	LastModifiedBy string        `bson:"lastModifiedBy"`
}
