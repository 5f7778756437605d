package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"kairos/server/internal/model"
)

func (s *Store) GetTeamByID(ctx context.Context, teamID string) (model.Team, error) {
	var team model.Team
	err := s.teams.FindOne(ctx, bson.M{"id": teamID}).Decode(&team)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Team{}, ErrNotFound
	}
	return team, err
}

func (s *Store) ListTeams(ctx context.Context) ([]model.Team, error) {
	cursor, err := s.teams.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	var teams []model.Team
	if err := cursor.All(ctx, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

func (s *Store) CreateTeam(ctx context.Context, team model.Team) error {
	_, err := s.teams.InsertOne(ctx, team)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

// TeamUpdate mirrors UserUpdate: nil means keep the stored value.
type TeamUpdate struct {
	Name     *string
	Active   *bool
	Users    *[]string
	Managers *[]string
}

func (s *Store) UpdateTeam(ctx context.Context, teamID, modifiedBy string, update TeamUpdate) (model.Team, error) {
	set := bson.M{
		"updatedAt":      time.Now().UTC(),
		"lastModifiedBy": modifiedBy,
	}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Active != nil {
		set["active"] = *update.Active
	}
	if update.Users != nil {
		set["users"] = *update.Users
	}
	if update.Managers != nil {
		set["managers"] = *update.Managers
	}

	result, err := s.teams.UpdateOne(ctx, bson.M{"id": teamID}, bson.M{"$set": set})
	if err != nil {
		return model.Team{}, err
	}
	if result.MatchedCount == 0 {
		return model.Team{}, ErrNotFound
	}
	return s.GetTeamByID(ctx, teamID)
}
