package repositories

import (
	"context"
	"time"

	"helpnet/models"
	"helpnet/utils"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type userRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(database *mongo.Database) UserRepository {
	return &userRepository{
		collection: database.Collection("users"),
	}
}

func (ur *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, utils.NewNotFoundError("User")
	}

	var user models.User
	err = ur.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.NewNotFoundError("User")
		}
		logrus.Errorf("Failed to get user by ID: %v", err)
		return nil, utils.NewDatabaseError("get user", err)
	}

	return &user, nil
}

// AdjustTrustScore adds delta and clamps into [0, TrustScoreMax] in a single
// aggregation-pipeline update, so concurrent adjustments cannot escape the
// bounds.
func (ur *userRepository) AdjustTrustScore(ctx context.Context, id string, delta int) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return utils.NewNotFoundError("User")
	}

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"trustScore": bson.M{
				"$max": bson.A{0, bson.M{
					"$min": bson.A{models.TrustScoreMax, bson.M{
						"$add": bson.A{bson.M{"$ifNull": bson.A{"$trustScore", models.TrustScoreInitial}}, delta},
					}},
				}},
			},
			"updatedAt": time.Now(),
		}}},
	}

	result, err := ur.collection.UpdateOne(ctx, bson.M{"_id": objectID}, pipeline)
	if err != nil {
		logrus.Errorf("Failed to adjust trust score: %v", err)
		return utils.NewDatabaseError("adjust trust score", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewNotFoundError("User")
	}

	return nil
}

func (ur *userRepository) IncrementEmergencyCount(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return utils.NewNotFoundError("User")
	}

	update := bson.M{
		"$inc": bson.M{"emergencyCount": 1},
		"$set": bson.M{"updatedAt": time.Now()},
	}

	result, err := ur.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		logrus.Errorf("Failed to increment emergency count: %v", err)
		return utils.NewDatabaseError("increment emergency count", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewNotFoundError("User")
	}

	return nil
}
