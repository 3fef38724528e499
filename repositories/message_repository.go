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
	"go.mongodb.org/mongo-driver/mongo/options"
)

type messageRepository struct {
	collection *mongo.Collection
}

func NewMessageRepository(database *mongo.Database) MessageRepository {
	return &messageRepository{
		collection: database.Collection("session_messages"),
	}
}

func (mr *messageRepository) Create(ctx context.Context, message *models.SessionMessage) error {
	message.ID = primitive.NewObjectID()
	message.CreatedAt = time.Now()

	_, err := mr.collection.InsertOne(ctx, message)
	if err != nil {
		logrus.Errorf("Failed to create session message: %v", err)
		return utils.NewDatabaseError("create session message", err)
	}

	return nil
}

func (mr *messageRepository) GetByID(ctx context.Context, id string) (*models.SessionMessage, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, utils.NewNotFoundError("Message")
	}

	var message models.SessionMessage
	err = mr.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&message)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.NewNotFoundError("Message")
		}
		logrus.Errorf("Failed to get session message: %v", err)
		return nil, utils.NewDatabaseError("get session message", err)
	}

	return &message, nil
}

func (mr *messageRepository) GetBySession(ctx context.Context, sessionID string, limit int64, before *time.Time) ([]models.SessionMessage, error) {
	sessionObjectID, err := primitive.ObjectIDFromHex(sessionID)
	if err != nil {
		return nil, utils.NewNotFoundError("Emergency")
	}

	filter := bson.M{"sessionId": sessionObjectID}
	if before != nil {
		filter["createdAt"] = bson.M{"$lt": *before}
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(limit)
	cursor, err := mr.collection.Find(ctx, filter, opts)
	if err != nil {
		logrus.Errorf("Failed to get session messages: %v", err)
		return nil, utils.NewDatabaseError("get session messages", err)
	}
	defer cursor.Close(ctx)

	var messages []models.SessionMessage
	if err = cursor.All(ctx, &messages); err != nil {
		logrus.Errorf("Failed to decode session messages: %v", err)
		return nil, utils.NewDatabaseError("decode session messages", err)
	}

	return messages, nil
}

func (mr *messageRepository) Delete(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return utils.NewNotFoundError("Message")
	}

	result, err := mr.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		logrus.Errorf("Failed to delete session message: %v", err)
		return utils.NewDatabaseError("delete session message", err)
	}
	if result.DeletedCount == 0 {
		return utils.NewNotFoundError("Message")
	}

	return nil
}
