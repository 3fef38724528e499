package repositories

import (
	"context"
	"fmt"
	"time"

	"helpnet/models"
	"helpnet/utils"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type emergencyRepository struct {
	collection *mongo.Collection
}

func NewEmergencyRepository(database *mongo.Database) EmergencyRepository {
	return &emergencyRepository{
		collection: database.Collection("emergencies"),
	}
}

func (er *emergencyRepository) Create(ctx context.Context, emergency *models.Emergency) error {
	emergency.ID = primitive.NewObjectID()
	emergency.ActivatedAt = time.Now()
	emergency.LastUpdatedAt = time.Now()

	if emergency.Status == "" {
		emergency.Status = models.EmergencyStatusActive
	}
	if emergency.Responders == nil {
		emergency.Responders = make(map[string]models.Responder)
	}
	emergency.Geo = models.NewGeoPoint(emergency.Location.Latitude, emergency.Location.Longitude)

	_, err := er.collection.InsertOne(ctx, emergency)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return utils.NewConflictError("Emergency with this idempotency key already exists")
		}
		logrus.Errorf("Failed to create emergency: %v", err)
		return utils.NewDatabaseError("create emergency", err)
	}

	return nil
}

func (er *emergencyRepository) GetByID(ctx context.Context, id string) (*models.Emergency, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, utils.NewNotFoundError("Emergency")
	}

	var emergency models.Emergency
	err = er.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&emergency)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.NewNotFoundError("Emergency")
		}
		logrus.Errorf("Failed to get emergency by ID: %v", err)
		return nil, utils.NewDatabaseError("get emergency", err)
	}

	return &emergency, nil
}

func (er *emergencyRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.Emergency, error) {
	var emergency models.Emergency
	err := er.collection.FindOne(ctx, bson.M{"idempotencyKey": key}).Decode(&emergency)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.NewNotFoundError("Emergency")
		}
		logrus.Errorf("Failed to get emergency by idempotency key: %v", err)
		return nil, utils.NewDatabaseError("get emergency by idempotency key", err)
	}

	return &emergency, nil
}

func (er *emergencyRepository) GetOpenByCreator(ctx context.Context, creatorID string) (*models.Emergency, error) {
	creatorObjectID, err := primitive.ObjectIDFromHex(creatorID)
	if err != nil {
		return nil, utils.NewNotFoundError("Emergency")
	}

	filter := bson.M{
		"creatorId": creatorObjectID,
		"status":    bson.M{"$in": openStatuses()},
	}

	var emergency models.Emergency
	err = er.collection.FindOne(ctx, filter).Decode(&emergency)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.NewNotFoundError("Emergency")
		}
		logrus.Errorf("Failed to get open emergency for creator: %v", err)
		return nil, utils.NewDatabaseError("get open emergency", err)
	}

	return &emergency, nil
}

func (er *emergencyRepository) Update(ctx context.Context, id string, fields bson.M) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return utils.NewNotFoundError("Emergency")
	}

	fields["lastUpdatedAt"] = time.Now()

	result, err := er.collection.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{"$set": fields})
	if err != nil {
		logrus.Errorf("Failed to update emergency: %v", err)
		return utils.NewDatabaseError("update emergency", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewNotFoundError("Emergency")
	}

	return nil
}

func (er *emergencyRepository) SetResponder(ctx context.Context, id, helperID string, responder models.Responder) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return utils.NewNotFoundError("Emergency")
	}

	update := bson.M{"$set": bson.M{
		"responders." + helperID: responder,
		"lastUpdatedAt":          time.Now(),
	}}

	result, err := er.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		logrus.Errorf("Failed to set responder: %v", err)
		return utils.NewDatabaseError("set responder", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewNotFoundError("Emergency")
	}

	return nil
}

func (er *emergencyRepository) UpdateResponder(ctx context.Context, id, helperID string, fields bson.M) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return utils.NewNotFoundError("Emergency")
	}

	set := bson.M{"lastUpdatedAt": time.Now()}
	for key, value := range fields {
		set[fmt.Sprintf("responders.%s.%s", helperID, key)] = value
	}

	filter := bson.M{
		"_id":                    objectID,
		"responders." + helperID: bson.M{"$exists": true},
	}

	result, err := er.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		logrus.Errorf("Failed to update responder: %v", err)
		return utils.NewDatabaseError("update responder", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewNotFoundError("Responder")
	}

	return nil
}

func (er *emergencyRepository) TransitionStatus(ctx context.Context, id string, from []string, to string, extra bson.M) (bool, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, utils.NewNotFoundError("Emergency")
	}

	set := bson.M{
		"status":        to,
		"lastUpdatedAt": time.Now(),
	}
	for key, value := range extra {
		set[key] = value
	}

	filter := bson.M{
		"_id":    objectID,
		"status": bson.M{"$in": from},
	}

	result, err := er.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		logrus.Errorf("Failed to transition emergency status: %v", err)
		return false, utils.NewDatabaseError("transition status", err)
	}

	return result.MatchedCount > 0, nil
}

func (er *emergencyRepository) GetNearbyOpen(ctx context.Context, lat, lon, radiusMeters float64, limit int64) ([]models.Emergency, error) {
	filter := bson.M{
		"geo": bson.M{
			"$near": bson.M{
				"$geometry": bson.M{
					"type":        "Point",
					"coordinates": []float64{lon, lat},
				},
				"$maxDistance": radiusMeters,
			},
		},
		"status": bson.M{"$in": openStatuses()},
	}

	cursor, err := er.collection.Find(ctx, filter, options.Find().SetLimit(limit))
	if err != nil {
		logrus.Errorf("Failed to find nearby emergencies: %v", err)
		return nil, utils.NewDatabaseError("find nearby emergencies", err)
	}
	defer cursor.Close(ctx)

	var emergencies []models.Emergency
	if err = cursor.All(ctx, &emergencies); err != nil {
		logrus.Errorf("Failed to decode nearby emergencies: %v", err)
		return nil, utils.NewDatabaseError("decode nearby emergencies", err)
	}

	return emergencies, nil
}

func (er *emergencyRepository) GetOpenExcluding(ctx context.Context, helperID string) ([]models.Emergency, error) {
	helperObjectID, err := primitive.ObjectIDFromHex(helperID)
	if err != nil {
		return nil, utils.NewNotFoundError("User")
	}

	filter := bson.M{
		"status":                 bson.M{"$in": openStatuses()},
		"creatorId":              bson.M{"$ne": helperObjectID},
		"responders." + helperID: bson.M{"$exists": false},
	}

	opts := options.Find().SetSort(bson.D{{Key: "activatedAt", Value: -1}})
	cursor, err := er.collection.Find(ctx, filter, opts)
	if err != nil {
		logrus.Errorf("Failed to find pending emergencies: %v", err)
		return nil, utils.NewDatabaseError("find pending emergencies", err)
	}
	defer cursor.Close(ctx)

	var emergencies []models.Emergency
	if err = cursor.All(ctx, &emergencies); err != nil {
		logrus.Errorf("Failed to decode pending emergencies: %v", err)
		return nil, utils.NewDatabaseError("decode pending emergencies", err)
	}

	return emergencies, nil
}

func (er *emergencyRepository) GetByCreator(ctx context.Context, creatorID string, limit int64) ([]models.Emergency, error) {
	creatorObjectID, err := primitive.ObjectIDFromHex(creatorID)
	if err != nil {
		return nil, utils.NewNotFoundError("User")
	}

	opts := options.Find().SetSort(bson.D{{Key: "activatedAt", Value: -1}}).SetLimit(limit)
	cursor, err := er.collection.Find(ctx, bson.M{"creatorId": creatorObjectID}, opts)
	if err != nil {
		logrus.Errorf("Failed to get creator emergencies: %v", err)
		return nil, utils.NewDatabaseError("get creator emergencies", err)
	}
	defer cursor.Close(ctx)

	var emergencies []models.Emergency
	if err = cursor.All(ctx, &emergencies); err != nil {
		logrus.Errorf("Failed to decode creator emergencies: %v", err)
		return nil, utils.NewDatabaseError("decode creator emergencies", err)
	}

	return emergencies, nil
}

func (er *emergencyRepository) GetOpenOlderThan(ctx context.Context, cutoff time.Time) ([]models.Emergency, error) {
	filter := bson.M{
		"status":      bson.M{"$in": openStatuses()},
		"activatedAt": bson.M{"$lt": cutoff},
	}

	opts := options.Find().SetSort(bson.D{{Key: "activatedAt", Value: 1}})
	cursor, err := er.collection.Find(ctx, filter, opts)
	if err != nil {
		logrus.Errorf("Failed to find stale emergencies: %v", err)
		return nil, utils.NewDatabaseError("find stale emergencies", err)
	}
	defer cursor.Close(ctx)

	var emergencies []models.Emergency
	if err = cursor.All(ctx, &emergencies); err != nil {
		logrus.Errorf("Failed to decode stale emergencies: %v", err)
		return nil, utils.NewDatabaseError("decode stale emergencies", err)
	}

	return emergencies, nil
}

func openStatuses() []string {
	return []string{models.EmergencyStatusActive, models.EmergencyStatusResponding}
}
