package store

import (
	"context"
	"time"

	"conversion-relay/internal/event"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoStore is a failed-event store backed by MongoDB, for deployments
// where the emitter runs in more than one process and a local file would
// not survive instance churn.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

func NewMongoStore(uri, database, collection string, logger *zap.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri).
		SetMaxPoolSize(100).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetSocketTimeout(30 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	logger.Info("Connected to MongoDB failed-event store",
		zap.String("database", database),
		zap.String("collection", collection),
	)

	coll := client.Database(database).Collection(collection)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "event.event_id", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, err
	}

	return &MongoStore{
		client:     client,
		collection: coll,
		logger:     logger,
	}, nil
}

func (s *MongoStore) Append(ctx context.Context, fe event.FailedEvent) error {
	_, err := s.collection.InsertOne(ctx, fe)
	if err != nil {
		s.logger.Error("Failed to insert failed event",
			zap.Error(err),
			zap.String("event_id", fe.Event.ID))
	}
	return err
}

func (s *MongoStore) Load(ctx context.Context) ([]event.FailedEvent, error) {
	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []event.FailedEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Replace keeps only the given events. Drains never add events here, so
// deleting everything outside the kept id set is equivalent to a full
// overwrite without rewriting documents that survived.
func (s *MongoStore) Replace(ctx context.Context, events []event.FailedEvent) error {
	keep := make([]string, 0, len(events))
	for _, fe := range events {
		keep = append(keep, fe.Event.ID)
	}

	filter := bson.M{"event.event_id": bson.M{"$nin": keep}}
	if len(keep) == 0 {
		filter = bson.M{}
	}

	_, err := s.collection.DeleteMany(ctx, filter)
	return err
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
