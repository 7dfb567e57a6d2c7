package storage

import (
	"context"
	"time"

	"webhook-dispatcher/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type MongoStore struct {
	client     *mongo.Client
	webhooks   *mongo.Collection
	deliveries *mongo.Collection
	logger     *zap.Logger
}

type webHookDocument struct {
	User           string    `bson:"user"`
	Key            string    `bson:"key"`
	models.WebHook `bson:",inline"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func NewMongoStore(ctx context.Context, uri, database, collection, deliveries string, logger *zap.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri).
		SetMaxPoolSize(100).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetSocketTimeout(30 * time.Second).
		SetServerSelectionTimeout(10 * time.Second).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	logger.Info("Successfully connected to MongoDB",
		zap.String("database", database),
		zap.String("collection", collection),
		zap.String("deliveries", deliveries),
	)

	db := client.Database(database)
	hooks := db.Collection(collection)
	_, err = hooks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "filters", Value: 1}},
		},
	})
	if err != nil {
		return nil, err
	}

	log := db.Collection(deliveries)
	_, err = log.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "work_item_id", Value: 1}, {Key: "attempt", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "user", Value: 1}, {Key: "webhook_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
		},
	})
	if err != nil {
		return nil, err
	}

	return &MongoStore{
		client:     client,
		webhooks:   hooks,
		deliveries: log,
		logger:     logger,
	}, nil
}

func (m *MongoStore) GetAllWebHooks(ctx context.Context, user string) ([]*models.WebHook, error) {
	docs, err := m.find(ctx, bson.M{"user": normalizeKey(user)})
	if err != nil {
		return nil, err
	}
	out := make([]*models.WebHook, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].webHook())
	}
	return out, nil
}

func (m *MongoStore) GetAllWebHooksAcrossUsers(ctx context.Context) (map[string][]*models.WebHook, error) {
	docs, err := m.find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	out := make(map[string][]*models.WebHook)
	for i := range docs {
		out[docs[i].User] = append(out[docs[i].User], docs[i].webHook())
	}
	return out, nil
}

func (m *MongoStore) LookupWebHook(ctx context.Context, user, id string) (*models.WebHook, error) {
	var doc webHookDocument
	err := m.webhooks.FindOne(ctx, keyFilter(user, id)).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.webHook(), nil
}

func (m *MongoStore) InsertWebHook(ctx context.Context, user string, webHook *models.WebHook) models.StoreResult {
	doc := newDocument(user, webHook, 1)
	if _, err := m.webhooks.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.StoreConflict
		}
		m.logger.Error("Failed to insert webhook",
			zap.Error(err),
			zap.String("user", user),
			zap.String("webhook_id", webHook.ID))
		return models.StoreOperationError
	}
	webHook.Version = 1
	return models.StoreSuccess
}

func (m *MongoStore) UpdateWebHook(ctx context.Context, user string, webHook *models.WebHook) models.StoreResult {
	filter := keyFilter(user, webHook.ID)
	filter["version"] = webHook.Version

	doc := newDocument(user, webHook, webHook.Version+1)
	res, err := m.webhooks.ReplaceOne(ctx, filter, doc)
	if err != nil {
		m.logger.Error("Failed to update webhook",
			zap.Error(err),
			zap.String("user", user),
			zap.String("webhook_id", webHook.ID))
		return models.StoreOperationError
	}
	if res.MatchedCount == 0 {
		n, err := m.webhooks.CountDocuments(ctx, keyFilter(user, webHook.ID))
		if err != nil {
			return models.StoreOperationError
		}
		if n == 0 {
			return models.StoreNotFound
		}
		return models.StoreConflict
	}
	webHook.Version++
	return models.StoreSuccess
}

func (m *MongoStore) DeleteWebHook(ctx context.Context, user, id string) models.StoreResult {
	res, err := m.webhooks.DeleteOne(ctx, keyFilter(user, id))
	if err != nil {
		m.logger.Error("Failed to delete webhook",
			zap.Error(err),
			zap.String("user", user),
			zap.String("webhook_id", id))
		return models.StoreOperationError
	}
	if res.DeletedCount == 0 {
		return models.StoreNotFound
	}
	return models.StoreSuccess
}

func (m *MongoStore) DeleteAllWebHooks(ctx context.Context, user string) error {
	_, err := m.webhooks.DeleteMany(ctx, bson.M{"user": normalizeKey(user)})
	return err
}

func (m *MongoStore) RecordDelivery(ctx context.Context, rec models.DeliveryRecord) error {
	_, err := m.deliveries.InsertOne(ctx, rec)
	if err != nil {
		m.logger.Error("Failed to record delivery",
			zap.Error(err),
			zap.String("work_item_id", rec.WorkItemID),
			zap.String("webhook_id", rec.WebHookID))
	}
	return err
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoStore) find(ctx context.Context, filter bson.M) ([]webHookDocument, error) {
	cursor, err := m.webhooks.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []webHookDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func keyFilter(user, id string) bson.M {
	return bson.M{
		"user": normalizeKey(user),
		"key":  normalizeKey(id),
	}
}

func newDocument(user string, webHook *models.WebHook, version int64) webHookDocument {
	doc := webHookDocument{
		User:      normalizeKey(user),
		Key:       normalizeKey(webHook.ID),
		WebHook:   *webHook.Clone(),
		UpdatedAt: time.Now().UTC(),
	}
	doc.Version = version
	return doc
}

func (d *webHookDocument) webHook() *models.WebHook {
	return d.WebHook.Clone()
}
