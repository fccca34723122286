package configstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sirosfoundation/go-listener-manager/internal/domain"
	"github.com/sirosfoundation/go-listener-manager/pkg/config"
)

// serverDocument is the MongoDB representation of a descriptor
type serverDocument struct {
	Port      int    `bson:"_id"`
	Position  int    `bson:"position"`
	Name      string `bson:"name"`
	Mode      string `bson:"mode"`
	StaticDir string `bson:"static_dir,omitempty"`
}

// MongoStore keeps descriptors in a MongoDB collection, one document per port
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	cfg        *config.MongoDBConfig
}

// NewMongoStore connects to MongoDB and verifies the connection
func NewMongoStore(ctx context.Context, cfg *config.MongoDBConfig) (*MongoStore, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(time.Duration(cfg.Timeout) * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "servers"
	}

	s := &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(collection),
		cfg:        cfg,
	}

	_, err = s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "position", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create server indexes: %w", err)
	}

	return s, nil
}

// Save replaces the collection contents with servers
func (s *MongoStore) Save(ctx context.Context, servers []domain.ServerDescriptor) error {
	if _, err := s.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to clear servers: %w", err)
	}
	if len(servers) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(servers))
	for i, srv := range servers {
		docs = append(docs, serverDocument{
			Port:      srv.Port,
			Position:  i,
			Name:      srv.Name,
			Mode:      string(srv.Mode),
			StaticDir: srv.StaticDir,
		})
	}

	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert servers: %w", err)
	}
	return nil
}

// Load returns the stored servers in saved order
func (s *MongoStore) Load(ctx context.Context) ([]domain.ServerDescriptor, error) {
	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return []domain.ServerDescriptor{}, fmt.Errorf("failed to find servers: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []serverDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return []domain.ServerDescriptor{}, &MalformedError{Source: s.collection.Name(), Err: err}
	}

	out := make([]domain.ServerDescriptor, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.ServerDescriptor{
			Name:      doc.Name,
			Port:      doc.Port,
			Mode:      domain.Mode(doc.Mode),
			StaticDir: doc.StaticDir,
		})
	}
	return out, nil
}

// Ping checks if MongoDB is alive
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects from MongoDB
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
