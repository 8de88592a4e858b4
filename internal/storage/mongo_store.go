package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/annel0/voxel-light/internal/logging"
	"github.com/annel0/voxel-light/internal/vec"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for the MongoDB snapshot store.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. voxel_light
	Collection string // e.g. light_snapshots
}

// MongoLightStore implements LightStore on MongoDB: one document per chunk,
// keyed by (x, z), holding the encoded snapshot record.
type MongoLightStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
	closed     atomic.Bool
}

type snapshotDoc struct {
	X         int       `bson:"x"`
	Z         int       `bson:"z"`
	Record    []byte    `bson:"record"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoLightStore establishes connection and returns the store.
func NewMongoLightStore(ctx context.Context, cfg MongoConfig) (*MongoLightStore, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "voxel_light"
	}
	if cfg.Collection == "" {
		cfg.Collection = "light_snapshots"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	// ping
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	store := &MongoLightStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		ctxTimeout: 5 * time.Second,
	}
	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logging.GetStorageLogger().Info("🍃 MongoDB подключена: %s/%s", cfg.Database, cfg.Collection)
	return store, nil
}

func (m *MongoLightStore) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "x", Value: 1}, {Key: "z", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("chunk_unique"),
	})
	return err
}

func chunkFilter(coords vec.Vec2) bson.M {
	return bson.M{"x": coords.X, "z": coords.Y}
}

// mongoErr maps driver errors to store errors.
func mongoErr(err error) error {
	if errors.Is(err, mongo.ErrClientDisconnected) {
		return ErrStoreClosed
	}
	return err
}

// Save upserts the snapshot document.
func (m *MongoLightStore) Save(ctx context.Context, snap *LightSnapshot) error {
	if m.closed.Load() {
		return ErrStoreClosed
	}
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	doc := snapshotDoc{
		X:         snap.Coords.X,
		Z:         snap.Coords.Y,
		Record:    EncodeSnapshot(snap),
		UpdatedAt: time.Now().UTC(),
	}
	_, err := m.collection.ReplaceOne(ctx, chunkFilter(snap.Coords), doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo save %v: %w", snap.Coords, mongoErr(err))
	}
	return nil
}

// Load returns the snapshot or ErrSnapshotNotFound.
func (m *MongoLightStore) Load(ctx context.Context, coords vec.Vec2) (*LightSnapshot, error) {
	if m.closed.Load() {
		return nil, ErrStoreClosed
	}
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	var doc snapshotDoc
	err := m.collection.FindOne(ctx, chunkFilter(coords)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo load %v: %w", coords, mongoErr(err))
	}
	return DecodeSnapshot(doc.Record)
}

// Delete removes the snapshot; a missing document is not an error.
func (m *MongoLightStore) Delete(ctx context.Context, coords vec.Vec2) error {
	if m.closed.Load() {
		return ErrStoreClosed
	}
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	if _, err := m.collection.DeleteOne(ctx, chunkFilter(coords)); err != nil {
		return fmt.Errorf("mongo delete %v: %w", coords, mongoErr(err))
	}
	return nil
}

// Coords lists stored chunk coordinates.
func (m *MongoLightStore) Coords(ctx context.Context) ([]vec.Vec2, error) {
	if m.closed.Load() {
		return nil, ErrStoreClosed
	}
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	opts := options.Find().
		SetProjection(bson.M{"x": 1, "z": 1}).
		SetSort(bson.D{{Key: "x", Value: 1}, {Key: "z", Value: 1}})
	cur, err := m.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo list: %w", mongoErr(err))
	}
	defer cur.Close(ctx)

	var out []vec.Vec2
	for cur.Next(ctx) {
		var doc snapshotDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, vec.Vec2{X: doc.X, Y: doc.Z})
	}
	return out, cur.Err()
}

// Close disconnects the client.
func (m *MongoLightStore) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := m.client.Disconnect(context.Background())
	if errors.Is(err, mongo.ErrClientDisconnected) {
		return nil
	}
	return err
}
