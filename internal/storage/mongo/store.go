// Package mongo provides the MongoDB document store backend.
package mongo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/fidde/log_dashboard/internal/storage"
	"github.com/fidde/log_dashboard/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultConnectTimeout = 10 * time.Second

// Config holds MongoDB connection parameters.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// DefaultConfig returns a config pointing at a local server.
func DefaultConfig() Config {
	return Config{
		URI:            "mongodb://localhost:27017",
		Database:       "log",
		ConnectTimeout: defaultConnectTimeout,
	}
}

// Store implements storage.Backend on a MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// NewStore connects to MongoDB and verifies the connection.
func NewStore(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetConnectTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	logger.Info("connected to MongoDB", "database", cfg.Database)

	return &Store{
		client: client,
		db:     client.Database(cfg.Database),
		logger: logger,
	}, nil
}

// Collection returns a handle for the named collection.
func (s *Store) Collection(name string) storage.Collection {
	return &collection{coll: s.db.Collection(name)}
}

// CompareIDs orders ObjectID hex strings by their 12-byte value.
func (s *Store) CompareIDs(a, b string) int {
	return compareObjectIDs(a, b)
}

// Ping checks connectivity to the primary.
func (s *Store) Ping(ctx context.Context) error {
	return models.NewStoreError("mongo ping", s.client.Ping(ctx, readpref.Primary()))
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Insert adds rec to the named collection and returns the new ObjectID as
// hex. Any identifier on rec is ignored.
func (s *Store) Insert(ctx context.Context, collectionName string, rec *models.Record) (string, error) {
	if rec == nil {
		return "", errors.New("record cannot be nil")
	}
	if collectionName == "" {
		return "", errors.New("collection name cannot be empty")
	}

	oid := primitive.NewObjectID()
	doc := append(bson.D{{Key: models.IDField, Value: oid}}, toDocument(rec.Fields())...)
	if _, err := s.db.Collection(collectionName).InsertOne(ctx, doc); err != nil {
		return "", models.NewStoreError("mongo insert", err)
	}
	return oid.Hex(), nil
}

// collection is a handle to one MongoDB collection.
type collection struct {
	coll *mongo.Collection
}

func (c *collection) Name() string { return c.coll.Name() }

func (c *collection) Sample(ctx context.Context) (*models.Record, error) {
	var doc bson.D
	err := c.coll.FindOne(ctx, bson.D{}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("sample %s: %w", c.coll.Name(), models.ErrNotFound)
	}
	if err != nil {
		return nil, models.NewStoreError("mongo sample", err)
	}
	return recordFromDocument(doc), nil
}

func (c *collection) Count(ctx context.Context, filter storage.Filter) (int64, error) {
	q, err := buildFilter(filter)
	if err != nil {
		return 0, err
	}
	n, err := c.coll.CountDocuments(ctx, q)
	if err != nil {
		return 0, models.NewStoreError("mongo count", err)
	}
	return n, nil
}

func (c *collection) Find(ctx context.Context, filter storage.Filter, opts storage.FindOptions) ([]*models.Record, error) {
	q, err := buildFilter(filter)
	if err != nil {
		return nil, err
	}

	cursor, err := c.coll.Find(ctx, q, findOptions(opts))
	if err != nil {
		return nil, models.NewStoreError("mongo find", err)
	}
	defer cursor.Close(ctx)

	records := []*models.Record{}
	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, models.NewStoreError("mongo decode", err)
		}
		records = append(records, recordFromDocument(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, models.NewStoreError("mongo find", err)
	}
	return records, nil
}

func (c *collection) FindByID(ctx context.Context, id string) (*models.Record, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("record %q: %w", id, models.ErrNotFound)
	}

	var doc bson.D
	err = c.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("record %q: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, models.NewStoreError("mongo find by id", err)
	}
	return recordFromDocument(doc), nil
}

// buildFilter translates a storage filter into a MongoDB query document.
// Search terms are matched literally, case-insensitively; $regex only
// matches string values.
func buildFilter(filter storage.Filter) (bson.D, error) {
	q := bson.D{}

	if filter.AfterID != "" {
		oid, err := primitive.ObjectIDFromHex(filter.AfterID)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor %q: %w", filter.AfterID, models.ErrInvalidArgument)
		}
		q = append(q, bson.E{Key: "_id", Value: bson.D{{Key: "$gt", Value: oid}}})
	}

	if len(filter.AnyContains) > 0 {
		or := make(bson.A, 0, len(filter.AnyContains))
		for _, cl := range filter.AnyContains {
			or = append(or, bson.D{{Key: cl.Field, Value: bson.D{
				{Key: "$regex", Value: regexp.QuoteMeta(cl.Term)},
				{Key: "$options", Value: "i"},
			}}})
		}
		q = append(q, bson.E{Key: "$or", Value: or})
	}

	return q, nil
}

func findOptions(opts storage.FindOptions) *options.FindOptions {
	fo := options.Find()
	switch opts.Sort {
	case storage.ByIDAsc:
		fo.SetSort(bson.D{{Key: "_id", Value: 1}})
	default:
		fo.SetSort(bson.D{{Key: storage.TimestampField, Value: -1}, {Key: "_id", Value: -1}})
	}
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}
	return fo
}

func compareObjectIDs(a, b string) int {
	aid, aerr := primitive.ObjectIDFromHex(a)
	bid, berr := primitive.ObjectIDFromHex(b)
	if aerr != nil || berr != nil {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	}
	return bytes.Compare(aid[:], bid[:])
}
