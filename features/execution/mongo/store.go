// Package mongo provides a MongoDB-backed execution store. Executions persist
// as a single document per execution ID, upserted on every transition, with an
// index on status so boot recovery can list paused executions cheaply.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/autoflowhq/autoflow/runtime/execution"
)

const (
	defaultCollection = "executions"
	defaultOpTimeout  = 5 * time.Second
	clientName        = "execution-mongo"
)

// Options configures the Mongo execution store.
type Options struct {
	// Client is the connected Mongo client. Required.
	Client *mongodriver.Client
	// Database is the database name. Required.
	Database string
	// Collection overrides the default collection name.
	Collection string
	// Timeout bounds individual store operations.
	Timeout time.Duration
}

// Store implements execution.Store backed by MongoDB.
type Store struct {
	mongo   *mongodriver.Client
	coll    *mongodriver.Collection
	timeout time.Duration
}

// New builds a Store and ensures its indexes.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	s := &Store{
		mongo:   opts.Client,
		coll:    opts.Client.Database(opts.Database).Collection(collection),
		timeout: timeout,
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Name identifies the store for health reporting.
func (s *Store) Name() string { return clientName }

// Ping verifies connectivity to the primary.
func (s *Store) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.mongo.Ping(ctx, readpref.Primary())
}

// Upsert stores the document, replacing any previous version.
func (s *Store) Upsert(ctx context.Context, doc execution.Document) error {
	if doc.ID == "" {
		return errors.New("execution id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"execution_id": doc.ID}
	_, err := s.coll.ReplaceOne(ctx, filter, fromDocument(doc), options.Replace().SetUpsert(true))
	return err
}

// FindByID returns the document for the given execution ID.
func (s *Store) FindByID(ctx context.Context, id string) (execution.Document, error) {
	if id == "" {
		return execution.Document{}, errors.New("execution id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc executionDocument
	if err := s.coll.FindOne(ctx, bson.M{"execution_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return execution.Document{}, execution.ErrNotFound
		}
		return execution.Document{}, err
	}
	return doc.toDocument(), nil
}

// ListByStatus returns every document in the given status ordered by start
// time.
func (s *Store) ListByStatus(ctx context.Context, status execution.Status) ([]execution.Document, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.coll.Find(ctx, bson.M{"status": string(status)},
		options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var out []execution.Document
	for cur.Next(ctx) {
		var doc executionDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toDocument())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongodriver.IndexModel{
		{
			Keys:    bson.D{{Key: "execution_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "start_time", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "workflow_id", Value: 1}},
		},
	})
	return err
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
