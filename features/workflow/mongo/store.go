// Package mongo provides a MongoDB-backed workflow definition store. The
// engine reads definitions through this store at execution start; definition
// writes happen in the authoring surface, outside the engine.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/autoflowhq/autoflow/runtime/workflow"
)

const (
	defaultCollection = "workflows"
	defaultOpTimeout  = 5 * time.Second
	clientName        = "workflow-mongo"
)

// Options configures the Mongo workflow store.
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

// Store implements workflow.Store backed by MongoDB.
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
	_, err := s.coll.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "workflow_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
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

// FindByID returns the workflow with the given ID.
func (s *Store) FindByID(ctx context.Context, id string) (*workflow.Workflow, error) {
	if id == "" {
		return nil, errors.New("workflow id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc workflowDocument
	if err := s.coll.FindOne(ctx, bson.M{"workflow_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, workflow.ErrNotFound
		}
		return nil, err
	}
	return doc.toWorkflow(), nil
}

// Upsert stores the workflow definition, replacing any previous version. Used
// by authoring tools and seed scripts rather than the engine.
func (s *Store) Upsert(ctx context.Context, wf *workflow.Workflow) error {
	if wf == nil || wf.ID == "" {
		return errors.New("workflow id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"workflow_id": wf.ID}
	_, err := s.coll.ReplaceOne(ctx, filter, fromWorkflow(wf), options.Replace().SetUpsert(true))
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

type (
	workflowDocument struct {
		WorkflowID string    `bson:"workflow_id"`
		Name       string    `bson:"name"`
		Status     string    `bson:"status"`
		Nodes      []nodeDoc `bson:"nodes"`
		Edges      []edgeDoc `bson:"edges"`
		Version    int       `bson:"version"`
	}

	nodeDoc struct {
		NodeID string         `bson:"node_id"`
		Kind   string         `bson:"kind"`
		Name   string         `bson:"name,omitempty"`
		Config map[string]any `bson:"config,omitempty"`
	}

	edgeDoc struct {
		Source    string `bson:"source"`
		Target    string `bson:"target"`
		Condition string `bson:"condition,omitempty"`
	}
)

func fromWorkflow(wf *workflow.Workflow) workflowDocument {
	doc := workflowDocument{
		WorkflowID: wf.ID,
		Name:       wf.Name,
		Status:     string(wf.Status),
		Version:    wf.Version,
		Nodes:      make([]nodeDoc, 0, len(wf.Nodes)),
		Edges:      make([]edgeDoc, 0, len(wf.Edges)),
	}
	for _, n := range wf.Nodes {
		doc.Nodes = append(doc.Nodes, nodeDoc{
			NodeID: n.ID,
			Kind:   string(n.Kind),
			Name:   n.Name,
			Config: n.Config,
		})
	}
	for _, e := range wf.Edges {
		doc.Edges = append(doc.Edges, edgeDoc{Source: e.Source, Target: e.Target, Condition: e.Condition})
	}
	return doc
}

func (d workflowDocument) toWorkflow() *workflow.Workflow {
	wf := &workflow.Workflow{
		ID:      d.WorkflowID,
		Name:    d.Name,
		Status:  workflow.Status(d.Status),
		Version: d.Version,
		Nodes:   make([]workflow.Node, 0, len(d.Nodes)),
		Edges:   make([]workflow.Edge, 0, len(d.Edges)),
	}
	for _, n := range d.Nodes {
		wf.Nodes = append(wf.Nodes, workflow.Node{
			ID:     n.NodeID,
			Kind:   workflow.NodeKind(n.Kind),
			Name:   n.Name,
			Config: n.Config,
		})
	}
	for _, e := range d.Edges {
		wf.Edges = append(wf.Edges, workflow.Edge{Source: e.Source, Target: e.Target, Condition: e.Condition})
	}
	return wf
}
