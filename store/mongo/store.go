// Package mongo implements the durable Store on MongoDB. The four
// collections (workflows, executions, templates, logs) keep nested structures
// as JSON-encoded strings so documents round-trip byte-for-byte, and the
// listing indices required by the runtime are created at construction.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/flowd-dev/flowd/runtime/execution"
	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/runtime/workflow"
	"github.com/flowd-dev/flowd/store"
)

const defaultTimeout = 5 * time.Second

type (
	// Options configures the Mongo-backed store.
	Options struct {
		// Client is the connected MongoDB client.
		Client *mongodriver.Client
		// Database names the database holding the four collections.
		Database string
		// Timeout bounds each storage operation. Zero means 5s.
		Timeout time.Duration
	}

	// Store implements store.Store on MongoDB.
	Store struct {
		client     *mongodriver.Client
		workflows  *mongodriver.Collection
		executions *mongodriver.Collection
		templates  *mongodriver.Collection
		logs       *mongodriver.Collection
		timeout    time.Duration

		// execLocks serializes read-modify-write node-state updates per
		// execution. Cross-process writers are out of scope: the engine is the
		// sole writer for its executions.
		execLocks sync.Map
	}

	workflowDoc struct {
		ID          string    `bson:"_id"`
		Name        string    `bson:"name"`
		Description string    `bson:"description,omitempty"`
		Nodes       string    `bson:"nodes"`
		Edges       string    `bson:"edges"`
		Variables   string    `bson:"variables,omitempty"`
		Metadata    string    `bson:"metadata,omitempty"`
		CreatedAt   time.Time `bson:"createdAt"`
		UpdatedAt   time.Time `bson:"updatedAt"`
	}

	executionDoc struct {
		ID          string     `bson:"_id"`
		WorkflowID  string     `bson:"workflowId"`
		Status      string     `bson:"status"`
		Input       string     `bson:"input,omitempty"`
		Output      string     `bson:"output,omitempty"`
		Error       string     `bson:"error,omitempty"`
		StartedAt   time.Time  `bson:"startedAt"`
		CompletedAt *time.Time `bson:"completedAt,omitempty"`
		NodeStates  string     `bson:"nodeStates,omitempty"`
	}

	templateDoc struct {
		ID          string    `bson:"_id"`
		Name        string    `bson:"name"`
		Description string    `bson:"description,omitempty"`
		Category    string    `bson:"category"`
		Nodes       string    `bson:"nodes"`
		Edges       string    `bson:"edges"`
		Variables   string    `bson:"variables,omitempty"`
		Metadata    string    `bson:"metadata,omitempty"`
		CreatedAt   time.Time `bson:"createdAt"`
	}

	logDoc struct {
		ExecutionID string    `bson:"executionId"`
		Timestamp   time.Time `bson:"timestamp"`
		Level       string    `bson:"level"`
		NodeID      string    `bson:"nodeId,omitempty"`
		Message     string    `bson:"message"`
		Data        string    `bson:"data,omitempty"`
	}
)

// New builds a Mongo-backed store and creates the required listing indices
// (executions.workflowId, logs.executionId, templates.category).
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	db := opts.Client.Database(opts.Database)
	s := &Store{
		client:     opts.Client,
		workflows:  db.Collection("workflows"),
		executions: db.Collection("executions"),
		templates:  db.Collection("templates"),
		logs:       db.Collection("logs"),
		timeout:    timeout,
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, floerr.Wrap(floerr.KindStorage, "create indexes", err)
	}
	return s, nil
}

// NewFromURI connects to the given MongoDB URI and builds the store.
func NewFromURI(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongodriver.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, floerr.Wrap(floerr.KindStorage, "connect mongo", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, floerr.Wrap(floerr.KindStorage, "ping mongo", err)
	}
	return New(ctx, Options{Client: client, Database: database})
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.executions.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "workflowId", Value: 1}},
	}); err != nil {
		return err
	}
	if _, err := s.logs.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "executionId", Value: 1}},
	}); err != nil {
		return err
	}
	_, err := s.templates.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "category", Value: 1}},
	})
	return err
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func encodeJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	doc, err := json.Marshal(v)
	if err != nil {
		return "", floerr.Wrap(floerr.KindStorage, "encode record field", err)
	}
	return string(doc), nil
}

func decodeJSON(doc string, v any) error {
	if doc == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(doc), v); err != nil {
		return floerr.Wrap(floerr.KindCorruptRecord, "decode record field", err)
	}
	return nil
}

func encodeWorkflow(w *workflow.Workflow) (*workflowDoc, error) {
	nodes, err := encodeJSON(w.Nodes)
	if err != nil {
		return nil, err
	}
	edges, err := encodeJSON(w.Edges)
	if err != nil {
		return nil, err
	}
	vars, err := encodeJSON(w.Variables)
	if err != nil {
		return nil, err
	}
	meta, err := encodeJSON(w.Metadata)
	if err != nil {
		return nil, err
	}
	return &workflowDoc{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		Nodes:       nodes,
		Edges:       edges,
		Variables:   vars,
		Metadata:    meta,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}, nil
}

func decodeWorkflow(doc *workflowDoc) (*workflow.Workflow, error) {
	w := &workflow.Workflow{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: doc.Description,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	if err := decodeJSON(doc.Nodes, &w.Nodes); err != nil {
		return nil, err
	}
	if err := decodeJSON(doc.Edges, &w.Edges); err != nil {
		return nil, err
	}
	if err := decodeJSON(doc.Variables, &w.Variables); err != nil {
		return nil, err
	}
	if err := decodeJSON(doc.Metadata, &w.Metadata); err != nil {
		return nil, err
	}
	return w, nil
}

func encodeExecution(e *execution.Execution) (*executionDoc, error) {
	input, err := encodeJSON(e.Input)
	if err != nil {
		return nil, err
	}
	output, err := encodeJSON(e.Output)
	if err != nil {
		return nil, err
	}
	states, err := encodeJSON(e.NodeStates)
	if err != nil {
		return nil, err
	}
	return &executionDoc{
		ID:          e.ID,
		WorkflowID:  e.WorkflowID,
		Status:      string(e.Status),
		Input:       input,
		Output:      output,
		Error:       e.Error,
		StartedAt:   e.StartedAt,
		CompletedAt: e.CompletedAt,
		NodeStates:  states,
	}, nil
}

func decodeExecution(doc *executionDoc) (*execution.Execution, error) {
	e := &execution.Execution{
		ID:          doc.ID,
		WorkflowID:  doc.WorkflowID,
		Status:      execution.Status(doc.Status),
		Error:       doc.Error,
		StartedAt:   doc.StartedAt,
		CompletedAt: doc.CompletedAt,
	}
	if err := decodeJSON(doc.Input, &e.Input); err != nil {
		return nil, err
	}
	if err := decodeJSON(doc.Output, &e.Output); err != nil {
		return nil, err
	}
	if err := decodeJSON(doc.NodeStates, &e.NodeStates); err != nil {
		return nil, err
	}
	return e, nil
}

// CreateWorkflow implements store.Store.
func (s *Store) CreateWorkflow(ctx context.Context, w *workflow.Workflow) error {
	doc, err := encodeWorkflow(w)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.workflows.InsertOne(ctx, doc); err != nil {
		return floerr.Wrap(floerr.KindStorage, "insert workflow", err)
	}
	return nil
}

// UpdateWorkflow implements store.Store.
func (s *Store) UpdateWorkflow(ctx context.Context, id string, upd store.WorkflowUpdate) (*workflow.Workflow, error) {
	w, err := s.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		w.Name = *upd.Name
	}
	if upd.Description != nil {
		w.Description = *upd.Description
	}
	if upd.Nodes != nil {
		w.Nodes = upd.Nodes
	}
	if upd.Edges != nil {
		w.Edges = upd.Edges
	}
	if upd.Variables != nil {
		w.Variables = upd.Variables
	}
	if upd.Metadata != nil {
		w.Metadata = upd.Metadata
	}
	w.UpdatedAt = time.Now().UTC()
	doc, err := encodeWorkflow(w)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.workflows.ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return nil, floerr.Wrap(floerr.KindStorage, "update workflow", err)
	}
	if res.MatchedCount == 0 {
		return nil, store.ErrNotFound
	}
	return w, nil
}

// DeleteWorkflow implements store.Store.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.workflows.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return floerr.Wrap(floerr.KindStorage, "delete workflow", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetWorkflow implements store.Store.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc workflowDoc
	if err := s.workflows.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, floerr.Wrap(floerr.KindStorage, "load workflow", err)
	}
	return decodeWorkflow(&doc)
}

// ListWorkflows implements store.Store.
func (s *Store) ListWorkflows(ctx context.Context) ([]*workflow.Workflow, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cursor, err := s.workflows.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}}))
	if err != nil {
		return nil, floerr.Wrap(floerr.KindStorage, "list workflows", err)
	}
	defer cursor.Close(ctx)
	var out []*workflow.Workflow
	for cursor.Next(ctx) {
		var doc workflowDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, floerr.Wrap(floerr.KindCorruptRecord, "decode workflow", err)
		}
		w, err := decodeWorkflow(&doc)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := cursor.Err(); err != nil {
		return nil, floerr.Wrap(floerr.KindStorage, "list workflows", err)
	}
	return out, nil
}

// CreateExecution implements store.Store.
func (s *Store) CreateExecution(ctx context.Context, e *execution.Execution) error {
	doc, err := encodeExecution(e)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.executions.InsertOne(ctx, doc); err != nil {
		return floerr.Wrap(floerr.KindStorage, "insert execution", err)
	}
	return nil
}

// UpdateExecution implements store.Store.
func (s *Store) UpdateExecution(ctx context.Context, id string, upd store.ExecutionUpdate) (*execution.Execution, error) {
	set := bson.M{}
	if upd.Status != nil {
		set["status"] = string(*upd.Status)
	}
	if upd.OutputSet {
		output, err := encodeJSON(upd.Output)
		if err != nil {
			return nil, err
		}
		set["output"] = output
	}
	if upd.Error != nil {
		set["error"] = *upd.Error
	}
	if upd.CompletedAt != nil {
		set["completedAt"] = *upd.CompletedAt
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if len(set) > 0 {
		res, err := s.executions.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
		if err != nil {
			return nil, floerr.Wrap(floerr.KindStorage, "update execution", err)
		}
		if res.MatchedCount == 0 {
			return nil, store.ErrNotFound
		}
	}
	return s.getExecution(ctx, id)
}

func (s *Store) getExecution(ctx context.Context, id string) (*execution.Execution, error) {
	var doc executionDoc
	if err := s.executions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, floerr.Wrap(floerr.KindStorage, "load execution", err)
	}
	return decodeExecution(&doc)
}

// GetExecution implements store.Store. Log lines are loaded from the logs
// collection in timestamp order.
func (s *Store) GetExecution(ctx context.Context, id string) (*execution.Execution, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	e, err := s.getExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	cursor, err := s.logs.Find(ctx, bson.M{"executionId": id}, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, floerr.Wrap(floerr.KindStorage, "load logs", err)
	}
	defer cursor.Close(ctx)
	for cursor.Next(ctx) {
		var doc logDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, floerr.Wrap(floerr.KindCorruptRecord, "decode log line", err)
		}
		line := execution.LogLine{
			Timestamp: doc.Timestamp,
			Level:     execution.LogLevel(doc.Level),
			NodeID:    doc.NodeID,
			Message:   doc.Message,
		}
		if err := decodeJSON(doc.Data, &line.Data); err != nil {
			return nil, err
		}
		e.Logs = append(e.Logs, line)
	}
	if err := cursor.Err(); err != nil {
		return nil, floerr.Wrap(floerr.KindStorage, "load logs", err)
	}
	return e, nil
}

// ListExecutions implements store.Store.
func (s *Store) ListExecutions(ctx context.Context, workflowID string) ([]*execution.Execution, error) {
	filter := bson.M{}
	if workflowID != "" {
		filter["workflowId"] = workflowID
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cursor, err := s.executions.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "startedAt", Value: -1}}))
	if err != nil {
		return nil, floerr.Wrap(floerr.KindStorage, "list executions", err)
	}
	defer cursor.Close(ctx)
	var out []*execution.Execution
	for cursor.Next(ctx) {
		var doc executionDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, floerr.Wrap(floerr.KindCorruptRecord, "decode execution", err)
		}
		e, err := decodeExecution(&doc)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := cursor.Err(); err != nil {
		return nil, floerr.Wrap(floerr.KindStorage, "list executions", err)
	}
	return out, nil
}

// UpdateExecutionNodeState implements store.Store. The read-modify-write is
// serialized per execution; redelivered transitions that would reverse the
// monotonic lifecycle are ignored.
func (s *Store) UpdateExecutionNodeState(ctx context.Context, executionID, nodeID string, status execution.NodeStatus, output any, errMsg string) error {
	lockAny, _ := s.execLocks.LoadOrStore(executionID, &sync.Mutex{})
	lock := lockAny.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	e, err := s.getExecution(ctx, executionID)
	if err != nil {
		return err
	}
	ns := e.NodeState(nodeID)
	if !ns.Status.CanTransition(status) {
		return nil
	}
	now := time.Now().UTC()
	ns.Status = status
	switch {
	case status == execution.NodeRunning:
		ns.StartedAt = &now
	case status.Terminal():
		ns.CompletedAt = &now
		if status == execution.NodeCompleted {
			ns.Output = output
		}
		ns.Error = errMsg
	}
	states, err := encodeJSON(e.NodeStates)
	if err != nil {
		return err
	}
	if _, err := s.executions.UpdateOne(ctx, bson.M{"_id": executionID}, bson.M{"$set": bson.M{"nodeStates": states}}); err != nil {
		return floerr.Wrap(floerr.KindStorage, "update node state", err)
	}
	return nil
}

// AppendLog implements store.Store.
func (s *Store) AppendLog(ctx context.Context, executionID, nodeID string, level execution.LogLevel, message string, data map[string]any) error {
	encoded, err := encodeJSON(data)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err = s.logs.InsertOne(ctx, logDoc{
		ExecutionID: executionID,
		Timestamp:   time.Now().UTC(),
		Level:       string(level),
		NodeID:      nodeID,
		Message:     message,
		Data:        encoded,
	})
	if err != nil {
		return floerr.Wrap(floerr.KindStorage, "append log", err)
	}
	return nil
}

// CreateTemplate implements store.Store.
func (s *Store) CreateTemplate(ctx context.Context, t *store.Template) error {
	nodes, err := encodeJSON(t.Nodes)
	if err != nil {
		return err
	}
	edges, err := encodeJSON(t.Edges)
	if err != nil {
		return err
	}
	vars, err := encodeJSON(t.Variables)
	if err != nil {
		return err
	}
	meta, err := encodeJSON(t.Metadata)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err = s.templates.InsertOne(ctx, templateDoc{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Category:    t.Category,
		Nodes:       nodes,
		Edges:       edges,
		Variables:   vars,
		Metadata:    meta,
		CreatedAt:   t.CreatedAt,
	})
	if err != nil {
		return floerr.Wrap(floerr.KindStorage, "insert template", err)
	}
	return nil
}

func decodeTemplate(doc *templateDoc) (*store.Template, error) {
	t := &store.Template{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: doc.Description,
		Category:    doc.Category,
		CreatedAt:   doc.CreatedAt,
	}
	if err := decodeJSON(doc.Nodes, &t.Nodes); err != nil {
		return nil, err
	}
	if err := decodeJSON(doc.Edges, &t.Edges); err != nil {
		return nil, err
	}
	if err := decodeJSON(doc.Variables, &t.Variables); err != nil {
		return nil, err
	}
	if err := decodeJSON(doc.Metadata, &t.Metadata); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTemplate implements store.Store.
func (s *Store) GetTemplate(ctx context.Context, id string) (*store.Template, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc templateDoc
	if err := s.templates.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, floerr.Wrap(floerr.KindStorage, "load template", err)
	}
	return decodeTemplate(&doc)
}

// ListTemplates implements store.Store.
func (s *Store) ListTemplates(ctx context.Context, category string) ([]*store.Template, error) {
	filter := bson.M{}
	if category != "" {
		filter["category"] = category
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cursor, err := s.templates.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, floerr.Wrap(floerr.KindStorage, "list templates", err)
	}
	defer cursor.Close(ctx)
	var out []*store.Template
	for cursor.Next(ctx) {
		var doc templateDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, floerr.Wrap(floerr.KindCorruptRecord, "decode template", err)
		}
		t, err := decodeTemplate(&doc)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := cursor.Err(); err != nil {
		return nil, floerr.Wrap(floerr.KindStorage, "list templates", err)
	}
	return out, nil
}

// DeleteTemplate implements store.Store.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.templates.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return floerr.Wrap(floerr.KindStorage, "delete template", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
