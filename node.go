package strata

import (
	"context"
	"fmt"
	"sync"
)

// the resource hierarchy is a closed table: each kind declares where its
// collection lives on the remote side and which kinds its relations produce.
// This replaces per-call-site switch dictionaries with one validated
// structure owned by the session.

type Kind string

// Relation is the parent->child membership category, e.g. "the children of a
// parent-of-kind-X are of kind Y".
type Relation string

type KindSpec struct {
	Kind Kind
	// collection segment of the remote target, e.g. "boards"
	Path string
	// relation -> child kind
	Children map[Relation]Kind
}

type Schema map[Kind]*KindSpec

func (self Schema) Validate() error {
	for kind, spec := range self {
		if spec.Kind != kind {
			return fmt.Errorf("schema: kind %q keyed as %q", spec.Kind, kind)
		}
		if spec.Path == "" {
			return fmt.Errorf("schema: kind %q has no path", kind)
		}
		for relation, childKind := range spec.Children {
			if _, ok := self[childKind]; !ok {
				return fmt.Errorf(
					"schema: relation %q of kind %q targets undefined kind %q",
					relation,
					kind,
					childKind,
				)
			}
		}
	}
	return nil
}

func DefaultClientSettings() *ClientSettings {
	return &ClientSettings{
		Batch: DefaultBatchSettings(),
	}
}

type ClientSettings struct {
	Batch *BatchSettings
}

// Client is one session against a remote tree: a transport function, a
// staging queue and a batch executor, scoped together so that nothing about
// the backend lives in process-wide state.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	clientId  Id
	clientTag string

	perform  PerformFunc
	schema   Schema
	queue    *TaskQueue
	executor *BatchExecutor
	settings *ClientSettings
}

func NewClientWithDefaults(
	ctx context.Context,
	perform PerformFunc,
	schema Schema,
) (*Client, error) {
	return NewClient(ctx, perform, schema, DefaultClientSettings())
}

func NewClient(
	ctx context.Context,
	perform PerformFunc,
	schema Schema,
	settings *ClientSettings,
) (*Client, error) {
	return NewClientWithTesting(ctx, perform, schema, settings, nil)
}

func NewClientWithTesting(
	ctx context.Context,
	perform PerformFunc,
	schema Schema,
	settings *ClientSettings,
	testing BatchTesting,
) (*Client, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	cancelCtx, cancel := context.WithCancel(ctx)

	clientId := NewId()
	queue := NewTaskQueue()
	executor := NewBatchExecutorWithTesting(cancelCtx, queue, settings.Batch, testing)

	return &Client{
		ctx:       cancelCtx,
		cancel:    cancel,
		clientId:  clientId,
		clientTag: clientId.String()[0:8],
		perform:   perform,
		schema:    schema,
		queue:     queue,
		executor:  executor,
		settings:  settings,
	}, nil
}

func (self *Client) ClientId() Id {
	return self.clientId
}

func (self *Client) Executor() *BatchExecutor {
	return self.executor
}

// Node returns an empty node for a known kind. The record is nil until the
// first refresh.
func (self *Client) Node(kind Kind, id string) (*ResourceNode, error) {
	spec, ok := self.schema[kind]
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	return newResourceNode(self, spec, id, Record{}), nil
}

func (self *Client) Close() {
	self.cancel()
}

// ResourceNode is one entity in the hierarchy: an optional current record
// and one collection per fetched relation. The record and the child
// collections are owned exclusively by this node; a node never mutates
// another node's record.
type ResourceNode struct {
	client *Client
	spec   *KindSpec
	id     string

	stateLock sync.Mutex
	record    Record
	children  map[Relation]*Collection
}

func newResourceNode(client *Client, spec *KindSpec, id string, record Record) *ResourceNode {
	return &ResourceNode{
		client:   client,
		spec:     spec,
		id:       id,
		record:   record,
		children: map[Relation]*Collection{},
	}
}

func (self *ResourceNode) Kind() Kind {
	return self.spec.Kind
}

func (self *ResourceNode) Id() string {
	return self.id
}

// Record implements Entity.
func (self *ResourceNode) Record() Record {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.record
}

// Children returns the current collection for a relation. Empty until the
// relation has been fetched.
func (self *ResourceNode) Children(relation Relation) *Collection {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if collection, ok := self.children[relation]; ok {
		return collection
	}
	return NewCollection()
}

func (self *ResourceNode) target() string {
	return fmt.Sprintf("%s/%s", self.spec.Path, self.id)
}

func (self *ResourceNode) relationTarget(relation Relation) (string, *KindSpec, error) {
	childKind, ok := self.spec.Children[relation]
	if !ok {
		return "", nil, fmt.Errorf("kind %q has no relation %q", self.spec.Kind, relation)
	}
	childSpec := self.client.schema[childKind]
	return fmt.Sprintf("%s/%s", self.target(), childSpec.Path), childSpec, nil
}

// Refresh fetches this node and replaces its record wholesale. The old
// record is discarded, never merged.
func (self *ResourceNode) Refresh() error {
	record, err := self.fetchSelf(self.client.ctx)
	if err != nil {
		return err
	}
	self.setRecord(record)
	return nil
}

// Update performs a remote update, then replaces the record with the
// returned snapshot.
func (self *ResourceNode) Update(params map[string]string) error {
	parsed, err := self.client.perform(self.client.ctx, "PUT", self.target(), params)
	if err != nil {
		return err
	}
	record, err := recordFromResult(parsed)
	if err != nil {
		return err
	}
	self.setRecord(record)
	return nil
}

// FetchChildren lists this node's children of one relation and replaces the
// corresponding collection with freshly constructed nodes. Existing child
// nodes are never mutated in place: sibling identity must be revalidated
// against the parent's current server-side state.
func (self *ResourceNode) FetchChildren(relation Relation) (*Collection, error) {
	records, err := self.fetchChildRecords(self.client.ctx, relation)
	if err != nil {
		return nil, err
	}
	collection := self.buildChildren(relation, records)
	self.setChildren(relation, collection)
	return collection, nil
}

// RefreshFamily refreshes this node and one generation of children as two
// batches: the first holds the self-refresh and the child listing (they hit
// different endpoints and cannot be combined into one round trip), the
// second holds one refresh per discovered child. It refuses to start while
// any queue key it intends to use is populated or in flight.
func (self *ResourceNode) RefreshFamily(relation Relation) error {
	executor := self.client.executor

	generationKey := fmt.Sprintf("family/%s/generation", self.id)
	childrenKey := fmt.Sprintf("family/%s/children", self.id)
	for _, key := range []string{generationKey, childrenKey} {
		if !executor.Available(key) {
			return &ReservedKeyError{Key: key}
		}
	}

	familyLog := LogFn(1, fmt.Sprintf("[node]%s/%s", self.client.clientTag, self.id))
	familyLog("refresh family relation=%s", relation)

	var record Record
	var childRecords []Record

	err := executor.Stage(generationKey, func(ctx context.Context, args ...any) (any, error) {
		return self.fetchSelf(ctx)
	})
	if err != nil {
		return err
	}
	err = executor.Stage(generationKey, func(ctx context.Context, args ...any) (any, error) {
		return self.fetchChildRecords(ctx, relation)
	})
	if err != nil {
		return err
	}

	results, err := executor.Run(generationKey)
	if err != nil {
		return err
	}
	record = results[0].(Record)
	childRecords = results[1].([]Record)

	self.setRecord(record)
	collection := self.buildChildren(relation, childRecords)
	self.setChildren(relation, collection)

	if collection.Len() == 0 {
		return nil
	}

	for _, entity := range collection.Entities() {
		child := entity.(*ResourceNode)
		err = executor.Stage(childrenKey, func(ctx context.Context, args ...any) (any, error) {
			return nil, child.Refresh()
		})
		if err != nil {
			return err
		}
	}
	_, err = executor.Run(childrenKey)
	return err
}

func (self *ResourceNode) fetchSelf(ctx context.Context) (Record, error) {
	parsed, err := self.client.perform(ctx, "GET", self.target(), nil)
	if err != nil {
		return Record{}, err
	}
	return recordFromResult(parsed)
}

func (self *ResourceNode) fetchChildRecords(ctx context.Context, relation Relation) ([]Record, error) {
	target, _, err := self.relationTarget(relation)
	if err != nil {
		return nil, err
	}
	parsed, err := self.client.perform(ctx, "GET", target, nil)
	if err != nil {
		return nil, err
	}
	return recordsFromResult(parsed)
}

func (self *ResourceNode) buildChildren(relation Relation, records []Record) *Collection {
	childKind := self.spec.Children[relation]
	childSpec := self.client.schema[childKind]

	entities := make([]Entity, len(records))
	for i, record := range records {
		entities[i] = newResourceNode(self.client, childSpec, record.Id(), record)
	}
	return NewCollection(entities...)
}

func (self *ResourceNode) setRecord(record Record) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.record = record
}

func (self *ResourceNode) setChildren(relation Relation, collection *Collection) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.children[relation] = collection
}

func (self *ResourceNode) String() string {
	return fmt.Sprintf("%s(%s)", self.spec.Kind, self.id)
}

func recordFromResult(parsed any) (Record, error) {
	values, ok := parsed.(map[string]any)
	if !ok {
		return Record{}, fmt.Errorf("expected an object response, got %T", parsed)
	}
	return NewRecord(values), nil
}

func recordsFromResult(parsed any) ([]Record, error) {
	list, ok := parsed.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list response, got %T", parsed)
	}
	records := make([]Record, len(list))
	for i, element := range list {
		values, ok := element.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected a list of objects, got %T at %d", element, i)
		}
		records[i] = NewRecord(values)
	}
	return records, nil
}
