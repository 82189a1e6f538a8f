// Package memory implements every persistence port on top of go-memdb.
// Objects are copied on the way in and out so callers never share memory with the store.
package memory

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-memdb"
	"go.uber.org/zap"

	"github.com/garyjia/editorial-workflow/internal/application/port"
)

const (
	tableDefinitions  = "definitions"
	tableInstances    = "instances"
	tableBindings     = "bindings"
	tableAudit        = "audit"
	tableNotification = "notifications"
)

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableDefinitions: {
				Name: tableDefinitions,
				Indexes: map[string]*memdb.IndexSchema{
					"id":   {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"name": {Name: "name", Indexer: &memdb.StringFieldIndex{Field: "Name"}},
				},
			},
			tableInstances: {
				Name: tableInstances,
				Indexes: map[string]*memdb.IndexSchema{
					"id":         {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"content":    {Name: "content", Indexer: &memdb.StringFieldIndex{Field: "ContentID"}},
					"definition": {Name: "definition", Indexer: &memdb.StringFieldIndex{Field: "WorkflowDefinitionID"}},
				},
			},
			tableBindings: {
				Name: tableBindings,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ContentID"}},
				},
			},
			tableAudit: {
				Name: tableAudit,
				Indexes: map[string]*memdb.IndexSchema{
					"id":      {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"event":   {Name: "event", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "EventID"}},
					"content": {Name: "content", Indexer: &memdb.StringFieldIndex{Field: "ContentID"}},
				},
			},
			tableNotification: {
				Name: tableNotification,
				Indexes: map[string]*memdb.IndexSchema{
					"id":      {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"event":   {Name: "event", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "EventID"}},
					"content": {Name: "content", Indexer: &memdb.StringFieldIndex{Field: "ContentID"}},
				},
			},
		},
	}
}

type txnKey struct{}

// Store holds all workflow data in memory and implements port.TransactionManager.
// go-memdb allows a single writer at a time, so write transactions are serialized.
type Store struct {
	db     *memdb.MemDB
	logger *zap.Logger
}

// NewStore creates an empty store
func NewStore(logger *zap.Logger) (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("failed to create memdb: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// WithTransaction runs fn in one write transaction carried by the context
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txnKey{}).(*memdb.Txn); ok {
		return fn(ctx)
	}

	txn := s.db.Txn(true)
	// Abort is a no-op after Commit and also covers panics
	defer txn.Abort()

	if err := fn(context.WithValue(ctx, txnKey{}, txn)); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) read(ctx context.Context) *memdb.Txn {
	if txn, ok := ctx.Value(txnKey{}).(*memdb.Txn); ok {
		return txn
	}
	return s.db.Txn(false)
}

func (s *Store) write(ctx context.Context, fn func(txn *memdb.Txn) error) error {
	if txn, ok := ctx.Value(txnKey{}).(*memdb.Txn); ok {
		return fn(txn)
	}

	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := fn(txn); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// Definitions returns the definition repository
func (s *Store) Definitions() *DefinitionRepository {
	return &DefinitionRepository{store: s}
}

// Instances returns the instance repository
func (s *Store) Instances() *InstanceRepository {
	return &InstanceRepository{store: s}
}

// Bindings returns the content binding repository
func (s *Store) Bindings() *BindingRepository {
	return &BindingRepository{store: s}
}

// Audit returns the audit record repository
func (s *Store) Audit() *AuditRepository {
	return &AuditRepository{store: s}
}

// Notifications returns the notification repository
func (s *Store) Notifications() *NotificationRepository {
	return &NotificationRepository{store: s}
}

// Verify interface compliance
var _ port.TransactionManager = (*Store)(nil)
