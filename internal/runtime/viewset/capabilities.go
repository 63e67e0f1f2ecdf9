package viewset

import (
	"context"
	"errors"
	"fmt"

	errspkg "github.com/drblury/crudflow/internal/runtime/errors"
	"github.com/drblury/crudflow/internal/runtime/logging"
	"github.com/drblury/crudflow/internal/runtime/rpc"
	"github.com/drblury/crudflow/internal/runtime/schema"
	"github.com/drblury/crudflow/internal/runtime/store"
)

// Actions, used as the procedure name infix.
const (
	ActionList   = "list"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Result types returned to callers of create, update and delete.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Result is the outcome of a mutating procedure. Validation failures are
// results, not RPC errors.
type Result struct {
	Type    string `json:"type"`
	Details string `json:"details"`
}

func success(format string, args ...any) Result {
	return Result{Type: ResultSuccess, Details: fmt.Sprintf(format, args...)}
}

func failure(message string) Result {
	return Result{Type: ResultError, Details: message}
}

// Capability is one CRUD action a ViewSet can expose.
type Capability interface {
	Action() string
	check(deps Dependencies) error
	procedure(v *ViewSet) rpc.Procedure
}

// DefaultCapabilities returns List, Create, Update and Delete in that order.
func DefaultCapabilities(createSchema, updateSchema *schema.Schema, timestamp bool) []Capability {
	return []Capability{
		List{},
		Create{Schema: createSchema, Timestamp: timestamp},
		Update{Schema: updateSchema},
		Delete{},
	}
}

// List returns every record of the collection in store order.
type List struct{}

func (List) Action() string           { return ActionList }
func (List) check(Dependencies) error { return nil }
func (List) procedure(v *ViewSet) rpc.Procedure {
	return func(ctx context.Context, _ rpc.Call) (any, error) {
		recs, err := v.store.Find(ctx, v.name, nil)
		if err != nil {
			return nil, storeFailure("list", err)
		}
		v.log.Debug("Listed records", logging.LogFields{"count": len(recs)})
		return store.StripAll(recs), nil
	}
}

// Create validates the "object" argument, assigns the next id and inserts it.
type Create struct {
	Schema *schema.Schema
	// Timestamp stamps "created" with float seconds since the Unix epoch.
	Timestamp bool
	// Defaults may fill in fields after validation. Nil leaves the record as is.
	Defaults func(store.Record) store.Record
}

func (Create) Action() string { return ActionCreate }

func (c Create) check(deps Dependencies) error {
	if c.Schema == nil {
		return errspkg.ErrSchemaRequired
	}
	if deps.Validator == nil {
		return errspkg.ErrValidatorRequired
	}
	return nil
}

func (c Create) procedure(v *ViewSet) rpc.Procedure {
	return func(ctx context.Context, call rpc.Call) (any, error) {
		rec, res, err := v.candidate(call, c.Schema)
		if rec == nil {
			return res, err
		}
		if c.Defaults != nil {
			rec = c.Defaults(rec)
		}

		id, err := v.insertNext(ctx, rec, c.Timestamp)
		if err != nil {
			return nil, err
		}

		v.log.Debug("Created record", logging.LogFields{"id": id})
		v.publish(ctx, v.ChangedTopic(), map[string]any{"object": rec})
		return success("%s object %d successfully created.", v.name, id), nil
	}
}

// insertNext runs the id allocation critical section: read the max id,
// stamp, assign max+1 and insert, all under the create lock.
func (v *ViewSet) insertNext(ctx context.Context, rec store.Record, timestamp bool) (int64, error) {
	if err := v.createLock.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer v.createLock.Release(1)

	maxID, err := v.store.MaxID(ctx, v.name)
	if err != nil {
		return 0, storeFailure("read max id", err)
	}
	if timestamp {
		rec["created"] = float64(v.now().UnixNano()) / 1e9
	}
	id := maxID + 1
	rec[store.IDField] = id
	if _, err := v.store.Insert(ctx, v.name, rec); err != nil {
		return 0, storeFailure("insert", err)
	}
	return id, nil
}

// Update sets the fields of the "object" argument on the record with its id.
type Update struct {
	Schema *schema.Schema
}

func (Update) Action() string { return ActionUpdate }

func (u Update) check(deps Dependencies) error {
	if u.Schema == nil {
		return errspkg.ErrSchemaRequired
	}
	if deps.Validator == nil {
		return errspkg.ErrValidatorRequired
	}
	return nil
}

func (u Update) procedure(v *ViewSet) rpc.Procedure {
	return func(ctx context.Context, call rpc.Call) (any, error) {
		rec, res, err := v.candidate(call, u.Schema)
		if rec == nil {
			return res, err
		}

		id := rec[store.IDField]
		matched, err := v.store.Update(ctx, v.name, store.ByID(id), rec)
		if err != nil {
			return nil, storeFailure("update", err)
		}
		v.log.Debug("Updated record", logging.LogFields{"id": id, "matched": matched})
		v.publish(ctx, v.ChangedTopic(), map[string]any{"object": rec})
		return success("%s object %v successfully changed.", v.name, id), nil
	}
}

// Delete removes the record with the "id" argument.
type Delete struct{}

func (Delete) Action() string           { return ActionDelete }
func (Delete) check(Dependencies) error { return nil }

func (Delete) procedure(v *ViewSet) rpc.Procedure {
	return func(ctx context.Context, call rpc.Call) (any, error) {
		id := call.Kwarg(store.IDField)
		if id == nil && len(call.Args) > 0 {
			id = call.Args[0]
		}
		if id == nil {
			return nil, rpc.InvalidParams("id is required")
		}

		removed, err := v.store.Remove(ctx, v.name, store.ByID(id))
		if err != nil {
			return nil, storeFailure("remove", err)
		}
		v.log.Debug("Deleted record", logging.LogFields{"id": id, "removed": removed})
		v.publish(ctx, v.DeletedTopic(), map[string]any{store.IDField: id})
		return success("%s object %v successfully deleted.", v.name, id), nil
	}
}

// candidate extracts and validates the "object" argument. A nil record means
// the call is answered with res and err.
func (v *ViewSet) candidate(call rpc.Call, s *schema.Schema) (store.Record, any, error) {
	obj := call.Kwarg("object")
	if obj == nil && len(call.Args) > 0 {
		obj = call.Args[0]
	}

	var rec store.Record
	if obj != nil {
		m, ok := obj.(map[string]any)
		if !ok {
			return nil, failure("Object data must be an object."), nil
		}
		rec = make(store.Record, len(m))
		for k, val := range m {
			if k != store.StorageKey {
				rec[k] = val
			}
		}
	}

	if err := v.validator.Validate(rec, s); err != nil {
		var verr *errspkg.ValidationError
		if errors.As(err, &verr) {
			v.log.Debug("Rejected record", logging.LogFields{"reason": verr.Message})
			return nil, failure(verr.Message), nil
		}
		return nil, nil, err
	}
	return rec, nil, nil
}
