// Package viewset exposes CRUD procedures for one collection of records.
//
// A ViewSet is built from an ordered list of capabilities (List, Create,
// Update, Delete). Register walks that list once and registers each
// capability's procedure as "<prefix>.<action><name>" on the RPC session.
// Create allocates sequential ids under a per-ViewSet lock; every mutation is
// announced on "<prefix>.changed<name>" or "<prefix>.deleted<name>".
package viewset

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	errspkg "github.com/drblury/crudflow/internal/runtime/errors"
	"github.com/drblury/crudflow/internal/runtime/logging"
	"github.com/drblury/crudflow/internal/runtime/metadata"
	"github.com/drblury/crudflow/internal/runtime/rpc"
	"github.com/drblury/crudflow/internal/runtime/schema"
	"github.com/drblury/crudflow/internal/runtime/store"
)

// Session is the RPC session procedures are registered on and change events
// are published through.
type Session interface {
	Register(ctx context.Context, name string, proc rpc.Procedure) error
	Publish(ctx context.Context, topic string, payload map[string]any) error
}

// Validator checks candidate records. Violations are *errors.ValidationError.
type Validator interface {
	Validate(rec map[string]any, s *schema.Schema) error
}

// Config names the collection and the capabilities to expose, in
// registration order.
type Config struct {
	Name         string
	URIPrefix    string
	Capabilities []Capability
}

// Dependencies are the collaborators a ViewSet needs. Validator is only
// required when Create or Update is enabled. Now defaults to time.Now.
type Dependencies struct {
	Session   Session
	Store     store.ObjectStore
	Validator Validator
	Logger    logging.ServiceLogger
	Now       func() time.Time
}

// State tracks progress through Register.
type State int

const (
	Unregistered State = iota
	Registering
	Registered
	Failed
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Registering:
		return "registering"
	case Registered:
		return "registered"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ViewSet is the CRUD handler set of one collection.
type ViewSet struct {
	name      string
	uriPrefix string
	caps      []Capability

	session   Session
	store     store.ObjectStore
	validator Validator
	log       logging.ServiceLogger
	now       func() time.Time

	// createLock serializes read-max-id, increment and insert.
	createLock *semaphore.Weighted

	mu    sync.Mutex
	state State
}

// New checks the configuration and returns an unregistered ViewSet. Every
// error is a configuration fault.
func New(cfg Config, deps Dependencies) (*ViewSet, error) {
	if cfg.Name == "" {
		return nil, errspkg.ErrViewSetNameRequired
	}
	if cfg.URIPrefix == "" {
		return nil, errspkg.ErrURIPrefixRequired
	}
	if deps.Session == nil {
		return nil, errspkg.ErrSessionRequired
	}
	if deps.Store == nil {
		return nil, errspkg.ErrStoreRequired
	}
	if deps.Logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if len(cfg.Capabilities) == 0 {
		return nil, fmt.Errorf("viewset %s: %w", cfg.Name, errspkg.ErrCapabilityRequired)
	}

	seen := make(map[string]bool, len(cfg.Capabilities))
	for _, c := range cfg.Capabilities {
		if c == nil {
			return nil, fmt.Errorf("viewset %s: nil capability", cfg.Name)
		}
		action := c.Action()
		if seen[action] {
			return nil, fmt.Errorf("viewset %s: %s: %w", cfg.Name, action, errspkg.ErrDuplicateCapability)
		}
		seen[action] = true
		if err := c.check(deps); err != nil {
			return nil, fmt.Errorf("viewset %s: %s: %w", cfg.Name, action, err)
		}
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &ViewSet{
		name:       cfg.Name,
		uriPrefix:  cfg.URIPrefix,
		caps:       append([]Capability(nil), cfg.Capabilities...),
		session:    deps.Session,
		store:      deps.Store,
		validator:  deps.Validator,
		log:        logging.Component(deps.Logger, "viewset").With(logging.LogFields{"collection": cfg.Name}),
		now:        now,
		createLock: semaphore.NewWeighted(1),
	}, nil
}

func (v *ViewSet) Name() string      { return v.name }
func (v *ViewSet) URIPrefix() string { return v.uriPrefix }

// ProcedureName returns the procedure registered for action.
func (v *ViewSet) ProcedureName(action string) string {
	return ProcedureName(v.uriPrefix, action, v.name)
}

// ChangedTopic carries {"object": record} after create and update.
func (v *ViewSet) ChangedTopic() string {
	return ChangedTopic(v.uriPrefix, v.name)
}

// DeletedTopic carries {"id": id} after delete.
func (v *ViewSet) DeletedTopic() string {
	return DeletedTopic(v.uriPrefix, v.name)
}

// Procedures lists the procedure names in registration order.
func (v *ViewSet) Procedures() []string {
	names := make([]string, len(v.caps))
	for i, c := range v.caps {
		names[i] = v.ProcedureName(c.Action())
	}
	return names
}

// ProcedureName builds "<prefix>.<action><collection>".
func ProcedureName(prefix, action, collection string) string {
	return prefix + "." + action + collection
}

func ChangedTopic(prefix, collection string) string {
	return prefix + ".changed" + collection
}

func DeletedTopic(prefix, collection string) string {
	return prefix + ".deleted" + collection
}

// State reports registration progress.
func (v *ViewSet) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// RegistrationError reports the capability that failed to register. The
// capabilities before Index stay registered.
type RegistrationError struct {
	Index     int
	Action    string
	Procedure string
	Err       error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register %s (capability %d, %s): %v", e.Procedure, e.Index, e.Action, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// Register registers every capability in order. It is meant to be called
// once; a failure leaves the ViewSet in the Failed state without rolling back
// what was already registered.
func (v *ViewSet) Register(ctx context.Context) error {
	v.setState(Registering)
	for i, c := range v.caps {
		name := v.ProcedureName(c.Action())
		if err := v.session.Register(ctx, name, c.procedure(v)); err != nil {
			v.setState(Failed)
			return &RegistrationError{Index: i, Action: c.Action(), Procedure: name, Err: err}
		}
		v.log.Debug("Registered procedure", logging.LogFields{"procedure": name})
	}
	v.setState(Registered)
	return nil
}

func (v *ViewSet) setState(s State) {
	v.mu.Lock()
	v.state = s
	v.mu.Unlock()
}

// publish announces a change. Failures are logged: the store mutation has
// already happened and stays.
func (v *ViewSet) publish(ctx context.Context, topic string, payload map[string]any) {
	if err := v.session.Publish(metadata.WithCollection(ctx, v.name), topic, payload); err != nil {
		v.log.Error("Failed to publish change event", err, logging.LogFields{
			"topic":      topic,
			"request_id": rpc.RequestID(ctx),
		})
	}
}

func storeFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", errspkg.ErrStoreFailure, op, err)
}
