// Package schema validates records against CUE schemas.
//
// A schema is any CUE value; a record is valid when it unifies with the
// schema and the result is concrete. Plain structs are open, so extra fields
// pass; wrap the struct in close({...}) to reject them.
package schema

import (
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	errspkg "github.com/drblury/crudflow/internal/runtime/errors"
)

// Schema is a compiled CUE value bound to the Validator that built it.
type Schema struct {
	name   string
	source string
	value  cue.Value
	owner  *Validator
}

func (s *Schema) Name() string   { return s.name }
func (s *Schema) Source() string { return s.source }

// Validator compiles and evaluates schemas. A cue.Context is not safe for
// concurrent use, so every evaluation holds mu.
type Validator struct {
	mu  sync.Mutex
	ctx *cue.Context
}

func NewValidator() *Validator {
	return &Validator{ctx: cuecontext.New()}
}

// Compile parses src. Blank sources are rejected with ErrSchemaRequired so a
// missing schema surfaces as a configuration fault.
func (v *Validator) Compile(name, src string) (*Schema, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("schema %s: %w", name, errspkg.ErrSchemaRequired)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	value := v.ctx.CompileString(src, cue.Filename(name+".cue"))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("schema %s: compile: %w", name, err)
	}
	if err := value.Validate(); err != nil {
		return nil, fmt.Errorf("schema %s: invalid: %w", name, err)
	}
	return &Schema{name: name, source: src, value: value, owner: v}, nil
}

// MustCompile is Compile for schemas known at build time.
func (v *Validator) MustCompile(name, src string) *Schema {
	s, err := v.Compile(name, src)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks rec against s. A violation is reported as
// *errors.ValidationError; any other error is a fault.
func (v *Validator) Validate(rec map[string]any, s *Schema) error {
	if s == nil {
		return errspkg.ErrSchemaRequired
	}
	if s.owner != v {
		return fmt.Errorf("schema %s was compiled by another validator", s.name)
	}
	if rec == nil {
		return errspkg.NewValidationError("Object data is missing.")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	data := v.ctx.Encode(rec)
	if err := data.Err(); err != nil {
		return errspkg.NewValidationError("Object data cannot be encoded: %v", err)
	}
	unified := s.value.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return errspkg.NewValidationError("%s", message(err))
	}
	return nil
}

// message flattens CUE errors into one line, one clause per error.
func message(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(errs))
	seen := make(map[string]struct{}, len(errs))
	for _, e := range errs {
		msg := e.Error()
		if _, dup := seen[msg]; dup {
			continue
		}
		seen[msg] = struct{}{}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}
