package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FlowModule is one named transform script of a flow.
type FlowModule struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

// Flow is an ordered set of script modules plus the module name to invoke per item.
// Items pass through the modules in order until the invocation module has run.
type Flow struct {
	ID               int64        `json:"id"                db:"id"`
	Name             string       `json:"name"              db:"name"`
	Version          int64        `json:"version"           db:"version"`
	Modules          []FlowModule `json:"modules"           db:"modules"`
	InvocationMethod string       `json:"invocation_method" db:"invocation_method"`
	CreatedAt        time.Time    `json:"created_at"        db:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"        db:"updated_at"`
}

// FlowRequest creates or replaces a flow definition.
type FlowRequest struct {
	Name             string       `json:"name"`
	Modules          []FlowModule `json:"modules"`
	InvocationMethod string       `json:"invocation_method"`
}

// Validate checks that module names are unique and the invocation method names one of them.
func (r *FlowRequest) Validate() error {
	if r == nil {
		return errors.New("flow request is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if len(r.Modules) == 0 {
		return errors.New("at least one module is required")
	}
	seen := make(map[string]struct{}, len(r.Modules))
	for i, m := range r.Modules {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("module %d: name is required", i)
		}
		if _, dup := seen[m.Name]; dup {
			return fmt.Errorf("duplicate module %q", m.Name)
		}
		seen[m.Name] = struct{}{}
	}
	if _, ok := seen[r.InvocationMethod]; !ok {
		return fmt.Errorf("invocation method %q does not name a module", r.InvocationMethod)
	}
	return nil
}
