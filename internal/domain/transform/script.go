package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/target/dataio-go/internal/domain/model"
)

// ErrInvalidFlow is returned when a flow cannot be compiled into a Script.
var ErrInvalidFlow = errors.New("invalid flow")

type searcher interface {
	Search(data any) (any, error)
}

type compiledModule struct {
	name  string
	query searcher
}

// Script is a compiled flow: its modules up to and including the invocation method.
type Script struct {
	FlowID  int64
	Version int64
	modules []compiledModule
}

// Compile turns a flow into a Script. Modules after the invocation method are never run
// and are not compiled.
func Compile(flow *model.Flow) (*Script, error) {
	if flow == nil {
		return nil, fmt.Errorf("%w: nil flow", ErrInvalidFlow)
	}
	script := &Script{FlowID: flow.ID, Version: flow.Version}
	for _, m := range flow.Modules {
		src := strings.TrimSpace(m.Source)
		if src == "" {
			return nil, fmt.Errorf("%w: module %q has no source", ErrInvalidFlow, m.Name)
		}
		q, err := jmespath.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("%w: module %q: %w", ErrInvalidFlow, m.Name, err)
		}
		script.modules = append(script.modules, compiledModule{name: m.Name, query: q})
		if m.Name == flow.InvocationMethod {
			return script, nil
		}
	}
	return nil, fmt.Errorf("%w: invocation method %q not found in flow %d", ErrInvalidFlow, flow.InvocationMethod, flow.ID)
}

// Invoke pipes input through the modules in order. A panic inside a module is returned
// as an error naming that module.
func (s *Script) Invoke(input any) (out any, err error) {
	current := input
	for _, m := range s.modules {
		current, err = m.invoke(current)
		if err != nil {
			return nil, err
		}
	}
	return current, nil
}

func (m compiledModule) invoke(input any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("module %s panicked: %v", m.name, r)
		}
	}()
	out, err = m.query.Search(input)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", m.name, err)
	}
	return out, nil
}

// decodeInput turns UTF-8 item bytes into a script input. JSON documents are parsed;
// anything else is passed as a string.
func decodeInput(data []byte) any {
	var v any
	if err := json.Unmarshal(data, &v); err == nil {
		return v
	}
	return string(data)
}

// encodeOutput renders a script result. Strings are written verbatim.
func encodeOutput(v any) ([]byte, error) {
	if s, ok := v.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(v)
}
