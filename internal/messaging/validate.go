package messaging

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrMalformed classifies a message that must be dropped without redelivery.
var ErrMalformed = errors.New("malformed message")

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	schemasOnce sync.Once
	schemas     map[PayloadType]*jsonschema.Schema
	schemasErr  error
)

func compileSchemas() (map[PayloadType]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		compiled := make(map[PayloadType]*jsonschema.Schema, 4)
		compiler := jsonschema.NewCompiler()
		for _, pt := range []PayloadType{PayloadNewJob, PayloadChunk, PayloadChunkResult, PayloadSinkChunkResult} {
			name := "schemas/" + string(pt) + ".json"
			b, err := schemaFS.ReadFile(name)
			if err != nil {
				schemasErr = fmt.Errorf("read schema %s: %w", name, err)
				return
			}
			if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
				schemasErr = fmt.Errorf("add schema %s: %w", name, err)
				return
			}
			s, err := compiler.Compile(name)
			if err != nil {
				schemasErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			compiled[pt] = s
		}
		schemas = compiled
	})
	return schemas, schemasErr
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// Validate classifies env. Any returned error wraps ErrMalformed, except a failure to
// load the embedded schemas, which is a programming error.
func Validate(env *Envelope) error {
	switch {
	case env == nil:
		return malformed("nil envelope")
	case env.Kind != KindJSON:
		return malformed("unexpected kind %q", env.Kind)
	case len(bytes.TrimSpace(env.Body)) == 0:
		return malformed("empty body")
	case bytes.Equal(bytes.TrimSpace(env.Body), []byte("null")), bytes.Equal(bytes.TrimSpace(env.Body), []byte(`""`)):
		return malformed("null body")
	case !env.Headers.PayloadType.Known():
		return malformed("unknown payload type %q", env.Headers.PayloadType)
	}

	var doc any
	if err := json.Unmarshal(env.Body, &doc); err != nil {
		return malformed("body is not JSON: %v", err)
	}

	compiled, err := compileSchemas()
	if err != nil {
		return err
	}
	if err := compiled[env.Headers.PayloadType].Validate(doc); err != nil {
		return malformed("%s body does not match schema: %v", env.Headers.PayloadType, err)
	}
	return nil
}

// Decode unmarshals the body of a validated message. Failures are malformed.
func Decode[T any](msg *Message) (T, error) {
	var v T
	if msg == nil {
		return v, malformed("nil message")
	}
	if err := json.Unmarshal(msg.Body, &v); err != nil {
		return v, malformed("decode %s: %v", msg.Headers.PayloadType, err)
	}
	return v, nil
}
