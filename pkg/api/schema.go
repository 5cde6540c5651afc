package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MaxBodyBytes caps request bodies read by DecodeValid.
const MaxBodyBytes = 64 << 10

// Schemas is a set of compiled JSON Schemas keyed by name.
type Schemas struct {
	compiled map[string]*jsonschema.Schema
}

// CompileSchemas compiles every schema source. Sources are Draft 2020-12.
func CompileSchemas(sources map[string]string) (*Schemas, error) {
	s := &Schemas{compiled: make(map[string]*jsonschema.Schema, len(sources))}
	for name, src := range sources {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://sita.example/schemas/%s.schema.json", name)
		if err := c.AddResource(url, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("schema %s load failed: %w", name, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("schema %s compile failed: %w", name, err)
		}
		s.compiled[name] = compiled
	}
	return s, nil
}

// Validate checks raw JSON against the named schema.
func (s *Schemas) Validate(name string, raw []byte) error {
	schema, ok := s.compiled[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return schema.Validate(doc)
}

// DecodeValid reads the request body, validates it against the named schema
// and decodes it into dst. On failure it writes a 400 problem and returns
// false.
func (s *Schemas) DecodeValid(w http.ResponseWriter, r *http.Request, name string, dst any) bool {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			WriteErrorR(w, r, http.StatusRequestEntityTooLarge, "Payload Too Large", "request body exceeds limit")
			return false
		}
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "could not read request body")
		return false
	}
	if err := s.Validate(name, raw); err != nil {
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", err.Error())
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", err.Error())
		return false
	}
	return true
}
