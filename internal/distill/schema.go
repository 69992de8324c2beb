package distill

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed distillation.schema.json
var schemaJSON []byte

// ErrSchema marks model output that parsed as JSON but violated the
// distillation contract.
var ErrSchema = errors.New("distillation schema violation")

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("distillation.schema.json", bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("distillation.schema.json")
	})
	return schema, schemaErr
}

// Citation links a claim in the distillation back to one of the cluster's
// sources.
type Citation struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

// Distillation is the model's validated summary of one cluster.
type Distillation struct {
	Headline   string     `json:"headline"`
	Teaser     string     `json:"teaser"`
	Takeaway   string     `json:"takeaway"`
	WhyCare    string     `json:"why_care,omitempty"`
	Bullets    []string   `json:"bullets"`
	Citations  []Citation `json:"citations"`
	Confidence string     `json:"confidence"`
}

// ParseDistillation validates raw model output against the embedded JSON
// schema and decodes it. Any deviation is an error; the caller treats a
// failed parse like a failed generation and retries or drops the cluster.
func ParseDistillation(raw string) (*Distillation, error) {
	var doc any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding distillation: %w", err)
	}

	s, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling distillation schema: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	var d Distillation
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("unmarshaling distillation: %w", err)
	}
	return &d, nil
}
