package toolregistry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// validator wraps a compiled schema plus the raw decoded schema document,
// which we need for default-application and scalar coercion —
// santhosh-tekuri/jsonschema validates but does not mutate the instance.
type validator struct {
	compiled *jsonschema.Schema
	raw      map[string]any
}

// Validators caches compiled validators by tool name so repeated calls to
// the same tool don't recompile its schema. The cache is clearable, per
// the tool executor's "cache is clearable" requirement.
type Validators struct {
	mu    sync.Mutex
	cache map[string]*validator
}

// NewValidators returns an empty validator cache.
func NewValidators() *Validators {
	return &Validators{cache: make(map[string]*validator)}
}

// Clear empties the cache; the next Validate for any tool recompiles.
func (v *Validators) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache = make(map[string]*validator)
}

func (v *Validators) get(toolName string, schema json.RawMessage) (*validator, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if cached, ok := v.cache[toolName]; ok {
		return cached, nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(toolName, bytes.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("toolregistry: compiling schema for %q: %w", toolName, err)
	}
	compiled, err := compiler.Compile(toolName)
	if err != nil {
		return nil, fmt.Errorf("toolregistry: compiling schema for %q: %w", toolName, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(schema, &raw); err != nil {
		return nil, fmt.Errorf("toolregistry: decoding schema for %q: %w", toolName, err)
	}

	val := &validator{compiled: compiled, raw: raw}
	v.cache[toolName] = val
	return val, nil
}

// Validate applies defaults, coerces scalar strings to their declared
// scalar type, rejects properties not named in the schema, and runs
// JSON-Schema validation. It returns the normalized parameters as a map
// ready for re-marshaling into the handler's input.
func (v *Validators) Validate(toolName string, schema json.RawMessage, params json.RawMessage) (map[string]any, error) {
	val, err := v.get(toolName, schema)
	if err != nil {
		return nil, err
	}

	var instance map[string]any
	if len(params) == 0 {
		instance = map[string]any{}
	} else if err := json.Unmarshal(params, &instance); err != nil {
		return nil, fmt.Errorf("parameters must be a JSON object: %w", err)
	}

	properties, _ := val.raw["properties"].(map[string]any)
	required, _ := val.raw["required"].([]any)

	if err := rejectUnknown(instance, properties); err != nil {
		return nil, err
	}
	applyDefaults(instance, properties)
	coerceScalars(instance, properties)

	if err := checkRequired(instance, required); err != nil {
		return nil, err
	}

	if err := val.compiled.Validate(toMapAny(instance)); err != nil {
		return nil, fmt.Errorf("parameters for %q failed schema validation: %w", toolName, err)
	}

	return instance, nil
}

func toMapAny(m map[string]any) any {
	// jsonschema/v5 expects the decoded instance, which map[string]any
	// already is; this indirection exists so future instance shapes
	// (arrays at the top level) have one conversion point.
	return m
}

func rejectUnknown(instance map[string]any, properties map[string]any) error {
	if properties == nil {
		return nil
	}
	for k := range instance {
		if _, ok := properties[k]; !ok {
			return fmt.Errorf("unknown parameter %q", k)
		}
	}
	return nil
}

func applyDefaults(instance map[string]any, properties map[string]any) {
	for name, rawSchema := range properties {
		propSchema, ok := rawSchema.(map[string]any)
		if !ok {
			continue
		}
		if _, present := instance[name]; present {
			continue
		}
		if def, ok := propSchema["default"]; ok {
			instance[name] = def
		}
	}
}

// coerceScalars converts string-typed values in instance to the scalar
// type declared for that property (number, integer, boolean) when the
// property schema names exactly one scalar type. Strings that don't parse
// are left alone so schema validation reports the real error.
func coerceScalars(instance map[string]any, properties map[string]any) {
	for name, rawSchema := range properties {
		propSchema, ok := rawSchema.(map[string]any)
		if !ok {
			continue
		}
		declared, _ := propSchema["type"].(string)
		str, isString := instance[name].(string)
		if !isString {
			continue
		}
		switch declared {
		case "integer":
			if n, err := strconv.ParseInt(str, 10, 64); err == nil {
				instance[name] = n
			}
		case "number":
			if n, err := strconv.ParseFloat(str, 64); err == nil {
				instance[name] = n
			}
		case "boolean":
			if b, err := strconv.ParseBool(str); err == nil {
				instance[name] = b
			}
		}
	}
}

func checkRequired(instance map[string]any, required []any) error {
	var missing []string
	for _, r := range required {
		name, ok := r.(string)
		if !ok {
			continue
		}
		if _, present := instance[name]; !present {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required parameters: %v", missing)
	}
	return nil
}

// validateSchemaShape enforces the registration-time constraint that a
// tool's schema declares an object type with properties.
func validateSchemaShape(schema json.RawMessage) error {
	if len(schema) == 0 {
		return fmt.Errorf("missing parameter schema")
	}
	var doc map[string]any
	if err := json.Unmarshal(schema, &doc); err != nil {
		return fmt.Errorf("parameter schema is not valid JSON: %w", err)
	}
	if t, _ := doc["type"].(string); t != "object" {
		return fmt.Errorf("parameter schema must declare type \"object\"")
	}
	if _, ok := doc["properties"]; !ok {
		return fmt.Errorf("parameter schema must declare properties")
	}
	return nil
}
