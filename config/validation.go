package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/grovetools/devdash/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	compiledOnce   sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func compiled() (*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		data, err := GenerateSchema()
		if err != nil {
			compileErr = fmt.Errorf("failed to generate config schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("devdash.json", bytes.NewReader(data)); err != nil {
			compileErr = fmt.Errorf("failed to add config schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("devdash.json")
	})
	return compiledSchema, compileErr
}

// Validate checks cfg against the generated JSON Schema, then checks the
// rules a schema cannot express.
func Validate(cfg *Config) error {
	schema, err := compiled()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to create validator")
	}

	jsonData, err := json.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to marshal config for validation")
	}
	var doc interface{}
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to unmarshal config for validation")
	}

	if err := schema.Validate(doc); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			var messages []string
			collectErrors(validationErr, &messages)
			return errors.ConfigInvalid("schema validation failed:\n" + strings.Join(messages, "\n"))
		}
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "schema validation failed")
	}

	return validateSemantics(cfg)
}

func collectErrors(err *jsonschema.ValidationError, messages *[]string) {
	if err.InstanceLocation != "" || len(err.Causes) == 0 {
		*messages = append(*messages, fmt.Sprintf("- %s: %s", err.InstanceLocation, err.Message))
	}
	for _, cause := range err.Causes {
		collectErrors(cause, messages)
	}
}

func validateSemantics(cfg *Config) error {
	if cfg.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
			return errors.ConfigInvalid(fmt.Sprintf("listen %q is not host:port", cfg.Listen))
		}
	}
	for name, port := range cfg.Ports {
		if port < 1 || port > 65535 {
			return errors.ConfigInvalid(fmt.Sprintf("port %d for project %q is out of range", port, name))
		}
	}
	return nil
}
