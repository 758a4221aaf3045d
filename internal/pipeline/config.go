// Package pipeline executes user-declared DAGs of search steps. Configs
// are validated up front, layered into batches and run with intra-batch
// concurrency.
package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"litgate/internal/core"
)

var nameSafeRe = regexp.MustCompile(`[^a-z0-9._-]+`)

// LoadConfig reads a pipeline config from a YAML file and validates it.
// Unknown keys anywhere in the document are rejected.
func LoadConfig(path string) (*core.PipelineConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, core.WrapError(core.KindInvalidInput, "failed to open pipeline file", err)
	}
	defer func() { _ = f.Close() }()
	return ParseConfig(f)
}

// ParseConfig decodes and validates a YAML pipeline config. Decoding is
// strict: a misspelled or unknown key fails instead of being silently
// dropped.
func ParseConfig(r io.Reader) (*core.PipelineConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg core.PipelineConfig
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, core.NewError(core.KindInvalidInput, "pipeline file is empty")
		}
		return nil, core.WrapError(core.KindInvalidInput, "invalid pipeline yaml", err)
	}

	cfg.Name = SafeName(cfg.Name)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MarshalConfig renders a config back to YAML. ParseConfig on the output
// yields an equivalent config.
func MarshalConfig(cfg *core.PipelineConfig) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode pipeline: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SafeName lowercases a pipeline name and squeezes anything unsafe for a
// filename into single hyphens.
func SafeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = nameSafeRe.ReplaceAllString(name, "-")
	return strings.Trim(name, "-")
}
