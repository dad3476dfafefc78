package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-tsmp/pkg/errors"

	"gopkg.in/yaml.v3"
)

// Properties is the flat key/value launch configuration
//
//	PATHMON_NAME: CRD
//	SERVERCLASS_NAME: CRD-SC
//	CPUS: "{{0,1};{2,3}}"
type Properties map[string]string

// LoadPropertiesFromFile reads a YAML mapping of property names to scalar values
func LoadPropertiesFromFile(filename string) (Properties, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}
	props, err := ParseProperties(data)
	if err != nil {
		return nil, errors.NewValidationError("invalid configuration file", err).WithContext("filename", filename)
	}
	return props, nil
}

// ParseProperties parses YAML property data. Nested values are rejected.
func ParseProperties(data []byte) (Properties, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err)
	}

	props := make(Properties, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
			props[key] = ""
		case string:
			props[key] = v
		case int, int64, uint64, float64, bool:
			props[key] = fmt.Sprint(v)
		default:
			return nil, errors.NewValidationError("property value must be a scalar", nil).WithContext("key", key)
		}
	}
	return props, nil
}

// Keys returns the property names in sorted order
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (p Properties) String(key, def string) string {
	if value, ok := p[key]; ok {
		return value
	}
	return def
}

func (p Properties) Required(key string) (string, error) {
	value := strings.TrimSpace(p[key])
	if value == "" {
		return "", errors.NewValidationError(fmt.Sprintf("%s is required", key), nil)
	}
	return value, nil
}

func (p Properties) Int(key string, def int) (int, error) {
	value, ok := p[key]
	if !ok || strings.TrimSpace(value) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, errors.NewValidationError(fmt.Sprintf("%s must be a number", key), err).WithContext("value", value)
	}
	return n, nil
}
