package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const fileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "map": {
      "type": "object",
      "properties": {
        "channels": {
          "type": "array",
          "items": {"type": "integer", "minimum": 0}
        }
      }
    },
    "universe": {
      "type": "object",
      "properties": {
        "channel_count": {"type": "integer", "minimum": 1, "maximum": 512},
        "input": {"type": "integer", "minimum": 0, "maximum": 32767},
        "output": {"type": "integer", "minimum": 0, "maximum": 32767}
      }
    },
    "transport": {
      "type": "object",
      "properties": {
        "kind": {"enum": ["artnet", "mqtt"]}
      }
    },
    "artnet": {
      "type": "object",
      "properties": {
        "network": {"type": "string"},
        "listen": {"type": "string"},
        "target": {"type": "string"}
      }
    },
    "mqtt": {
      "type": "object",
      "properties": {
        "clientID": {"type": "string"},
        "server": {"type": "string"},
        "port": {"type": "string"},
        "user": {"type": "string"},
        "password": {"type": "string"},
        "qos": {"type": "integer", "minimum": 0, "maximum": 2},
        "topic": {"type": "string"},
        "encoding": {"enum": ["json", "cbor"]}
      }
    },
    "logger": {
      "type": "object",
      "properties": {
        "log-level": {"type": "string"},
        "format": {"enum": ["text", "json"]}
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(fileSchema)

// validateSchemaBytes checks a raw JSON document.
func validateSchemaBytes(data []byte) error {
	return validate(gojsonschema.NewBytesLoader(data))
}

// validateSchema checks an already decoded document, e.g. from TOML.
func validateSchema(doc map[string]interface{}) error {
	return validate(gojsonschema.NewGoLoader(doc))
}

func validate(doc gojsonschema.JSONLoader) error {
	result, err := gojsonschema.Validate(schemaLoader, doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(details, "; "))
}
