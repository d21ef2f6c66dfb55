package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/talgya/tilecity/internal/city"
)

const goalSchemaSrc = `{
  "type": "object",
  "required": ["description", "targetType", "targetValue", "reward"],
  "properties": {
    "description": {"type": "string", "minLength": 5, "maxLength": 150},
    "targetType": {"enum": ["money", "population", "building_count"]},
    "targetValue": {"type": "integer", "minimum": 1},
    "buildingType": {"enum": ["road", "residential", "commercial", "industrial", "park", null]},
    "reward": {"type": "integer", "minimum": 1}
  },
  "if": {"properties": {"targetType": {"const": "building_count"}}},
  "then": {"required": ["buildingType"], "properties": {"buildingType": {"type": "string"}}},
  "else": {"properties": {"buildingType": {"type": "null"}}}
}`

const newsSchemaSrc = `{
  "type": "object",
  "required": ["text", "type"],
  "properties": {
    "text": {"type": "string", "minLength": 5, "maxLength": 100},
    "type": {"enum": ["positive", "negative", "neutral"]}
  }
}`

var (
	goalSchema = mustCompile("goal.schema.json", goalSchemaSrc)
	newsSchema = mustCompile("news.schema.json", newsSchemaSrc)
)

func mustCompile(name, src string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(name, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}
	s, err := c.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}
	return s
}

// ValidationError reports a response that broke its contract. Callers treat it
// as "nothing produced" and only log it.
type ValidationError struct {
	Contract string
	Raw      string
	Err      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s response invalid: %v", e.Contract, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Headline is a validated news response.
type Headline struct {
	Text string        `json:"text"`
	Type city.NewsType `json:"type"`
}

type goalWire struct {
	Description  string  `json:"description"`
	TargetType   string  `json:"targetType"`
	TargetValue  int     `json:"targetValue"`
	BuildingType *string `json:"buildingType"`
	Reward       int     `json:"reward"`
}

// ParseGoal extracts and validates a goal from a raw completion.
func ParseGoal(raw string) (*city.Goal, error) {
	obj, err := validateObject("goal", goalSchema, raw)
	if err != nil {
		return nil, err
	}
	var w goalWire
	if err := json.Unmarshal(obj, &w); err != nil {
		return nil, &ValidationError{Contract: "goal", Raw: raw, Err: err}
	}

	goal := &city.Goal{
		Description: w.Description,
		TargetType:  city.TargetType(w.TargetType),
		TargetValue: w.TargetValue,
		Reward:      w.Reward,
	}
	if w.BuildingType != nil {
		b, err := city.ParseBuildingType(*w.BuildingType)
		if err != nil {
			return nil, &ValidationError{Contract: "goal", Raw: raw, Err: err}
		}
		goal.BuildingType = &b
	}
	if err := goal.Check(); err != nil {
		return nil, &ValidationError{Contract: "goal", Raw: raw, Err: err}
	}
	return goal, nil
}

// ParseHeadline extracts and validates a news item from a raw completion.
func ParseHeadline(raw string) (*Headline, error) {
	obj, err := validateObject("news", newsSchema, raw)
	if err != nil {
		return nil, err
	}
	var h Headline
	if err := json.Unmarshal(obj, &h); err != nil {
		return nil, &ValidationError{Contract: "news", Raw: raw, Err: err}
	}
	return &h, nil
}

func validateObject(contract string, schema *jsonschema.Schema, raw string) ([]byte, error) {
	obj, err := extractObject(raw)
	if err != nil {
		return nil, &ValidationError{Contract: contract, Raw: raw, Err: err}
	}
	dec := json.NewDecoder(bytes.NewReader(obj))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &ValidationError{Contract: contract, Raw: raw, Err: err}
	}
	if err := schema.Validate(v); err != nil {
		return nil, &ValidationError{Contract: contract, Raw: raw, Err: err}
	}
	return obj, nil
}

// extractObject strips markdown fences and returns the outermost JSON object.
func extractObject(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	return []byte(s[start : end+1]), nil
}
