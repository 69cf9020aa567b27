package findings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/yourorg/arca/internal/storage"
)

// Classifier turns a findings artifact into validated records.
type Classifier struct {
	validate *validator.Validate
	logger   *slog.Logger
}

func NewClassifier(logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Classifier{validate: v, logger: logger}
}

// Load reads key from st and classifies it. A missing artifact is not an
// error: the result is empty with Missing set.
func (c *Classifier) Load(ctx context.Context, st storage.Storage, key string) (Result, error) {
	body, err := st.GetObject(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		c.logger.Info("findings artifact not found", "key", key)
		return Result{Missing: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("read findings: %w", err)
	}
	c.logger.Info("loading findings", "key", key)
	return c.decode(key, body)
}

// Decode classifies an in-memory document.
func (c *Classifier) Decode(data []byte) (Result, error) {
	return c.decode("<memory>", data)
}

func (c *Classifier) decode(source string, data []byte) (Result, error) {
	elems, err := topLevel(source, data)
	if err != nil {
		return Result{}, err
	}

	res := Result{Records: make([]RiskRecord, 0, len(elems))}
	for i, elem := range elems {
		rec, skip := c.record(i, elem)
		if skip != nil {
			c.logger.Warn("skipping invalid risk", "index", skip.Index, "code", skip.Code, "path", skip.Path, "reason", skip.Message)
			res.Skipped = append(res.Skipped, *skip)
			continue
		}
		res.Records = append(res.Records, rec)
	}
	c.logger.Info("findings classified", "valid", len(res.Records), "skipped", len(res.Skipped))
	return res, nil
}

func (c *Classifier) record(idx int, elem json.RawMessage) (RiskRecord, *SkipEvent) {
	path := fmt.Sprintf("[%d]", idx)
	if k := kindOf(elem); k != "object" {
		return RiskRecord{}, &SkipEvent{Index: idx, Code: CodeBadElement, Path: path, Message: "expected an object, got " + k}
	}
	raw, err := decodeRawRisk(elem)
	if err != nil {
		return RiskRecord{}, &SkipEvent{Index: idx, Code: CodeBadElement, Path: path, Message: err.Error()}
	}
	if err := c.validate.Struct(raw); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return RiskRecord{}, &SkipEvent{Index: idx, Code: CodeBadElement, Path: path, Message: err.Error()}
		}
		missing := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			missing = append(missing, fe.Field())
		}
		return RiskRecord{}, &SkipEvent{
			Index:   idx,
			Code:    CodeMissingField,
			Path:    path + "." + missing[0],
			Message: "missing required fields: " + strings.Join(missing, ", "),
		}
	}
	return raw.record(), nil
}

// topLevel accepts a bare array or {"results": [...]}.
func topLevel(source string, data []byte) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		var probe any
		err := json.Unmarshal(data, &probe)
		return nil, &MalformedInputError{Source: source, Reason: "invalid JSON", Err: err}
	}

	switch kindOf(data) {
	case "array":
		var elems []json.RawMessage
		if err := json.Unmarshal(data, &elems); err != nil {
			return nil, &MalformedInputError{Source: source, Reason: "decode array", Err: err}
		}
		return elems, nil
	case "object":
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, &MalformedInputError{Source: source, Reason: "decode object", Err: err}
		}
		results, ok := obj["results"]
		if !ok {
			return nil, &MalformedInputError{Source: source, Reason: `object has no "results" key`}
		}
		if k := kindOf(results); k != "array" {
			return nil, &MalformedInputError{Source: source, Reason: `"results" must be an array, got ` + k}
		}
		var elems []json.RawMessage
		if err := json.Unmarshal(results, &elems); err != nil {
			return nil, &MalformedInputError{Source: source, Reason: "decode results", Err: err}
		}
		return elems, nil
	default:
		return nil, &MalformedInputError{Source: source, Reason: "top level must be an array or an object with \"results\", got " + kindOf(data)}
	}
}

// Decode classifies data with a throwaway Classifier.
func Decode(data []byte, logger *slog.Logger) (Result, error) {
	return NewClassifier(logger).Decode(data)
}
