package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/suPer8Hu/coursegen/internal/course"
)

// ValidationError reports the first constraint a generated document violated.
type ValidationError struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
	Param      string `json:"param,omitempty"`
	Message    string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Syllabus decodes a generated syllabus and enforces field bounds plus the
// module/topic counts fixed by depth.
func Syllabus(raw map[string]any, depth int) (*course.SyllabusDraft, error) {
	st, err := StructureForDepth(depth)
	if err != nil {
		return nil, err
	}

	var draft course.SyllabusDraft
	if err := decode(raw, &draft); err != nil {
		return nil, err
	}

	if n := len(draft.Modules); n < st.MinModules || n > st.MaxModules {
		return nil, &ValidationError{
			Field:      "modules",
			Constraint: "count",
			Param:      span(st.MinModules, st.MaxModules),
			Message:    fmt.Sprintf("must contain %s items for depth %d, got %d", span(st.MinModules, st.MaxModules), depth, n),
		}
	}
	for i, m := range draft.Modules {
		if n := len(m.Topics); n < st.MinTopics || n > st.MaxTopics {
			return nil, &ValidationError{
				Field:      fmt.Sprintf("modules[%d].topics", i),
				Constraint: "count",
				Param:      span(st.MinTopics, st.MaxTopics),
				Message:    fmt.Sprintf("must contain %s items for depth %d, got %d", span(st.MinTopics, st.MaxTopics), depth, n),
			}
		}
	}

	if err := check(&draft); err != nil {
		return nil, err
	}
	return &draft, nil
}

// Content decodes and checks one generated content item.
func Content(raw map[string]any) (*course.GeneratedContent, error) {
	var gc course.GeneratedContent
	if err := decode(raw, &gc); err != nil {
		return nil, err
	}
	if err := check(&gc); err != nil {
		return nil, err
	}
	return &gc, nil
}

func decode(raw map[string]any, out any) error {
	if raw == nil {
		return &ValidationError{Constraint: "required", Message: "document is empty"}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return &ValidationError{Constraint: "json", Message: err.Error()}
	}
	if err := json.Unmarshal(b, out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &ValidationError{
				Field:      typeErr.Field,
				Constraint: "type",
				Param:      typeErr.Type.String(),
				Message:    fmt.Sprintf("must be of type %s, got %s", typeErr.Type, typeErr.Value),
			}
		}
		return &ValidationError{Constraint: "json", Message: err.Error()}
	}
	return nil
}

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Constraint: "invalid", Message: err.Error()}
	}
	fe := fieldErrs[0]
	return &ValidationError{
		Field:      fieldPath(fe.Namespace()),
		Constraint: fe.Tag(),
		Param:      fe.Param(),
		Message:    describe(fe),
	}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	unit := "characters"
	switch fe.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		unit = "items"
	}
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("must contain at least %s %s", fe.Param(), unit)
	case "max":
		return fmt.Sprintf("must contain at most %s %s", fe.Param(), unit)
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return fmt.Sprintf("failed %q constraint", fe.Tag())
	}
}
