package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"exam-engine/internal/domain"

	"github.com/go-playground/validator/v10"
)

// Validator checks request payloads against their `validate` struct tags and
// reports failures as domain.ValidationErrors keyed by JSON field path.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("exam_type", func(fl validator.FieldLevel) bool {
		return domain.ExamType(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("section_type", func(fl validator.FieldLevel) bool {
		return domain.SectionType(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		return domain.QuestionType(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("attempt_mode", func(fl validator.FieldLevel) bool {
		return domain.AttemptMode(fl.Field().String()).Valid()
	})

	return &Validator{validate: validate}
}

// Validate returns nil when s is valid.
func (v *Validator) Validate(s interface{}) domain.ValidationErrors {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return domain.ValidationErrors{{Field: "body", Message: err.Error()}}
	}

	out := make(domain.ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, domain.ValidationError{
			Field:   fieldPath(fe.Namespace()),
			Message: message(fe),
			Value:   fe.Value(),
		})
	}
	return out
}

// fieldPath drops the root struct name: "ImportExamRequest.sections[0].title" -> "sections[0].title".
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i != -1 {
		return namespace[i+1:]
	}
	return namespace
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt", "gte":
		return fmt.Sprintf("must be %s %s", map[string]string{"gt": "greater than", "gte": "at least"}[fe.Tag()], fe.Param())
	case "exam_type":
		return "must be one of IELTS, TOEIC, GENERAL"
	case "section_type":
		return "must be one of LISTENING, READING, WRITING, SPEAKING, GENERAL"
	case "question_type":
		return "must be a valid question type"
	case "attempt_mode":
		return "must be FULL or SECTION"
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	default:
		return fmt.Sprintf("validation failed for rule '%s'", fe.Tag())
	}
}
