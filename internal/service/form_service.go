package service

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edugen-studio/internal/models"
	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
)

// Field names accepted by the form reducer besides the content tags.
const (
	FieldSubject      = "subject"
	FieldGradeLevel   = "gradeLevel"
	FieldContentTypes = "contentTypes"
	FieldDifficulty   = "difficulty"
	FieldQuantity     = "quantity"
)

var fieldMessages = map[string]string{
	FieldSubject:      "required",
	FieldGradeLevel:   "required",
	FieldContentTypes: "select at least one",
	FieldDifficulty:   fmt.Sprintf("must be between %d and %d", models.MinDifficulty, models.MaxDifficulty),
	FieldQuantity:     fmt.Sprintf("must be between %d and %d", models.MinQuantity, models.MaxQuantity),
}

// FieldChange is a single edit to the form.
type FieldChange struct {
	Field string          `json:"field" binding:"required"`
	Value json.RawMessage `json:"value"`
}

type fieldReducer func(models.FormInput, json.RawMessage) (models.FormInput, error)

var fieldReducers = map[string]fieldReducer{
	FieldSubject: func(in models.FormInput, raw json.RawMessage) (models.FormInput, error) {
		var subject string
		if err := json.Unmarshal(raw, &subject); err != nil {
			return in, fmt.Errorf("subject must be text")
		}
		in.Subject = subject
		return in, nil
	},
	FieldGradeLevel: func(in models.FormInput, raw json.RawMessage) (models.FormInput, error) {
		var level string
		if err := json.Unmarshal(raw, &level); err != nil {
			return in, fmt.Errorf("gradeLevel must be text")
		}
		in.GradeLevel = models.GradeLevel(level)
		return in, nil
	},
	FieldContentTypes: func(in models.FormInput, raw json.RawMessage) (models.FormInput, error) {
		var set models.ContentTypeSet
		if err := json.Unmarshal(raw, &set); err != nil {
			return in, err
		}
		in.ContentTypes = set.Clone()
		return in, nil
	},
	FieldDifficulty: func(in models.FormInput, raw json.RawMessage) (models.FormInput, error) {
		n, err := parseBoundedInt(raw, models.MinDifficulty, models.MaxDifficulty)
		if err != nil {
			return in, err
		}
		in.Difficulty = n
		return in, nil
	},
	FieldQuantity: func(in models.FormInput, raw json.RawMessage) (models.FormInput, error) {
		n, err := parseBoundedInt(raw, models.MinQuantity, models.MaxQuantity)
		if err != nil {
			return in, err
		}
		in.Quantity = n
		return in, nil
	},
}

// FormService validates the generation form and applies edits to it.
// Its transitions are pure: they return a new FormState and never mutate the input.
type FormService struct {
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFormService creates a form service, registering the form's custom rules on validate.
func NewFormService(validate *validator.Validate, logger *zap.Logger) *FormService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = validate.RegisterValidation("trimmed_required", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = validate.RegisterValidation("grade_level", func(fl validator.FieldLevel) bool {
		return models.GradeLevel(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("content_selection", func(fl validator.FieldLevel) bool {
		set, ok := fl.Field().Interface().(models.ContentTypeSet)
		return ok && set.Count() > 0
	}, true)
	return &FormService{validator: validate, logger: logger}
}

// Validate returns every field error at once; an empty map means the input is valid.
func (s *FormService) Validate(input models.FormInput) map[string]string {
	errs := map[string]string{}
	err := s.validator.Struct(input)
	if err == nil {
		return errs
	}
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		s.logger.Warn("form validation could not run", zap.Error(err))
		errs[FieldSubject] = fieldMessages[FieldSubject]
		return errs
	}
	for _, fe := range validationErrs {
		field := fe.Field()
		if msg, known := fieldMessages[field]; known {
			errs[field] = msg
			continue
		}
		errs[field] = fe.Tag()
	}
	return errs
}

// ApplyFieldChange applies one field change. Content tags toggle selection with a boolean value.
// The edited field's error is cleared; an invalid value leaves the state untouched.
func (s *FormService) ApplyFieldChange(state models.FormState, change FieldChange) (models.FormState, error) {
	next := cloneFormState(state)
	field := strings.TrimSpace(change.Field)

	var (
		err        error
		errorField = field
	)
	if reducer, ok := fieldReducers[field]; ok {
		next.Input, err = reducer(next.Input, change.Value)
	} else if tag := models.ContentType(field); tag.Known() {
		errorField = FieldContentTypes
		var on bool
		if err = json.Unmarshal(change.Value, &on); err != nil {
			err = fmt.Errorf("%s must be true or false", field)
		} else {
			next.Input.ContentTypes[tag] = on
			if !on {
				delete(next.Input.ContentTypes, tag)
			}
		}
	} else {
		return state, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown form field %q", field))
	}
	if err != nil {
		return state, appErrors.WithFields(
			appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid form value"),
			map[string]string{errorField: err.Error()},
		)
	}

	delete(next.Errors, errorField)
	return next, nil
}

// Replace swaps the whole input, clearing the errors of fields that changed.
func (s *FormService) Replace(state models.FormState, input models.FormInput) models.FormState {
	next := cloneFormState(state)
	if input.ContentTypes == nil {
		input.ContentTypes = models.ContentTypeSet{}
	}
	input.ContentTypes = input.ContentTypes.Clone()
	if input.Subject != state.Input.Subject {
		delete(next.Errors, FieldSubject)
	}
	if input.GradeLevel != state.Input.GradeLevel {
		delete(next.Errors, FieldGradeLevel)
	}
	if !reflect.DeepEqual(input.ContentTypes.Selected(), state.Input.ContentTypes.Selected()) {
		delete(next.Errors, FieldContentTypes)
	}
	if input.Difficulty != state.Input.Difficulty {
		delete(next.Errors, FieldDifficulty)
	}
	if input.Quantity != state.Input.Quantity {
		delete(next.Errors, FieldQuantity)
	}
	next.Input = input
	return next
}

// Submit validates the form and enforces the item quota. On success it returns the frozen request.
// Field errors block submission; passing validation clears any standing quota warning, which
// is raised again when selected types × quantity exceeds the cap.
func (s *FormService) Submit(state models.FormState) (models.FormState, *models.GenerationRequest, error) {
	next := cloneFormState(state)
	errs := s.Validate(next.Input)
	if len(errs) > 0 {
		next.Errors = errs
		return next, nil, appErrors.WithFields(appErrors.ErrValidation, errs)
	}
	next.Errors = map[string]string{}
	next.QuotaWarning = false

	if total := next.Input.TotalItems(); total > models.MaxTotalItems {
		next.QuotaWarning = true
		s.logger.Debug("submission refused by quota", zap.Int("total_items", total))
		return next, nil, appErrors.ErrQuotaExceeded
	}

	req := BuildGenerationRequest(next.Input)
	return next, &req, nil
}

func cloneFormState(state models.FormState) models.FormState {
	next := state
	next.Errors = make(map[string]string, len(state.Errors))
	for k, v := range state.Errors {
		next.Errors[k] = v
	}
	next.Input.ContentTypes = make(models.ContentTypeSet, len(state.Input.ContentTypes))
	for k, v := range state.Input.ContentTypes {
		next.Input.ContentTypes[k] = v
	}
	return next
}

// parseBoundedInt accepts a JSON number or a numeric string, as range inputs send.
func parseBoundedInt(raw json.RawMessage, min, max int) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, fmt.Errorf("must be a number")
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return 0, fmt.Errorf("must be a number")
		}
		n = parsed
	}
	if n < min || n > max {
		return 0, fmt.Errorf("must be between %d and %d", min, max)
	}
	return n, nil
}
