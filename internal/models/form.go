package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// GradeLevel enumerates the audiences content can be generated for.
type GradeLevel string

const (
	GradePrimary         GradeLevel = "primary"
	GradeLowerSecondary  GradeLevel = "lowerSecondary"
	GradeUpperSecondary  GradeLevel = "upperSecondary"
	GradeHigherEducation GradeLevel = "higherEducation"
)

// GradeLevels lists every accepted grade level in display order.
var GradeLevels = []GradeLevel{GradePrimary, GradeLowerSecondary, GradeUpperSecondary, GradeHigherEducation}

// Valid reports whether g is one of the enumerated grade levels.
func (g GradeLevel) Valid() bool {
	for _, level := range GradeLevels {
		if g == level {
			return true
		}
	}
	return false
}

// Form limits.
const (
	MinDifficulty     = 1
	MaxDifficulty     = 10
	DefaultDifficulty = 5
	MinQuantity       = 1
	MaxQuantity       = 5
	DefaultQuantity   = 3
	// MaxTotalItems caps selected types × quantity for one request.
	MaxTotalItems = 5
)

// ContentTypeSet records which content types are selected.
type ContentTypeSet map[ContentType]bool

// NewContentTypeSet selects the given tags.
func NewContentTypeSet(tags ...ContentType) ContentTypeSet {
	set := make(ContentTypeSet, len(tags))
	for _, tag := range tags {
		set[tag] = true
	}
	return set
}

// Selected returns the selected known tags in canonical order.
func (s ContentTypeSet) Selected() []ContentType {
	out := make([]ContentType, 0, len(s))
	for _, tag := range KnownContentTypes {
		if s[tag] {
			out = append(out, tag)
		}
	}
	return out
}

// Count is the number of selected known tags.
func (s ContentTypeSet) Count() int {
	return len(s.Selected())
}

// Clone returns an independent copy holding only selected known tags.
func (s ContentTypeSet) Clone() ContentTypeSet {
	return NewContentTypeSet(s.Selected()...)
}

// MarshalJSON always writes all five tags, matching the backend contract.
func (s ContentTypeSet) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, tag := range KnownContentTypes {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%q:%t", tag, s[tag])
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// UnmarshalJSON accepts either a tag→bool mapping or a list of tags.
func (s *ContentTypeSet) UnmarshalJSON(data []byte) error {
	var mapping map[ContentType]bool
	if err := json.Unmarshal(data, &mapping); err == nil {
		set := make(ContentTypeSet, len(mapping))
		for tag, on := range mapping {
			if on {
				set[tag] = true
			}
		}
		*s = set
		return nil
	}
	var list []ContentType
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("contentTypes must be a mapping or a list of tags")
	}
	*s = NewContentTypeSet(list...)
	return nil
}

// FormInput is the editable generation form.
type FormInput struct {
	Subject      string         `json:"subject" validate:"trimmed_required"`
	GradeLevel   GradeLevel     `json:"gradeLevel" validate:"grade_level"`
	ContentTypes ContentTypeSet `json:"contentTypes" validate:"content_selection"`
	Difficulty   int            `json:"difficulty" validate:"min=1,max=10"`
	Quantity     int            `json:"quantity" validate:"min=1,max=5"`
}

// DefaultFormInput is the form as first shown.
func DefaultFormInput() FormInput {
	return FormInput{
		ContentTypes: ContentTypeSet{},
		Difficulty:   DefaultDifficulty,
		Quantity:     DefaultQuantity,
	}
}

// TotalItems is selected types × quantity.
func (f FormInput) TotalItems() int {
	return f.ContentTypes.Count() * f.Quantity
}

// FormState is the form plus its parallel error mapping and submission flags.
type FormState struct {
	Input        FormInput         `json:"input"`
	Errors       map[string]string `json:"errors"`
	QuotaWarning bool              `json:"quotaWarning"`
	Submitting   bool              `json:"submitting"`
}

// NewFormState returns a pristine form.
func NewFormState() FormState {
	return FormState{Input: DefaultFormInput(), Errors: map[string]string{}}
}

// GenerationRequest is the frozen snapshot sent to the generation service.
type GenerationRequest struct {
	Subject      string         `json:"subject"`
	GradeLevel   GradeLevel     `json:"gradeLevel"`
	ContentTypes ContentTypeSet `json:"contentTypes"`
	Difficulty   int            `json:"difficulty"`
	Quantity     int            `json:"quantity"`
}
