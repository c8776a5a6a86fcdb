package service

import (
	"strings"

	"github.com/noah-isme/edugen-studio/internal/models"
)

// BuildGenerationRequest freezes a validated form into the request sent upstream.
// It does not validate; callers go through FormService.Submit first.
func BuildGenerationRequest(input models.FormInput) models.GenerationRequest {
	return models.GenerationRequest{
		Subject:      strings.TrimSpace(input.Subject),
		GradeLevel:   input.GradeLevel,
		ContentTypes: input.ContentTypes.Clone(),
		Difficulty:   input.Difficulty,
		Quantity:     input.Quantity,
	}
}
