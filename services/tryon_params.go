package services

import (
	"tryonapi/models"
)

const (
	TryOnProcedure     = "tryon"
	GarmentDescription = "clothing"
	TryOnDenoiseSteps  = 30
	TryOnSeed          = 42
)

// BuildTryOnParams assembles the fixed parameter set of the try-on procedure.
// It has no side effects and cannot fail.
func BuildTryOnParams(user, garment models.ResolvedPayload) models.InferenceCallParams {
	return models.InferenceCallParams{
		Subject: models.SubjectImage{
			Background: user,
			Layers:     []models.ResolvedPayload{},
			Composite:  nil,
		},
		Garment:            garment,
		GarmentDescription: GarmentDescription,
		IsChecked:          true,
		IsCheckedCrop:      false,
		DenoiseSteps:       TryOnDenoiseSteps,
		Seed:               TryOnSeed,
	}
}
