package services

import (
	"tryonapi/models"
)

// ExtractResultLocation returns the location of the first generated image,
// preferring its url over its path.
func ExtractResultLocation(result *models.InferenceResult) (string, error) {
	if result == nil || len(result.Entries) == 0 {
		return "", &ExtractionError{Kind: EmptyResult, Message: "Empty result from VTON API"}
	}

	first := result.Entries[0]
	if first.URL != nil && *first.URL != "" {
		return *first.URL, nil
	}
	if first.Path != nil && *first.Path != "" {
		return *first.Path, nil
	}
	return "", &ExtractionError{Kind: MissingLocation, Message: "No result URL found in API response"}
}
