package services

import (
	"testing"

	"tryonapi/models"
	"tryonapi/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTryOnParams(t *testing.T) {
	user := models.ResolvedPayload{Data: test.PNGPixel, MimeType: "image/png", Name: "me.png"}
	garment := models.ResolvedPayload{Data: []byte("garment"), MimeType: "image/jpeg", Name: "dress.jpg"}

	params := BuildTryOnParams(user, garment)

	assert.Equal(t, user, params.Subject.Background)
	require.NotNil(t, params.Subject.Layers)
	assert.Empty(t, params.Subject.Layers)
	assert.Nil(t, params.Subject.Composite)
	assert.Equal(t, garment, params.Garment)
	assert.Equal(t, "clothing", params.GarmentDescription)
	assert.True(t, params.IsChecked)
	assert.False(t, params.IsCheckedCrop)
	assert.Equal(t, 30, params.DenoiseSteps)
	assert.Equal(t, 42, params.Seed)
}

func TestBuildTryOnParamsIsDeterministic(t *testing.T) {
	user := models.ResolvedPayload{Data: test.PNGPixel, MimeType: "image/png", Name: "me.png"}
	garment := models.ResolvedPayload{Data: test.PNGPixel, MimeType: "image/png", Name: "shirt.png"}

	assert.Equal(t, BuildTryOnParams(user, garment), BuildTryOnParams(user, garment))
	// inputs are left as they were
	assert.Equal(t, "me.png", user.Name)
	assert.Equal(t, test.PNGPixel, garment.Data)
}

func TestTryOnParamsJSONShape(t *testing.T) {
	params := BuildTryOnParams(
		models.ResolvedPayload{Data: test.PNGPixel, MimeType: "image/png", Name: "me.png"},
		models.ResolvedPayload{Data: test.PNGPixel, MimeType: "image/png", Name: "shirt.png"},
	)

	assert.JSONEq(t, `{
		"dict": {"background": {"mime_type": "image/png", "name": "me.png"}, "layers": [], "composite": null},
		"garm_img": {"mime_type": "image/png", "name": "shirt.png"},
		"garment_des": "clothing",
		"is_checked": true,
		"is_checked_crop": false,
		"denoise_steps": 30,
		"seed": 42
	}`, test.JsonString(params))
}
