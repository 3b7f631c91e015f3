package models

// SubjectImage mirrors the image-editor value the try-on space expects for the
// person photo. Layers and Composite are never filled, the remote API only
// requires them to be present.
type SubjectImage struct {
	Background ResolvedPayload   `json:"background"`
	Layers     []ResolvedPayload `json:"layers"`
	Composite  *ResolvedPayload  `json:"composite"`
}

// InferenceCallParams is the fixed-shape payload of the "tryon" procedure.
type InferenceCallParams struct {
	Subject            SubjectImage    `json:"dict"`
	Garment            ResolvedPayload `json:"garm_img"`
	GarmentDescription string          `json:"garment_des"`
	IsChecked          bool            `json:"is_checked"`
	IsCheckedCrop      bool            `json:"is_checked_crop"`
	DenoiseSteps       int             `json:"denoise_steps"`
	Seed               int             `json:"seed"`
}

// OutputEntry is one element of the remote result. Only the location fields
// are read, everything else the provider sends is ignored.
type OutputEntry struct {
	URL  *string `json:"url,omitempty"`
	Path *string `json:"path,omitempty"`
}

// InferenceResult is the ordered list of outputs of a finished remote job.
type InferenceResult struct {
	Entries []OutputEntry `json:"data"`
	// Duration of the remote job in seconds, as observed by the gateway.
	Duration float64 `json:"duration"`
}
