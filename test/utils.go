package test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"tryonapi/models"
)

// A 1x1 transparent PNG.
var PNGPixel, _ = base64.StdEncoding.DecodeString("iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==")

func PNGDataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(PNGPixel)
}

func JsonString(model interface{}) string {
	bytes, _ := json.Marshal(model)
	return string(bytes)
}

func NewJSONRequest(method string, target string, param interface{}) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	return req
}

func NewJSONRequestRaw(method string, target string, json string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(json))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	return req
}

func StrPointer(s string) *string {
	return &s
}

// GatewayMock records every call and answers with Result or Err.
type GatewayMock struct {
	Result *models.InferenceResult
	Err    error

	mu    sync.Mutex
	Calls []models.InferenceCallParams
}

func (g *GatewayMock) Invoke(ctx context.Context, params models.InferenceCallParams) (*models.InferenceResult, error) {
	g.mu.Lock()
	g.Calls = append(g.Calls, params)
	g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	return g.Result, nil
}

func (g *GatewayMock) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Calls)
}

// ResultWithURL is a remote result whose first entry only has a url.
func ResultWithURL(url string) *models.InferenceResult {
	return &models.InferenceResult{Entries: []models.OutputEntry{{URL: &url}}}
}

type AWSProviderMock struct {
	MockUrl string
	Keys    []string
}

func (awsService *AWSProviderMock) GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error) {
	awsService.Keys = append(awsService.Keys, fileKey)
	return awsService.MockUrl + "/" + fileKey, nil
}
