package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tryonapi/models"
	"tryonapi/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticHost string

func (h staticHost) GetHost(ctx context.Context, space string) (string, error) {
	return string(h), nil
}

type uploadedFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// fakeSpace imitates the HTTP API of a Gradio 5 app.
type fakeSpace struct {
	events string

	mu            sync.Mutex
	authorization []string
	uploads       []uploadedFile
	callData      []any
	release       chan struct{}
}

func newFakeSpace(t *testing.T, events string) (*fakeSpace, *httptest.Server) {
	space := &fakeSpace{events: events, release: make(chan struct{})}
	mux := http.NewServeMux()
	mux.HandleFunc("/config", space.config)
	mux.HandleFunc("/gradio_api/upload", space.upload)
	mux.HandleFunc("/gradio_api/info", space.info)
	mux.HandleFunc("/gradio_api/call/tryon", space.call)
	mux.HandleFunc("/gradio_api/call/tryon/", space.stream)
	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		close(space.release)
		server.Close()
	})
	return space, server
}

func (s *fakeSpace) record(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authorization = append(s.authorization, r.Header.Get("Authorization"))
}

func (s *fakeSpace) config(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	w.Write([]byte(`{"version":"5.6.0","api_prefix":"/gradio_api/"}`))
}

func (s *fakeSpace) info(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	w.Write([]byte(`{"named_endpoints":{"/tryon":{"parameters":[{"label":"Human"}]}},"unnamed_endpoints":{}}`))
}

func (s *fakeSpace) upload(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	file, header, err := r.FormFile("files")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)

	s.mu.Lock()
	s.uploads = append(s.uploads, uploadedFile{Name: header.Filename, ContentType: header.Header.Get("Content-Type"), Data: data})
	s.mu.Unlock()
	fmt.Fprintf(w, `["/tmp/gradio/%s"]`, header.Filename)
}

func (s *fakeSpace) call(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	var body struct {
		Data []any `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}
	s.mu.Lock()
	s.callData = body.Data
	s.mu.Unlock()
	w.Write([]byte(`{"event_id":"evt-1"}`))
}

func (s *fakeSpace) stream(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	if r.URL.Path != "/gradio_api/call/tryon/evt-1" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	io.WriteString(w, s.events)
	if s.events == "" {
		// never finishes, the client has to give up
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-s.release:
		}
	}
}

func newTestGateway(server *httptest.Server, token string) *GradioGateway {
	return &GradioGateway{
		Space:      "yisol/IDM-VTON",
		Token:      token,
		HTTPClient: server.Client(),
		Hosts:      staticHost(server.URL),
	}
}

func testParams() models.InferenceCallParams {
	return BuildTryOnParams(
		models.ResolvedPayload{Data: test.PNGPixel, MimeType: "image/png", Name: "me.png"},
		models.ResolvedPayload{Data: []byte("jpeg"), MimeType: "image/jpeg", Name: "dress.jpg"},
	)
}

func requireGatewayKind(t *testing.T, err error, kind GatewayErrorKind) *GatewayError {
	t.Helper()
	var gatewayErr *GatewayError
	require.True(t, errors.As(err, &gatewayErr), "expected GatewayError, got %T: %v", err, err)
	require.Equal(t, kind, gatewayErr.Kind)
	return gatewayErr
}

func TestGradioGatewayInvoke(t *testing.T) {
	space, server := newFakeSpace(t, "event: generating\ndata: null\n\n"+
		"event: heartbeat\ndata: null\n\n"+
		`event: complete`+"\n"+`data: [{"path":"/tmp/gradio/out.png","url":"https://yisol-idm-vton.hf.space/gradio_api/file=/tmp/gradio/out.png"},{"path":"/tmp/gradio/mask.png"}]`+"\n\n")
	gateway := newTestGateway(server, "hf_secret")

	result, err := gateway.Invoke(context.Background(), testParams())
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	require.NotNil(t, result.Entries[0].URL)
	assert.Equal(t, "https://yisol-idm-vton.hf.space/gradio_api/file=/tmp/gradio/out.png", *result.Entries[0].URL)
	assert.Equal(t, "/tmp/gradio/mask.png", *result.Entries[1].Path)

	location, err := ExtractResultLocation(result)
	require.NoError(t, err)
	assert.Equal(t, *result.Entries[0].URL, location)

	space.mu.Lock()
	defer space.mu.Unlock()
	for _, header := range space.authorization {
		assert.Equal(t, "Bearer hf_secret", header)
	}

	require.Len(t, space.uploads, 2)
	assert.Equal(t, uploadedFile{Name: "me.png", ContentType: "image/png", Data: test.PNGPixel}, space.uploads[0])
	assert.Equal(t, uploadedFile{Name: "dress.jpg", ContentType: "image/jpeg", Data: []byte("jpeg")}, space.uploads[1])

	require.Len(t, space.callData, 7)
	editor, ok := space.callData[0].(map[string]any)
	require.True(t, ok)
	background := editor["background"].(map[string]any)
	assert.Equal(t, "/tmp/gradio/me.png", background["path"])
	assert.Equal(t, map[string]any{"_type": "gradio.FileData"}, background["meta"])
	assert.Equal(t, []any{}, editor["layers"])
	assert.Nil(t, editor["composite"])
	assert.Equal(t, "/tmp/gradio/dress.jpg", space.callData[1].(map[string]any)["path"])
	assert.Equal(t, "clothing", space.callData[2])
	assert.Equal(t, true, space.callData[3])
	assert.Equal(t, false, space.callData[4])
	assert.Equal(t, float64(30), space.callData[5])
	assert.Equal(t, float64(42), space.callData[6])
}

func TestGradioGatewaySubmitEvents(t *testing.T) {
	_, server := newFakeSpace(t, "event: generating\ndata: null\n\nevent: complete\ndata: [{\"path\":\"/tmp/out.png\"}]\n\n")
	gateway := newTestGateway(server, "hf_secret")

	job, err := gateway.Submit(context.Background(), testParams())
	require.NoError(t, err)
	assert.Equal(t, "evt-1", job.EventID)

	var names []string
	for event := range job.Events() {
		names = append(names, event.Name)
	}
	assert.Equal(t, []string{"generating"}, names)

	result, err := job.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out.png", *result.Entries[0].Path)
}

func TestGradioGatewayRemoteJobError(t *testing.T) {
	_, server := newFakeSpace(t, "event: error\ndata: \"CUDA out of memory\"\n\n")
	gateway := newTestGateway(server, "hf_secret")

	_, err := gateway.Invoke(context.Background(), testParams())
	gatewayErr := requireGatewayKind(t, err, BackendJobFailed)
	assert.Equal(t, "CUDA out of memory", gatewayErr.Error())
}

func TestGradioGatewayStreamClosedEarly(t *testing.T) {
	_, server := newFakeSpace(t, "event: generating\ndata: null\n\n")
	gateway := newTestGateway(server, "hf_secret")

	_, err := gateway.Invoke(context.Background(), testParams())
	requireGatewayKind(t, err, ConnectionFailed)
}

func TestGradioGatewayTimeout(t *testing.T) {
	_, server := newFakeSpace(t, "")
	gateway := newTestGateway(server, "hf_secret")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := gateway.Invoke(ctx, testParams())
	requireGatewayKind(t, err, ConnectionFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGradioGatewayAuthRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Invalid credentials in Authorization header"}`))
	}))
	defer server.Close()
	gateway := newTestGateway(server, "hf_wrong")

	_, err := gateway.Invoke(context.Background(), testParams())
	gatewayErr := requireGatewayKind(t, err, AuthRejected)
	assert.Contains(t, gatewayErr.Error(), "Invalid credentials")
}

func TestGradioGatewayUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	gateway := &GradioGateway{Space: "yisol/IDM-VTON", Token: "hf_secret", HTTPClient: http.DefaultClient, Hosts: staticHost(url)}

	_, err := gateway.Invoke(context.Background(), testParams())
	requireGatewayKind(t, err, ConnectionFailed)
}

func TestGradioGatewayMissingToken(t *testing.T) {
	_, server := newFakeSpace(t, "")
	gateway := newTestGateway(server, "")

	_, err := gateway.Invoke(context.Background(), testParams())
	var configErr *ConfigurationError
	require.True(t, errors.As(err, &configErr))
	assert.Equal(t, "No HF_ACCESS_TOKEN found in environment variables.", err.Error())
}

func TestGradioGatewayDescribeAPI(t *testing.T) {
	_, server := newFakeSpace(t, "")
	gateway := newTestGateway(server, "hf_secret")

	info, err := gateway.DescribeAPI(context.Background(), "yisol/IDM-VTON")
	require.NoError(t, err)
	assert.Equal(t, "yisol/IDM-VTON", info.Space)
	assert.Equal(t, server.URL, info.Host)
	assert.Equal(t, "5.6.0", info.Version)
	assert.Contains(t, info.NamedEndpoints, "/tryon")
}

func TestReadEventStream(t *testing.T) {
	body := ": keep-alive\r\n" +
		"event: progress\r\ndata: {\"step\":1}\r\n\r\n" +
		"data: first\ndata: second\n\n" +
		"event: complete\ndata: []\n\n"

	type event struct{ name, data string }
	var events []event
	err := readEventStream(strings.NewReader(body), func(name, data string) bool {
		events = append(events, event{name, data})
		return true
	})

	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, []event{
		{"progress", `{"step":1}`},
		{"message", "first\nsecond"},
		{"complete", "[]"},
	}, events)
}

func TestReadEventStreamStopsWhenHandlerSaysSo(t *testing.T) {
	calls := 0
	err := readEventStream(strings.NewReader("event: complete\ndata: []\n\nevent: other\ndata: x\n\n"), func(name, data string) bool {
		calls++
		return false
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDecodeCompleteEvent(t *testing.T) {
	result, err := decodeCompleteEvent(`[{"url":"https://a/out.png","path":"/tmp/out.png","size":12}, "text", null]`)
	require.NoError(t, err)
	require.Len(t, result.Entries, 3)
	assert.Equal(t, "https://a/out.png", *result.Entries[0].URL)
	assert.Equal(t, models.OutputEntry{}, result.Entries[1])
	assert.Equal(t, models.OutputEntry{}, result.Entries[2])

	_, err = decodeCompleteEvent(`{"not":"a list"}`)
	requireGatewayKind(t, err, BackendJobFailed)
}

func TestDecodeErrorEvent(t *testing.T) {
	assert.Equal(t, "boom", decodeErrorEvent(`"boom"`))
	assert.Equal(t, "queue full", decodeErrorEvent(`{"message":"queue full"}`))
	assert.Equal(t, "gpu quota", decodeErrorEvent(`{"error":"gpu quota"}`))
	assert.Equal(t, "Remote job failed", decodeErrorEvent("null"))
	assert.Equal(t, "Remote job failed", decodeErrorEvent("not json"))
}

func TestReadEventStreamDropsUnterminatedEvent(t *testing.T) {
	calls := 0
	err := readEventStream(strings.NewReader("event: complete\ndata: [{\"path\":\"/tmp/out.png\"}]"), func(name, data string) bool {
		calls++
		return true
	})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, 0, calls)
}
