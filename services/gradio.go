package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"tryonapi/config"
	"tryonapi/models"

	"github.com/tmaxmax/go-sse"
)

// Complete events carry the whole output list of a job.
const maxEventSize = 1 << 20

// InferenceGateway runs one remote try-on job and waits for it.
type InferenceGateway interface {
	Invoke(ctx context.Context, params models.InferenceCallParams) (*models.InferenceResult, error)
}

// GradioGateway talks to a Gradio app hosted on Hugging Face Spaces through
// its upload / call / event-stream HTTP API.
type GradioGateway struct {
	Space      string
	Token      string
	HTTPClient *http.Client
	Hosts      SpaceHostResolver
}

// gradioSession is one connection to a space: where it lives and under which
// prefix its API is mounted ("/gradio_api" since Gradio 5).
type gradioSession struct {
	host      string
	apiPrefix string
	version   string
}

func (s *gradioSession) apiURL(path string) string {
	return s.host + s.apiPrefix + path
}

type gradioConfig struct {
	APIPrefix string `json:"api_prefix"`
	Version   string `json:"version"`
}

type gradioFileMeta struct {
	Type string `json:"_type"`
}

type gradioFileData struct {
	Path     string         `json:"path"`
	OrigName string         `json:"orig_name,omitempty"`
	Size     int            `json:"size,omitempty"`
	MimeType string         `json:"mime_type,omitempty"`
	Meta     gradioFileMeta `json:"meta"`
}

// gradioEditorValue is the image-editor input of the try-on procedure.
type gradioEditorValue struct {
	Background gradioFileData   `json:"background"`
	Layers     []gradioFileData `json:"layers"`
	Composite  *gradioFileData  `json:"composite"`
}

type gradioCallRequest struct {
	Data []any `json:"data"`
}

type gradioCallResponse struct {
	EventID string `json:"event_id"`
}

// APIInfo describes the endpoints a space exposes.
type APIInfo struct {
	Space            string         `json:"space" yaml:"space"`
	Host             string         `json:"host" yaml:"host"`
	Version          string         `json:"version,omitempty" yaml:"version,omitempty"`
	NamedEndpoints   map[string]any `json:"named_endpoints" yaml:"named_endpoints"`
	UnnamedEndpoints map[string]any `json:"unnamed_endpoints" yaml:"unnamed_endpoints"`
}

func NewGradioGateway(cfg *config.Config, hosts SpaceHostResolver) *GradioGateway {
	return &GradioGateway{
		Space:      cfg.Space,
		Token:      cfg.HFAccessToken,
		HTTPClient: &http.Client{},
		Hosts:      hosts,
	}
}

func (g *GradioGateway) Invoke(ctx context.Context, params models.InferenceCallParams) (*models.InferenceResult, error) {
	started := time.Now()
	job, err := g.Submit(ctx, params)
	if err != nil {
		return nil, err
	}
	result, err := job.Wait(ctx)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(started).Seconds()
	log.Printf("[Gradio] Job %s on %s finished in %.1fs", job.EventID, g.Space, result.Duration)
	return result, nil
}

// Submit uploads both images, starts the remote job and returns a handle to
// it. The job stops streaming once ctx is done.
func (g *GradioGateway) Submit(ctx context.Context, params models.InferenceCallParams) (*Job, error) {
	if g.Token == "" {
		return nil, NewMissingCredentialError(config.AccessTokenKey)
	}

	session, err := g.connect(ctx, g.Space)
	if err != nil {
		return nil, err
	}

	userFile, err := g.upload(ctx, session, params.Subject.Background)
	if err != nil {
		return nil, err
	}
	garmentFile, err := g.upload(ctx, session, params.Garment)
	if err != nil {
		return nil, err
	}

	data := []any{
		gradioEditorValue{
			Background: userFile,
			Layers:     []gradioFileData{},
			Composite:  nil,
		},
		garmentFile,
		params.GarmentDescription,
		params.IsChecked,
		params.IsCheckedCrop,
		params.DenoiseSteps,
		params.Seed,
	}

	eventID, err := g.call(ctx, session, TryOnProcedure, data)
	if err != nil {
		return nil, err
	}
	log.Printf("[Gradio] Called /%s on %s, event %s", TryOnProcedure, g.Space, eventID)

	job := newJob(eventID)
	go job.stream(ctx, g, session, TryOnProcedure)
	return job, nil
}

// DescribeAPI connects to a space and returns its endpoint description.
func (g *GradioGateway) DescribeAPI(ctx context.Context, space string) (*APIInfo, error) {
	session, err := g.connect(ctx, space)
	if err != nil {
		return nil, err
	}
	resp, err := g.do(ctx, http.MethodGet, session.apiURL("/info"), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, ConnectionFailed, "API info")
	}

	info := &APIInfo{Space: space, Host: session.host, Version: session.version}
	if err := json.NewDecoder(resp.Body).Decode(info); err != nil {
		return nil, &GatewayError{Kind: ConnectionFailed, Message: "Failed to decode API info", Err: err}
	}
	return info, nil
}

func (g *GradioGateway) connect(ctx context.Context, space string) (*gradioSession, error) {
	if g.Token != "" {
		log.Printf("[Gradio] Connecting to %s with HF token %s...", space, g.tokenPrefix())
	} else {
		log.Printf("[Gradio] Connecting to %s anonymously", space)
	}

	host, err := g.Hosts.GetHost(ctx, space)
	if err != nil {
		return nil, err
	}

	resp, err := g.do(ctx, http.MethodGet, host+"/config", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, ConnectionFailed, fmt.Sprintf("Connecting to %s", space))
	}

	var cfg gradioConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, &GatewayError{Kind: ConnectionFailed, Message: fmt.Sprintf("Invalid config from %s", space), Err: err}
	}
	return &gradioSession{
		host:      host,
		apiPrefix: strings.TrimRight(cfg.APIPrefix, "/"),
		version:   cfg.Version,
	}, nil
}

func (g *GradioGateway) upload(ctx context.Context, session *gradioSession, payload models.ResolvedPayload) (gradioFileData, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	name := payload.Name
	if name == "" {
		name = "blob"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, name))
	header.Set("Content-Type", payload.MimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return gradioFileData{}, fmt.Errorf("failed to create upload part: %w", err)
	}
	if _, err := part.Write(payload.Data); err != nil {
		return gradioFileData{}, fmt.Errorf("failed to write upload part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return gradioFileData{}, fmt.Errorf("failed to close writer: %w", err)
	}

	resp, err := g.do(ctx, http.MethodPost, session.apiURL("/upload"), body, writer.FormDataContentType())
	if err != nil {
		return gradioFileData{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return gradioFileData{}, statusError(resp, BackendJobFailed, "Upload")
	}

	var paths []string
	if err := json.NewDecoder(resp.Body).Decode(&paths); err != nil || len(paths) == 0 {
		return gradioFileData{}, &GatewayError{Kind: BackendJobFailed, Message: "Upload returned no file path", Err: err}
	}
	return gradioFileData{
		Path:     paths[0],
		OrigName: name,
		Size:     payload.Size(),
		MimeType: payload.MimeType,
		Meta:     gradioFileMeta{Type: "gradio.FileData"},
	}, nil
}

func (g *GradioGateway) call(ctx context.Context, session *gradioSession, procedure string, data []any) (string, error) {
	encoded, err := json.Marshal(gradioCallRequest{Data: data})
	if err != nil {
		return "", fmt.Errorf("failed to marshal call data: %w", err)
	}

	resp, err := g.do(ctx, http.MethodPost, session.apiURL("/call/"+procedure), bytes.NewReader(encoded), "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp, BackendJobFailed, fmt.Sprintf("Calling /%s", procedure))
	}

	var out gradioCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.EventID == "" {
		return "", &GatewayError{Kind: BackendJobFailed, Message: fmt.Sprintf("Calling /%s returned no event id", procedure), Err: err}
	}
	return out.EventID, nil
}

func (g *GradioGateway) do(ctx context.Context, method, url string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	client := g.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &GatewayError{Kind: ConnectionFailed, Message: fmt.Sprintf("%s %s failed", method, url), Err: err}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		defer resp.Body.Close()
		return nil, statusError(resp, AuthRejected, fmt.Sprintf("%s %s", method, url))
	}
	return resp, nil
}

func (g *GradioGateway) tokenPrefix() string {
	if len(g.Token) <= 5 {
		return g.Token
	}
	return g.Token[:5]
}

func statusError(resp *http.Response, kind GatewayErrorKind, action string) *GatewayError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		kind = AuthRejected
	}
	return &GatewayError{
		Kind:    kind,
		Message: fmt.Sprintf("%s returned status %d: %s", action, resp.StatusCode, strings.TrimSpace(string(body))),
	}
}

// JobEvent is one progress message of a remote job.
type JobEvent struct {
	Name string
	Data string
}

// Job is a submitted remote job. Events are delivered best effort, Wait
// returns the final result.
type Job struct {
	EventID string

	events chan JobEvent
	done   chan struct{}
	result *models.InferenceResult
	err    error
}

func newJob(eventID string) *Job {
	return &Job{
		EventID: eventID,
		events:  make(chan JobEvent, 16),
		done:    make(chan struct{}),
	}
}

// Events is closed when the job ends.
func (j *Job) Events() <-chan JobEvent {
	return j.events
}

func (j *Job) Wait(ctx context.Context) (*models.InferenceResult, error) {
	select {
	case <-j.done:
		return j.result, j.err
	case <-ctx.Done():
		return nil, &GatewayError{Kind: ConnectionFailed, Message: "Remote job aborted", Err: ctx.Err()}
	}
}

func (j *Job) finish(result *models.InferenceResult, err error) {
	j.result = result
	j.err = err
	close(j.events)
	close(j.done)
}

func (j *Job) publish(event JobEvent) {
	select {
	case j.events <- event:
	default:
	}
}

func (j *Job) stream(ctx context.Context, g *GradioGateway, session *gradioSession, procedure string) {
	resp, err := g.do(ctx, http.MethodGet, session.apiURL(fmt.Sprintf("/call/%s/%s", procedure, j.EventID)), nil, "")
	if err != nil {
		j.finish(nil, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		j.finish(nil, statusError(resp, BackendJobFailed, "Reading job events"))
		return
	}

	err = readEventStream(resp.Body, func(name, data string) bool {
		switch name {
		case "complete":
			result, err := decodeCompleteEvent(data)
			j.finish(result, err)
			return false
		case "error":
			j.finish(nil, &GatewayError{Kind: BackendJobFailed, Message: decodeErrorEvent(data)})
			return false
		case "heartbeat":
		default:
			log.Printf("[Gradio] Job %s: %s", j.EventID, name)
		}
		j.publish(JobEvent{Name: name, Data: data})
		return true
	})

	select {
	case <-j.done:
		return
	default:
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	j.finish(nil, &GatewayError{Kind: ConnectionFailed, Message: "Event stream closed before the job completed", Err: err})
}

// readEventStream parses a text/event-stream body and calls handle for every
// dispatched event until it returns false.
func readEventStream(body io.Reader, handle func(name, data string) bool) error {
	for event, err := range sse.Read(body, &sse.ReadConfig{MaxEventSize: maxEventSize}) {
		if err != nil {
			return err
		}
		name := event.Type
		if name == "" {
			name = "message"
		}
		if !handle(name, event.Data) {
			return nil
		}
	}
	return io.ErrUnexpectedEOF
}

func decodeCompleteEvent(data string) (*models.InferenceResult, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, &GatewayError{Kind: BackendJobFailed, Message: "Malformed result from remote job", Err: err}
	}

	result := &models.InferenceResult{Entries: make([]models.OutputEntry, 0, len(raw))}
	for _, item := range raw {
		var entry models.OutputEntry
		// Non-object outputs have no location, they stay zero.
		_ = json.Unmarshal(item, &entry)
		result.Entries = append(result.Entries, entry)
	}
	return result, nil
}

func decodeErrorEvent(data string) string {
	var message string
	if err := json.Unmarshal([]byte(data), &message); err == nil && message != "" {
		return message
	}
	var obj struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal([]byte(data), &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Error != "" {
			return obj.Error
		}
	}
	return "Remote job failed"
}
