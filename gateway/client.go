package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/poiesic/ragpilot/core"
)

const requestIDHeader = "X-Request-ID"

// Client is the typed wrapper around the backend REST surface.
// Every method issues exactly one request (CreateProject may issue two, see
// its documentation). Nothing is retried or cached.
type Client struct {
	cfg    Config
	http   *resty.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithTransport replaces the underlying HTTP transport.
// Tests use it to route requests through an in-process server.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) error {
		if rt == nil {
			return fmt.Errorf("gateway: transport cannot be nil")
		}
		c.http.SetTransport(rt)
		return nil
	}
}

// NewClient creates a Client. The configuration is copied and normalized;
// later changes to cfg have no effect.
func NewClient(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	conf := *cfg
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    conf,
		logger: slog.Default(),
	}
	c.http = resty.New().
		SetBaseURL(conf.Endpoint()).
		SetTimeout(conf.Timeout).
		SetHeader("Accept", "application/json").
		// Redirect statuses must reach the caller for the 307 handling in
		// CreateProject.
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))
	if conf.UserAgent != "" {
		c.http.SetHeader("User-Agent", conf.UserAgent)
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "gateway")
	c.http.SetLogger(&restyLogger{logger: c.logger})
	return c, nil
}

// Config returns a copy of the client configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Welcome identifies the backend.
func (c *Client) Welcome(ctx context.Context) (*Welcome, error) {
	var out Welcome
	if err := c.do(ctx, "welcome", http.MethodGet, "/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListProjects returns every project known to the backend.
func (c *Client) ListProjects(ctx context.Context) ([]core.Project, error) {
	var out listProjectsResponse
	if err := c.do(ctx, "list projects", http.MethodGet, "/projects/", nil, &out); err != nil {
		return nil, err
	}

	projects := make([]core.Project, 0, len(out.Projects))
	for _, raw := range out.Projects {
		p, err := decodeProject(raw)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// CreateProject creates a project named name.
//
// The backend canonicalises the collection path with a trailing slash and
// may answer the first POST with 307. In that case the identical payload is
// sent once more to "/projects/" and the outcome of that second attempt is
// returned, whatever it is.
func (c *Client) CreateProject(ctx context.Context, name string) (core.Project, error) {
	body := nameRequest{Name: name}

	var out createProjectResponse
	err := c.do(ctx, "create project", http.MethodPost, "/projects", body, &out)
	if StatusOf(err) == http.StatusTemporaryRedirect {
		c.logger.Debug("retrying create project", "err", fmt.Errorf("%w: %w", ErrRedirectRetried, err))
		out = createProjectResponse{}
		err = c.do(ctx, "create project", http.MethodPost, "/projects/", body, &out)
	}
	if err != nil {
		return core.Project{}, err
	}

	project, err := decodeProject(out.Project)
	if err != nil {
		return core.Project{}, err
	}
	if project.Name == "" {
		project.Name = name
	}
	return project, nil
}

// GetProject fetches a single project.
func (c *Client) GetProject(ctx context.Context, id core.ProjectID) (core.Project, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "get project", http.MethodGet, "/projects/"+id.String(), nil, &raw); err != nil {
		return core.Project{}, err
	}

	// Some backends wrap the object in {"project": ...}
	var wrapped createProjectResponse
	if json.Unmarshal(raw, &wrapped) == nil && len(wrapped.Project) > 0 {
		raw = wrapped.Project
	}
	project, err := decodeProject(raw)
	if err != nil {
		return core.Project{}, err
	}
	if project.ID.IsZero() {
		project.ID = id
	}
	return project, nil
}

// RenameProject changes the display name of a project.
func (c *Client) RenameProject(ctx context.Context, id core.ProjectID, name string) error {
	return c.do(ctx, "rename project", http.MethodPut, "/projects/"+id.String()+"/name", nameRequest{Name: name}, nil)
}

// UploadFile sends the document as the multipart field "file".
func (c *Client) UploadFile(ctx context.Context, file *core.UploadedFile) (Payload, error) {
	path := "/data/upload/" + file.ProjectID.String()
	req := c.newRequest(ctx).
		SetMultipartField("file", file.Name, file.MimeType, bytes.NewReader(file.Data))

	var out Payload
	if err := c.execute(req, "upload", http.MethodPost, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ProcessData asks the backend to chunk the uploaded files of a project.
func (c *Client) ProcessData(ctx context.Context, id core.ProjectID, in ProcessRequest) (Payload, error) {
	var out Payload
	if err := c.do(ctx, "process", http.MethodPost, "/data/process/"+id.String(), in, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PushIndex asks the backend to embed and index the chunks of a project.
func (c *Client) PushIndex(ctx context.Context, id core.ProjectID, in PushRequest) (Payload, error) {
	var out Payload
	if err := c.do(ctx, "push index", http.MethodPost, "/nlp/index/push/"+id.String(), in, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// IndexInfo returns the vector collection metadata of a project.
func (c *Client) IndexInfo(ctx context.Context, id core.ProjectID) (Payload, error) {
	var out Payload
	if err := c.do(ctx, "index info", http.MethodGet, "/nlp/index/info/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Search runs semantic retrieval. Chunks keep the backend order.
func (c *Client) Search(ctx context.Context, id core.ProjectID, text string, limit int) ([]core.Chunk, error) {
	var out searchResponse
	if err := c.do(ctx, "search", http.MethodPost, "/nlp/index/search/"+id.String(), QueryRequest{Text: text, Limit: limit}, &out); err != nil {
		return nil, err
	}

	chunks := make([]core.Chunk, 0, len(out.Results))
	for _, hit := range out.Results {
		chunks = append(chunks, hit.toChunk())
	}
	return chunks, nil
}

// Answer asks the backend to generate an answer. The backend runs its own
// retrieval; its chunk set may differ from a preceding Search.
func (c *Client) Answer(ctx context.Context, id core.ProjectID, text string, limit int) (*Answer, error) {
	var out Answer
	if err := c.do(ctx, "answer", http.MethodPost, "/nlp/index/answer/"+id.String(), QueryRequest{Text: text, Limit: limit}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetHeader(requestIDHeader, uuid.NewString())
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	req := c.newRequest(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	return c.execute(req, op, method, path, out)
}

// execute sends req and decodes a 2xx body into out (when non-nil).
// Decoding is done here rather than through resty's result parsing so that
// a backend omitting the Content-Type header is still understood.
func (c *Client) execute(req *resty.Request, op, method, path string, out any) error {
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Warn("backend request failed", "op", op, "method", method, "path", path, "err", err)
		return &TransportError{
			Op:      op,
			Method:  method,
			Path:    path,
			Message: err.Error(),
			Err:     err,
		}
	}

	status := resp.StatusCode()
	body := resp.Body()
	if !resp.IsSuccess() {
		tErr := &TransportError{
			Op:      op,
			Method:  method,
			Path:    path,
			Status:  status,
			Message: errorMessage(status, body),
			Payload: rawPayload(body),
		}
		c.logger.Debug("backend returned error status", "op", op, "status", status, "err", tErr)
		return tErr
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &TransportError{
			Op:      op,
			Method:  method,
			Path:    path,
			Status:  status,
			Message: "undecodable response body",
			Payload: rawPayload(body),
			Err:     fmt.Errorf("%w: %w", ErrMalformedResponse, err),
		}
	}
	return nil
}

// restyLogger routes resty's internal logging through slog.
type restyLogger struct {
	logger *slog.Logger
}

func (l *restyLogger) Errorf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

func (l *restyLogger) Warnf(format string, v ...any) {
	l.logger.Warn(fmt.Sprintf(format, v...))
}

func (l *restyLogger) Debugf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}
