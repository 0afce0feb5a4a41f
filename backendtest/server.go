// Package backendtest provides an in-process implementation of the RAG
// backend REST surface. Tests point a gateway client at it; the stub
// records every call and can be told to fail, stall or redirect.
package backendtest

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/poiesic/ragpilot/core"
	"github.com/poiesic/ragpilot/gateway"
)

// BasePath is the prefix every route is served under.
const BasePath = "/api/v1"

// Op names a backend operation.
type Op string

const (
	OpWelcome       Op = "welcome"
	OpListProjects  Op = "list_projects"
	OpCreateProject Op = "create_project"
	OpGetProject    Op = "get_project"
	OpRenameProject Op = "rename_project"
	OpUpload        Op = "upload"
	OpProcess       Op = "process"
	OpPushIndex     Op = "push_index"
	OpIndexInfo     Op = "index_info"
	OpSearch        Op = "search"
	OpAnswer        Op = "answer"
)

// Call is one request received by the stub.
type Call struct {
	Op     Op
	Method string
	Path   string
}

// Hit is a search result served by the stub.
type Hit struct {
	Text   string
	Score  float64
	Source string
	Page   int // Omitted from the response when zero
}

type failure struct {
	status int
	body   any
}

type projectState struct {
	name    string
	files   []string
	chunks  int
	indexed int
}

// Server is the stub backend.
type Server struct {
	engine *gin.Engine
	logger *slog.Logger

	mu             sync.Mutex
	projects       map[core.ProjectID]*projectState
	nextID         core.ProjectID
	bareIDs        bool
	redirectCreate bool
	hits           []Hit
	answer         string
	failures       map[Op]failure
	delays         map[Op]time.Duration
	calls          []Call
}

// Option configures a Server.
type Option func(*Server)

// WithProjects seeds the stub with existing projects.
func WithProjects(projects ...core.Project) Option {
	return func(s *Server) {
		for _, p := range projects {
			s.projects[p.ID] = &projectState{name: p.Name}
			if p.ID >= s.nextID {
				s.nextID = p.ID + 1
			}
		}
	}
}

// WithBareProjectIDs lists projects as bare ids, the way the reference
// backend does.
func WithBareProjectIDs() Option {
	return func(s *Server) {
		s.bareIDs = true
	}
}

// WithCreateRedirect answers POST /projects with 307 to the trailing-slash path.
func WithCreateRedirect() Option {
	return func(s *Server) {
		s.redirectCreate = true
	}
}

// WithHits replaces the search results.
func WithHits(hits ...Hit) Option {
	return func(s *Server) {
		s.hits = hits
	}
}

// WithAnswer replaces the generated answer.
func WithAnswer(answer string) Option {
	return func(s *Server) {
		s.answer = answer
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// DefaultHits are the search results served when none are configured.
func DefaultHits() []Hit {
	return []Hit{
		{Text: "Chunks are embedded and stored in a vector collection per project.", Score: 0.91, Source: "manual.pdf", Page: 3},
		{Text: "The answer endpoint retrieves context before calling the language model.", Score: 0.84, Source: "manual.pdf", Page: 7},
		{Text: "Projects isolate documents from each other.", Score: 0.72, Source: "overview.pdf", Page: 1},
	}
}

// New creates a stub backend.
func New(opts ...Option) *Server {
	s := &Server{
		logger:   slog.Default(),
		projects: make(map[core.ProjectID]*projectState),
		nextID:   1,
		hits:     DefaultHits(),
		answer:   "The documents describe how projects are chunked, embedded and searched.",
		failures: make(map[Op]failure),
		delays:   make(map[Op]time.Duration),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "stub-backend")

	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

// NewTestServer starts s behind an httptest server that is closed when tb
// finishes. It returns the stub and the base URL to configure clients with.
func NewTestServer(tb testing.TB, opts ...Option) (*Server, string) {
	tb.Helper()
	gin.SetMode(gin.TestMode)
	s := New(opts...)
	ts := httptest.NewServer(s.Handler())
	tb.Cleanup(ts.Close)
	return s, ts.URL
}

// Handler returns the HTTP handler serving the stub.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Fail makes op answer with status and body until Clear is called.
// A nil body yields {"signal": "<op>_failed"}.
func (s *Server) Fail(op Op, status int, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if body == nil {
		body = gin.H{"signal": string(op) + "_failed"}
	}
	s.failures[op] = failure{status: status, body: body}
}

// Stall delays every response of op by d, or until the client goes away.
func (s *Server) Stall(op Op, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[op] = d
}

// Clear removes every failure and stall configured for op.
func (s *Server) Clear(op Op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, op)
	delete(s.delays, op)
}

// Calls returns every request received, in order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns how many requests op received.
func (s *Server) CallCount(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// TotalCalls returns the number of requests received.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Files returns the stored names of the files uploaded to a project.
func (s *Server) Files(id core.ProjectID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.projects[id]; ok {
		return append([]string(nil), p.files...)
	}
	return nil
}

func (s *Server) routes() {
	v1 := s.engine.Group(BasePath)
	v1.GET("/", s.handle(OpWelcome, s.welcome))
	v1.GET("/projects/", s.handle(OpListProjects, s.listProjects))
	v1.POST("/projects", s.handle(OpCreateProject, s.createProjectNoSlash))
	v1.POST("/projects/", s.handle(OpCreateProject, s.createProject))
	v1.GET("/projects/:id", s.handle(OpGetProject, s.getProject))
	v1.PUT("/projects/:id/name", s.handle(OpRenameProject, s.renameProject))
	v1.POST("/data/upload/:id", s.handle(OpUpload, s.upload))
	v1.POST("/data/process/:id", s.handle(OpProcess, s.process))
	v1.POST("/nlp/index/push/:id", s.handle(OpPushIndex, s.pushIndex))
	v1.GET("/nlp/index/info/:id", s.handle(OpIndexInfo, s.indexInfo))
	v1.POST("/nlp/index/search/:id", s.handle(OpSearch, s.search))
	v1.POST("/nlp/index/answer/:id", s.handle(OpAnswer, s.answerQuestion))
}

// handle records the call and applies any configured stall or failure
// before running h.
func (s *Server) handle(op Op, h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		s.calls = append(s.calls, Call{Op: op, Method: c.Request.Method, Path: c.Request.URL.Path})
		fail, failing := s.failures[op]
		delay := s.delays[op]
		s.mu.Unlock()

		s.logger.Debug("request", "op", op, "method", c.Request.Method, "path", c.Request.URL.Path)

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-c.Request.Context().Done():
				timer.Stop()
				c.Abort()
				return
			}
		}
		if failing {
			c.AbortWithStatusJSON(fail.status, fail.body)
			return
		}
		h(c)
	}
}

func (s *Server) welcome(c *gin.Context) {
	c.JSON(http.StatusOK, gateway.Welcome{AppName: "mini-rag", AppVersion: "0.1"})
}

func (s *Server) listProjects(c *gin.Context) {
	s.mu.Lock()
	ids := make([]core.ProjectID, 0, len(s.projects))
	for id := range s.projects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	projects := make([]any, 0, len(ids))
	for _, id := range ids {
		if s.bareIDs {
			projects = append(projects, int64(id))
		} else {
			projects = append(projects, gin.H{"id": int64(id), "name": s.projects[id].name})
		}
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"signal": "success", "projects": projects})
}

func (s *Server) createProjectNoSlash(c *gin.Context) {
	s.mu.Lock()
	redirect := s.redirectCreate
	s.mu.Unlock()

	if redirect {
		c.Redirect(http.StatusTemporaryRedirect, BasePath+"/projects/")
		return
	}
	s.createProject(c)
}

func (s *Server) createProject(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "name is required"})
		return
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.projects[id] = &projectState{name: req.Name}
	s.mu.Unlock()

	c.JSON(http.StatusCreated, gin.H{"project": gin.H{"id": int64(id), "name": req.Name}})
}

func (s *Server) getProject(c *gin.Context) {
	id, ok := s.projectID(c)
	if !ok {
		return
	}
	s.mu.Lock()
	p, found := s.projects[id]
	var name string
	if found {
		name = p.name
	}
	s.mu.Unlock()

	if !found {
		c.JSON(http.StatusNotFound, gin.H{"detail": "project not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": int64(id), "name": name})
}

func (s *Server) renameProject(c *gin.Context) {
	id, ok := s.projectID(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "name is required"})
		return
	}

	s.mu.Lock()
	p, found := s.projects[id]
	if found {
		p.name = req.Name
	}
	s.mu.Unlock()

	if !found {
		c.JSON(http.StatusNotFound, gin.H{"detail": "project not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signal": "project_renamed"})
}

func (s *Server) upload(c *gin.Context) {
	id, ok := s.projectID(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"signal": "file_missing", "detail": err.Error()})
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType != core.MimeTypePDF && !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"signal": "file_type_not_supported"})
		return
	}

	fileID := uuid.NewString()[:12] + "_" + header.Filename
	s.mu.Lock()
	p := s.project(id)
	p.files = append(p.files, fileID)
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"signal":  "file_upload_success",
		"file_id": fileID,
		"size":    header.Size,
	})
}

func (s *Server) process(c *gin.Context) {
	id, ok := s.projectID(c)
	if !ok {
		return
	}
	var req gateway.ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	if req.ChunkSize <= 0 || req.OverlapSize < 0 || req.OverlapSize >= req.ChunkSize {
		c.JSON(http.StatusBadRequest, gin.H{"signal": "processing_failed", "detail": "invalid chunking parameters"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.project(id)

	files := p.files
	if req.FileID != nil {
		files = nil
		for _, f := range p.files {
			if f == *req.FileID {
				files = append(files, f)
			}
		}
	}
	if len(files) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"signal": "no_files_error"})
		return
	}

	inserted := len(files) * (2000 / (req.ChunkSize - req.OverlapSize))
	if inserted < len(files) {
		inserted = len(files)
	}
	if req.DoReset {
		p.chunks = 0
	}
	p.chunks += inserted

	c.JSON(http.StatusOK, gin.H{
		"signal":          "processing_success",
		"inserted_chunks": inserted,
		"processed_files": len(files),
	})
}

func (s *Server) pushIndex(c *gin.Context) {
	id, ok := s.projectID(c)
	if !ok {
		return
	}
	var req gateway.PushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	s.mu.Lock()
	p := s.project(id)
	if req.DoReset {
		p.indexed = 0
	}
	p.indexed += p.chunks
	count := p.chunks
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"signal": "insert_into_vectordb_success", "inserted_items_count": count})
}

func (s *Server) indexInfo(c *gin.Context) {
	id, ok := s.projectID(c)
	if !ok {
		return
	}
	s.mu.Lock()
	points := s.project(id).indexed
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"signal": "vectordb_collection_retrieved",
		"collection_info": gin.H{
			"name":          fmt.Sprintf("collection_%d", id),
			"points_count":  points,
			"vectors_count": points,
			"status":        "green",
		},
	})
}

func (s *Server) search(c *gin.Context) {
	if _, ok := s.projectID(c); !ok {
		return
	}
	req, ok := bindQuery(c)
	if !ok {
		return
	}

	s.mu.Lock()
	hits := s.hits
	s.mu.Unlock()
	if req.Limit < len(hits) {
		hits = hits[:req.Limit]
	}

	results := make([]gin.H, 0, len(hits))
	for _, h := range hits {
		item := gin.H{"text": h.Text, "score": h.Score}
		if h.Source != "" {
			meta := gin.H{"source": h.Source}
			if h.Page > 0 {
				meta["page"] = h.Page
			}
			item["metadata"] = meta
		}
		results = append(results, item)
	}
	c.JSON(http.StatusOK, gin.H{"signal": "vectordb_search_success", "results": results})
}

func (s *Server) answerQuestion(c *gin.Context) {
	if _, ok := s.projectID(c); !ok {
		return
	}
	req, ok := bindQuery(c)
	if !ok {
		return
	}

	s.mu.Lock()
	answer := s.answer
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"signal":       "rag_answer_success",
		"answer":       answer,
		"full_prompt":  "## Question:\n" + req.Text,
		"chat_history": []gin.H{{"role": "user", "content": req.Text}},
	})
}

func bindQuery(c *gin.Context) (gateway.QueryRequest, bool) {
	var req gateway.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" || req.Limit <= 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "text and a positive limit are required"})
		return req, false
	}
	return req, true
}

func (s *Server) projectID(c *gin.Context) (core.ProjectID, bool) {
	v, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || v <= 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid project id"})
		return 0, false
	}
	return core.ProjectID(v), true
}

// project returns the state of id, creating it on first use like the
// reference backend does for data routes. Must be called with s.mu held.
func (s *Server) project(id core.ProjectID) *projectState {
	p, ok := s.projects[id]
	if !ok {
		p = &projectState{}
		s.projects[id] = p
		if id >= s.nextID {
			s.nextID = id + 1
		}
	}
	return p
}
