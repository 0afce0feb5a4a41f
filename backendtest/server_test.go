package backendtest

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ragpilot/core"
	"github.com/poiesic/ragpilot/gateway"
)

func newClient(t *testing.T, baseURL string, timeout time.Duration) *gateway.Client {
	t.Helper()
	client, err := gateway.NewClient(gateway.NewConfig(
		gateway.WithBaseURL(baseURL),
		gateway.WithTimeout(timeout),
	))
	require.NoError(t, err)
	return client
}

func pdfFile(id core.ProjectID) *core.UploadedFile {
	return &core.UploadedFile{ProjectID: id, Name: "doc.pdf", MimeType: core.MimeTypePDF, Data: []byte("%PDF-1.4")}
}

func TestServer_ProjectLifecycle(t *testing.T) {
	stub, url := NewTestServer(t, WithProjects(core.Project{ID: 4, Name: "Existing"}))
	client := newClient(t, url, 5*time.Second)
	ctx := context.Background()

	welcome, err := client.Welcome(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mini-rag", welcome.AppName)

	created, err := client.CreateProject(ctx, "Demo")
	require.NoError(t, err)
	assert.Equal(t, core.Project{ID: 5, Name: "Demo"}, created)

	require.NoError(t, client.RenameProject(ctx, 5, "Renamed"))
	got, err := client.GetProject(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)

	projects, err := client.ListProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.Project{{ID: 4, Name: "Existing"}, {ID: 5, Name: "Renamed"}}, projects)

	_, err = client.GetProject(ctx, 99)
	assert.Equal(t, http.StatusNotFound, gateway.StatusOf(err))

	assert.Equal(t, 1, stub.CallCount(OpCreateProject))
}

func TestServer_BareIDs(t *testing.T) {
	_, url := NewTestServer(t, WithBareProjectIDs(), WithProjects(core.Project{ID: 1, Name: "a"}, core.Project{ID: 2}))
	client := newClient(t, url, 5*time.Second)

	projects, err := client.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.Project{{ID: 1}, {ID: 2}}, projects)
}

func TestServer_CreateRedirect(t *testing.T) {
	stub, url := NewTestServer(t, WithCreateRedirect())
	client := newClient(t, url, 5*time.Second)

	created, err := client.CreateProject(context.Background(), "Demo")
	require.NoError(t, err)
	assert.Equal(t, "Demo", created.Name)

	calls := stub.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, BasePath+"/projects", calls[0].Path)
	assert.Equal(t, BasePath+"/projects/", calls[1].Path)
}

func TestServer_IngestAndQuery(t *testing.T) {
	stub, url := NewTestServer(t, WithHits(Hit{Text: "A", Score: 0.9}), WithAnswer("42"))
	client := newClient(t, url, 5*time.Second)
	ctx := context.Background()

	ack, err := client.UploadFile(ctx, pdfFile(3))
	require.NoError(t, err)
	assert.Equal(t, "file_upload_success", ack["signal"])
	assert.Len(t, stub.Files(3), 1)

	summary, err := client.ProcessData(ctx, 3, gateway.ProcessRequest{ChunkSize: 100, OverlapSize: 20, DoReset: true})
	require.NoError(t, err)
	assert.Equal(t, float64(25), summary["inserted_chunks"])

	pushed, err := client.PushIndex(ctx, 3, gateway.PushRequest{})
	require.NoError(t, err)
	assert.Equal(t, float64(25), pushed["inserted_items_count"])

	info, err := client.IndexInfo(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, float64(25), info["collection_info"].(map[string]any)["points_count"])

	chunks, err := client.Search(ctx, 3, "q", 5)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "A", chunks[0].Text)
	assert.Equal(t, 0.9, chunks[0].Score)

	answer, err := client.Answer(ctx, 3, "q", 5)
	require.NoError(t, err)
	assert.Equal(t, "42", answer.Answer)
}

func TestServer_ProcessWithoutFiles(t *testing.T) {
	_, url := NewTestServer(t)
	client := newClient(t, url, 5*time.Second)

	_, err := client.ProcessData(context.Background(), 8, gateway.ProcessRequest{ChunkSize: 100})
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, gateway.StatusOf(err))

	var tErr *gateway.TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "no_files_error", tErr.Message)
}

func TestServer_FailAndClear(t *testing.T) {
	stub, url := NewTestServer(t)
	client := newClient(t, url, 5*time.Second)
	ctx := context.Background()

	stub.Fail(OpSearch, http.StatusInternalServerError, map[string]string{"detail": "vector store down"})
	_, err := client.Search(ctx, 1, "q", 2)
	var tErr *gateway.TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, 500, tErr.Status)
	assert.Equal(t, "vector store down", tErr.Message)

	stub.Fail(OpAnswer, http.StatusBadGateway, nil)
	_, err = client.Answer(ctx, 1, "q", 2)
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "answer_failed", tErr.Message)

	stub.Clear(OpSearch)
	chunks, err := client.Search(ctx, 1, "q", 2)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	assert.Equal(t, 2, stub.CallCount(OpSearch))
}

func TestServer_Stall(t *testing.T) {
	stub, url := NewTestServer(t)
	client := newClient(t, url, 50*time.Millisecond)

	stub.Stall(OpAnswer, 5*time.Second)
	_, err := client.Answer(context.Background(), 1, "q", 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrTransport)
	assert.Zero(t, gateway.StatusOf(err))
}
