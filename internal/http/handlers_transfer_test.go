package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dredge/internal/model"
	"dredge/internal/services"
)

type fakeTransferService struct {
	data []byte
	task *model.CrawlTask
	err  error

	exportedID     uuid.UUID
	exportedFormat services.TransferFormat
	importedBody   []byte
	importedFormat services.TransferFormat
}

func (f *fakeTransferService) Export(_ context.Context, taskID uuid.UUID, format services.TransferFormat) ([]byte, error) {
	f.exportedID = taskID
	f.exportedFormat = format
	return f.data, f.err
}

func (f *fakeTransferService) Import(_ context.Context, content []byte, format services.TransferFormat) (*model.CrawlTask, error) {
	f.importedBody = content
	f.importedFormat = format
	return f.task, f.err
}

func TestTasksExportJSON(t *testing.T) {
	svc := &fakeTransferService{data: []byte(`{"name":"news-crawl"}`)}
	app := testApp(http.MethodGet, "/api/tasks/:id/export", tasksExportHandler, map[string]any{"transfer": svc})

	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/tasks/"+id.String()+"/export", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, fmt.Sprintf("attachment; filename=task_%s.json", id), resp.Header.Get("Content-Disposition"))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, `{"name":"news-crawl"}`, string(body))

	assert.Equal(t, id, svc.exportedID)
	assert.Equal(t, services.FormatJSON, svc.exportedFormat)
}

func TestTasksExportYAML(t *testing.T) {
	svc := &fakeTransferService{data: []byte("name: news-crawl\n")}
	app := testApp(http.MethodGet, "/api/tasks/:id/export", tasksExportHandler, map[string]any{"transfer": svc})

	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/tasks/"+id.String()+"/export?format=yaml", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, fmt.Sprintf("attachment; filename=task_%s.yaml", id), resp.Header.Get("Content-Disposition"))
	assert.Equal(t, "application/x-yaml", resp.Header.Get("Content-Type"))
	assert.Equal(t, services.FormatYAML, svc.exportedFormat)
}

func TestTasksExportRejectsUnknownFormat(t *testing.T) {
	svc := &fakeTransferService{}
	app := testApp(http.MethodGet, "/api/tasks/:id/export", tasksExportHandler, map[string]any{"transfer": svc})

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/"+uuid.NewString()+"/export?format=xml", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out ErrorResponse
	decodeBody(t, resp, &out)
	assert.Contains(t, out.Error, "format must be 'json' or 'yaml'")
	assert.Equal(t, uuid.Nil, svc.exportedID)
}

func TestTasksExportMissingTask(t *testing.T) {
	svc := &fakeTransferService{err: eris.Wrap(services.ErrNotFound, "task")}
	app := testApp(http.MethodGet, "/api/tasks/:id/export", tasksExportHandler, map[string]any{"transfer": svc})

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/"+uuid.NewString()+"/export", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTasksImport(t *testing.T) {
	svc := &fakeTransferService{task: sampleTask()}
	app := testApp(http.MethodPost, "/api/tasks/import", tasksImportHandler, map[string]any{"transfer": svc})

	body := `{"name":"news-crawl","urls":["https://example.com/news"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/import", strings.NewReader(body))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out TaskResponse
	decodeBody(t, resp, &out)
	assert.True(t, out.Success)
	require.NotNil(t, out.Task)
	assert.Equal(t, "news-crawl", out.Task.Name)

	assert.Equal(t, []byte(body), svc.importedBody)
	assert.Equal(t, services.FormatJSON, svc.importedFormat)
}

func TestTasksImportYAMLFormat(t *testing.T) {
	svc := &fakeTransferService{task: sampleTask()}
	app := testApp(http.MethodPost, "/api/tasks/import", tasksImportHandler, map[string]any{"transfer": svc})

	body := "name: news-crawl\nurls:\n  - https://example.com/news\n"
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/import?format=yaml", strings.NewReader(body))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, services.FormatYAML, svc.importedFormat)
}

func TestTasksImportRejectsEmptyBody(t *testing.T) {
	svc := &fakeTransferService{}
	app := testApp(http.MethodPost, "/api/tasks/import", tasksImportHandler, map[string]any{"transfer": svc})

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/import", strings.NewReader("   \n"))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out ErrorResponse
	decodeBody(t, resp, &out)
	assert.Equal(t, "request body is required", out.Error)
	assert.Nil(t, svc.importedBody)
}

func TestTasksImportInvalidDefinition(t *testing.T) {
	svc := &fakeTransferService{err: eris.Wrap(services.ErrInvalid, "invalid JSON task definition: unexpected end of JSON input")}
	app := testApp(http.MethodPost, "/api/tasks/import", tasksImportHandler, map[string]any{"transfer": svc})

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/import", strings.NewReader(`{"name":`))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out ErrorResponse
	decodeBody(t, resp, &out)
	assert.Contains(t, out.Error, "invalid JSON task definition")
}
