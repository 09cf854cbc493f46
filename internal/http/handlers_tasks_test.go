package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dredge/internal/model"
	"dredge/internal/services"
)

type fakeTaskService struct {
	task *model.CrawlTask
	list []model.CrawlTask
	err  error

	createdInput *services.TaskInput
	updatedWith  *services.TaskUpdate
	listLimit    int
	listOffset   int
	deletedID    uuid.UUID
}

func (f *fakeTaskService) Create(_ context.Context, in services.TaskInput) (*model.CrawlTask, error) {
	f.createdInput = &in
	return f.task, f.err
}

func (f *fakeTaskService) Get(_ context.Context, _ uuid.UUID) (*model.CrawlTask, error) {
	return f.task, f.err
}

func (f *fakeTaskService) List(_ context.Context, limit, offset int) ([]model.CrawlTask, error) {
	f.listLimit, f.listOffset = limit, offset
	return f.list, f.err
}

func (f *fakeTaskService) Update(_ context.Context, _ uuid.UUID, upd services.TaskUpdate) (*model.CrawlTask, error) {
	f.updatedWith = &upd
	return f.task, f.err
}

func (f *fakeTaskService) Delete(_ context.Context, id uuid.UUID) error {
	f.deletedID = id
	return f.err
}

// testApp registers one route whose closure injects the given services
// into Locals before calling the handler, the same way the router
// middleware does in production.
func testApp(method, path string, handler fiber.Handler, locals map[string]any) *fiber.App {
	app := fiber.New()
	app.Add(method, path, func(c *fiber.Ctx) error {
		for k, v := range locals {
			c.Locals(k, v)
		}
		return handler(c)
	})
	return app
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func sampleTask() *model.CrawlTask {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &model.CrawlTask{
		ID:                   uuid.New(),
		Name:                 "news-crawl",
		Description:          "Nightly news sweep",
		URLs:                 []string{"https://example.com/news"},
		DeduplicationEnabled: true,
		FallbackMaxSizeMB:    10,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func sampleRun(taskID uuid.UUID) *model.TaskRun {
	return &model.TaskRun{
		ID:        uuid.New(),
		TaskID:    taskID,
		Status:    model.RunPending,
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestTasksCreate(t *testing.T) {
	svc := &fakeTaskService{task: sampleTask()}
	app := testApp(http.MethodPost, "/api/tasks", tasksCreateHandler, map[string]any{"tasks": svc})

	body := `{"name":"news-crawl","urls":["https://example.com/news"],"deduplication_enabled":false}`
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var out TaskResponse
	decodeBody(t, resp, &out)
	assert.True(t, out.Success)
	require.NotNil(t, out.Task)
	assert.Equal(t, "news-crawl", out.Task.Name)

	require.NotNil(t, svc.createdInput)
	assert.Equal(t, "news-crawl", svc.createdInput.Name)
	assert.Equal(t, []string{"https://example.com/news"}, svc.createdInput.URLs)
	require.NotNil(t, svc.createdInput.DeduplicationEnabled)
	assert.False(t, *svc.createdInput.DeduplicationEnabled)
}

func TestTasksCreateRejectsMalformedBody(t *testing.T) {
	svc := &fakeTaskService{}
	app := testApp(http.MethodPost, "/api/tasks", tasksCreateHandler, map[string]any{"tasks": svc})

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var out ErrorResponse
	decodeBody(t, resp, &out)
	assert.Equal(t, "BAD_REQUEST", out.Code)
	assert.Equal(t, "invalid JSON body", out.Error)
	assert.Nil(t, svc.createdInput)
}

func TestTasksCreateMapsValidationError(t *testing.T) {
	svc := &fakeTaskService{err: eris.Wrap(services.ErrInvalid, "at least one url is required")}
	app := testApp(http.MethodPost, "/api/tasks", tasksCreateHandler, map[string]any{"tasks": svc})

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(`{"name":"x"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var out ErrorResponse
	decodeBody(t, resp, &out)
	assert.Equal(t, "BAD_REQUEST", out.Code)
	assert.Contains(t, out.Error, "at least one url is required")
}

func TestTasksGet(t *testing.T) {
	task := sampleTask()
	svc := &fakeTaskService{task: task}
	app := testApp(http.MethodGet, "/api/tasks/:id", tasksGetHandler, map[string]any{"tasks": svc})

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/"+task.ID.String(), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out TaskResponse
	decodeBody(t, resp, &out)
	require.NotNil(t, out.Task)
	assert.Equal(t, task.ID, out.Task.ID)
	assert.Equal(t, task.URLs, out.Task.URLs)
}

func TestTasksGetRejectsInvalidID(t *testing.T) {
	svc := &fakeTaskService{task: sampleTask()}
	app := testApp(http.MethodGet, "/api/tasks/:id", tasksGetHandler, map[string]any{"tasks": svc})

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/not-a-uuid", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var out ErrorResponse
	decodeBody(t, resp, &out)
	assert.Equal(t, "invalid task id", out.Error)
}

func TestTasksGetMissing(t *testing.T) {
	svc := &fakeTaskService{}
	app := testApp(http.MethodGet, "/api/tasks/:id", tasksGetHandler, map[string]any{"tasks": svc})

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/"+uuid.NewString(), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var out ErrorResponse
	decodeBody(t, resp, &out)
	assert.Equal(t, "NOT_FOUND", out.Code)
	assert.Equal(t, "task not found", out.Error)
}

func TestTasksListDefaultsRange(t *testing.T) {
	svc := &fakeTaskService{list: []model.CrawlTask{*sampleTask(), *sampleTask()}}
	app := testApp(http.MethodGet, "/api/tasks", tasksListHandler, map[string]any{"tasks": svc})

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out ListTasksResponse
	decodeBody(t, resp, &out)
	assert.True(t, out.Success)
	assert.Len(t, out.Tasks, 2)
	assert.Equal(t, 100, svc.listLimit)
	assert.Equal(t, 0, svc.listOffset)
}

func TestTasksListPagination(t *testing.T) {
	svc := &fakeTaskService{}
	app := testApp(http.MethodGet, "/api/tasks", tasksListHandler, map[string]any{"tasks": svc})

	req := httptest.NewRequest(http.MethodGet, "/api/tasks?limit=5&offset=10", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, svc.listLimit)
	assert.Equal(t, 10, svc.listOffset)

	// Oversized limits are capped, not rejected.
	req = httptest.NewRequest(http.MethodGet, "/api/tasks?limit=9999", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 500, svc.listLimit)
}

func TestTasksListRejectsBadRange(t *testing.T) {
	svc := &fakeTaskService{}
	app := testApp(http.MethodGet, "/api/tasks", tasksListHandler, map[string]any{"tasks": svc})

	req := httptest.NewRequest(http.MethodGet, "/api/tasks?limit=0", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var out ErrorResponse
	decodeBody(t, resp, &out)
	assert.Equal(t, "invalid limit value", out.Error)

	req = httptest.NewRequest(http.MethodGet, "/api/tasks?offset=-1", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	decodeBody(t, resp, &out)
	assert.Equal(t, "invalid offset value", out.Error)
}

func TestTasksUpdatePartialBody(t *testing.T) {
	task := sampleTask()
	svc := &fakeTaskService{task: task}
	app := testApp(http.MethodPut, "/api/tasks/:id", tasksUpdateHandler, map[string]any{"tasks": svc})

	req := httptest.NewRequest(http.MethodPut, "/api/tasks/"+task.ID.String(),
		strings.NewReader(`{"description":"updated"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.NotNil(t, svc.updatedWith)
	assert.Nil(t, svc.updatedWith.Name)
	require.NotNil(t, svc.updatedWith.Description)
	assert.Equal(t, "updated", *svc.updatedWith.Description)
	assert.Nil(t, svc.updatedWith.URLs)
}

func TestTasksUpdateMissing(t *testing.T) {
	svc := &fakeTaskService{err: eris.Wrap(services.ErrNotFound, "task")}
	app := testApp(http.MethodPut, "/api/tasks/:id", tasksUpdateHandler, map[string]any{"tasks": svc})

	req := httptest.NewRequest(http.MethodPut, "/api/tasks/"+uuid.NewString(), strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestTasksDelete(t *testing.T) {
	svc := &fakeTaskService{}
	app := testApp(http.MethodDelete, "/api/tasks/:id", tasksDeleteHandler, map[string]any{"tasks": svc})

	id := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/tasks/"+id.String(), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, id, svc.deletedID)
}

func TestTaskRunStart(t *testing.T) {
	task := sampleTask()
	svc := &fakeRunService{run: sampleRun(task.ID)}
	app := testApp(http.MethodPost, "/api/tasks/:id/run", taskRunStartHandler, map[string]any{"runs": svc})

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/"+task.ID.String()+"/run", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var out RunResponse
	decodeBody(t, resp, &out)
	assert.True(t, out.Success)
	assert.Equal(t, "Task run started", out.Message)
	require.NotNil(t, out.Run)
	assert.Equal(t, string(model.RunPending), out.Run.Status)
	assert.Equal(t, task.ID, svc.startedTask)
}

func TestTaskRunStartMissingTask(t *testing.T) {
	svc := &fakeRunService{err: eris.Wrap(services.ErrNotFound, "task")}
	app := testApp(http.MethodPost, "/api/tasks/:id/run", taskRunStartHandler, map[string]any{"runs": svc})

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/"+uuid.NewString()+"/run", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestTaskRunsList(t *testing.T) {
	task := sampleTask()
	svc := &fakeRunService{runs: []model.TaskRun{*sampleRun(task.ID), *sampleRun(task.ID)}}
	app := testApp(http.MethodGet, "/api/tasks/:id/runs", taskRunsListHandler, map[string]any{"runs": svc})

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/"+task.ID.String()+"/runs?limit=20", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out ListRunsResponse
	decodeBody(t, resp, &out)
	assert.Len(t, out.Runs, 2)
	assert.Equal(t, 20, svc.listLimit)
}
