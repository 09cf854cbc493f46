package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"dredge/internal/services"
)

func tasksCreateHandler(c *fiber.Ctx) error {
	tasks := c.Locals("tasks").(services.TaskService)

	var req TaskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid JSON body",
		})
	}

	task, err := tasks.Create(c.Context(), taskInput(req))
	if err != nil {
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(TaskResponse{
		Success: true,
		Task:    taskItem(task),
	})
}

func tasksListHandler(c *fiber.Ctx) error {
	tasks := c.Locals("tasks").(services.TaskService)

	limit, offset, ok := listRange(c)
	if !ok {
		return nil
	}

	list, err := tasks.List(c.Context(), limit, offset)
	if err != nil {
		return serviceError(c, err)
	}

	items := make([]TaskItem, 0, len(list))
	for i := range list {
		items = append(items, *taskItem(&list[i]))
	}
	return c.JSON(ListTasksResponse{Success: true, Tasks: items})
}

func tasksGetHandler(c *fiber.Ctx) error {
	tasks := c.Locals("tasks").(services.TaskService)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid task id",
		})
	}

	task, err := tasks.Get(c.Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	if task == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Success: false,
			Code:    "NOT_FOUND",
			Error:   "task not found",
		})
	}

	return c.JSON(TaskResponse{Success: true, Task: taskItem(task)})
}

func tasksUpdateHandler(c *fiber.Ctx) error {
	tasks := c.Locals("tasks").(services.TaskService)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid task id",
		})
	}

	var req TaskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid JSON body",
		})
	}

	task, err := tasks.Update(c.Context(), id, taskUpdate(req))
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(TaskResponse{Success: true, Task: taskItem(task)})
}

func tasksDeleteHandler(c *fiber.Ctx) error {
	tasks := c.Locals("tasks").(services.TaskService)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid task id",
		})
	}

	if err := tasks.Delete(c.Context(), id); err != nil {
		return serviceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func taskRunStartHandler(c *fiber.Ctx) error {
	runs := c.Locals("runs").(services.RunService)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid task id",
		})
	}

	run, err := runs.Start(c.Context(), id)
	if err != nil {
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(RunResponse{
		Success: true,
		Run:     runItem(run),
		Message: "Task run started",
	})
}

func taskRunsListHandler(c *fiber.Ctx) error {
	runs := c.Locals("runs").(services.RunService)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid task id",
		})
	}

	limit, offset, ok := listRange(c)
	if !ok {
		return nil
	}

	list, err := runs.ListByTask(c.Context(), id, limit, offset)
	if err != nil {
		return serviceError(c, err)
	}

	items := make([]RunItem, 0, len(list))
	for i := range list {
		items = append(items, *runItem(&list[i]))
	}
	return c.JSON(ListRunsResponse{Success: true, Runs: items})
}

// listRange parses the limit/offset query parameters, writing the 400
// itself when a value is malformed.
func listRange(c *fiber.Ctx) (limit, offset int, ok bool) {
	limit = 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			_ = c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Success: false,
				Code:    "BAD_REQUEST",
				Error:   "invalid limit value",
			})
			return 0, 0, false
		}
		if n > 500 {
			n = 500
		}
		limit = n
	}

	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			_ = c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Success: false,
				Code:    "BAD_REQUEST",
				Error:   "invalid offset value",
			})
			return 0, 0, false
		}
		offset = n
	}

	return limit, offset, true
}
