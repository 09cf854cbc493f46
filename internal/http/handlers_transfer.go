package http

import (
	"bytes"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"dredge/internal/services"
)

func tasksExportHandler(c *fiber.Ctx) error {
	transfer := c.Locals("transfer").(services.TransferService)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid task id",
		})
	}

	format, err := services.ParseTransferFormat(c.Query("format"))
	if err != nil {
		return serviceError(c, err)
	}

	data, err := transfer.Export(c.Context(), id, format)
	if err != nil {
		return serviceError(c, err)
	}

	ext := "json"
	contentType := "application/json"
	if format == services.FormatYAML {
		ext = "yaml"
		contentType = "application/x-yaml"
	}
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=task_%s.%s", id, ext))
	c.Set(fiber.HeaderContentType, contentType)
	return c.Send(data)
}

func tasksImportHandler(c *fiber.Ctx) error {
	transfer := c.Locals("transfer").(services.TransferService)

	format, err := services.ParseTransferFormat(c.Query("format"))
	if err != nil {
		return serviceError(c, err)
	}

	body := c.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "request body is required",
		})
	}

	task, err := transfer.Import(c.Context(), body, format)
	if err != nil {
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(TaskResponse{Success: true, Task: taskItem(task)})
}
