package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"dredge/internal/services"
)

func runsGetHandler(c *fiber.Ctx) error {
	runs := c.Locals("runs").(services.RunService)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid run id",
		})
	}

	run, err := runs.Get(c.Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	if run == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Success: false,
			Code:    "NOT_FOUND",
			Error:   "run not found",
		})
	}

	return c.JSON(RunResponse{Success: true, Run: runItem(run)})
}

func runsResultHandler(c *fiber.Ctx) error {
	runs := c.Locals("runs").(services.RunService)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid run id",
		})
	}

	result, err := runs.Result(c.Context(), id)
	if err != nil {
		return serviceError(c, err)
	}

	docs := make([]DocumentItem, 0, len(result.Documents))
	for _, d := range result.Documents {
		docs = append(docs, documentItem(d))
	}
	images := make([]ImageItem, 0, len(result.Images))
	for _, img := range result.Images {
		images = append(images, imageItem(img))
	}
	attachments := make([]AttachmentItem, 0, len(result.Attachments))
	for _, att := range result.Attachments {
		attachments = append(attachments, attachmentItem(att))
	}

	return c.JSON(RunResultResponse{
		Success:     true,
		Run:         runItem(result.Run),
		Documents:   docs,
		Images:      images,
		Attachments: attachments,
	})
}

func runsLogsHandler(c *fiber.Ctx) error {
	runs := c.Locals("runs").(services.RunService)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid run id",
		})
	}

	logs, err := runs.Logs(c.Context(), id)
	if err != nil {
		return serviceError(c, err)
	}

	message := "Use manifest_url to download run_manifest.json, or access the bucket directly"
	if logs.ErrorLogURL != "" {
		message += ". Error log available at error_log_url"
	}

	return c.JSON(RunLogsResponse{
		Success:     true,
		RunID:       logs.RunID.String(),
		StoragePath: logs.StoragePath,
		LogsPath:    logs.LogsPath,
		ManifestURL: logs.ManifestURL,
		ErrorLogURL: logs.ErrorLogURL,
		Message:     message,
	})
}
