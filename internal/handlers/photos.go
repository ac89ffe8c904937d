package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"fotacos/internal/imageproc"
	"fotacos/internal/models"
	"fotacos/internal/services"
)

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case services.ValidationError.Has(err), imageproc.DecodeError.Has(err):
		return http.StatusBadRequest
	case services.NotFoundError.Has(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func sendError(c *fiber.Ctx, err error) error {
	return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
}

func photoID(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	return id, err == nil && id > 0
}

// ListPhotosHandler returns every photo, newest first
func ListPhotosHandler(photoService *services.PhotoService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		photos, err := photoService.List(c.Context())
		if err != nil {
			return sendError(c, err)
		}
		return c.JSON(models.PhotoListResponse{Photos: photos, Total: len(photos)})
	}
}

// GetPhotoHandler returns a single photo by id
func GetPhotoHandler(photoService *services.PhotoService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := photoID(c)
		if !ok {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid photo id"})
		}

		photo, err := photoService.Get(c.Context(), id)
		if err != nil {
			return sendError(c, err)
		}
		return c.JSON(photo)
	}
}

// UploadPhotoHandler stores the multipart file named "file"
func UploadPhotoHandler(photoService *services.PhotoService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "file is required"})
		}

		file, err := fileHeader.Open()
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "failed to read upload"})
		}
		defer func() { _ = file.Close() }()

		photo, err := photoService.Ingest(c.Context(), models.Upload{
			Body:        file,
			Filename:    fileHeader.Filename,
			ContentType: fileHeader.Header.Get("Content-Type"),
		})
		if err != nil {
			return sendError(c, err)
		}

		return c.Status(http.StatusCreated).JSON(photo)
	}
}

// DeletePhotoHandler deletes a photo and its files by id
func DeletePhotoHandler(photoService *services.PhotoService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := photoID(c)
		if !ok {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid photo id"})
		}

		message, err := photoService.Remove(c.Context(), id)
		if err != nil {
			return sendError(c, err)
		}

		return c.JSON(models.DeleteResponse{Message: message})
	}
}
