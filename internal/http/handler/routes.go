package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"

	"docregistry/docs"
	"docregistry/internal/model"
	"docregistry/internal/service"
)

// uploadField is the multipart field carrying the document on upload and verify.
const uploadField = "document"

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, docSvc service.DocumentService) {
	app.Get("/health", HealthCheck(docSvc))
	app.Get("/healthz", LivenessProbe())

	app.Get("/documents", ListDocuments(docSvc))
	app.Post("/documents", UploadDocument(docSvc))
	app.Post("/documents/verify", VerifyDocument(docSvc))
	app.Get("/documents/:id", GetDocument(docSvc))

	app.Get("/swagger/*", SwaggerUI())
}

// HealthCheck godoc
// @Summary Service health
// @Description Reports registry and blob store reachability. 503 when either is down.
// @Tags health
// @Produce json
// @Success 200 {object} envelope{data=model.HealthStatus}
// @Failure 503 {object} envelope{data=model.HealthStatus}
// @Router /health [get]
func HealthCheck(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := docSvc.Health(c.UserContext())
		status := fiber.StatusOK
		if h.Status != "healthy" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(envelope{Success: true, Data: h})
	}
}

// LivenessProbe godoc
// @Summary Liveness probe
// @Tags health
// @Success 200
// @Router /healthz [get]
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// ListDocuments godoc
// @Summary List registered documents
// @Tags documents
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size (max 100)" default(50)
// @Success 200 {object} envelope{data=[]model.DocumentSummary,pagination=model.Pagination}
// @Failure 400 {object} envelope
// @Failure 500 {object} envelope
// @Router /documents [get]
func ListDocuments(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page, err := strconv.Atoi(c.Query("page", "1"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_PAGE", "page must be a number")
		}
		limit, err := strconv.Atoi(c.Query("limit", "50"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "limit must be a number")
		}

		res, err := docSvc.List(c.UserContext(), page, limit)
		if err != nil {
			return writeServiceError(c, err)
		}
		items := res.Items
		if items == nil {
			items = []model.DocumentSummary{}
		}
		return c.JSON(envelope{
			Success:    true,
			Data:       items,
			Message:    fmt.Sprintf("Found %d documents (page %d/%d)", len(items), res.Pagination.Page, res.Pagination.TotalPages),
			Pagination: res.Pagination,
		})
	}
}

// UploadDocument godoc
// @Summary Upload and register a document
// @Description Hashes the file, rejects duplicates, stores the blob and registers the hash on-chain.
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param document formData file true "Document (pdf, jpeg, png, doc, docx)"
// @Success 201 {object} envelope{data=model.DocumentRecord}
// @Failure 400 {object} envelope
// @Failure 409 {object} envelope
// @Failure 422 {object} envelope
// @Failure 500 {object} envelope
// @Failure 504 {object} envelope
// @Router /documents [post]
func UploadDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, f, ok, err := openUpload(c)
		if !ok {
			return err
		}
		defer f.Close()

		doc, err := docSvc.Register(c.UserContext(), f, fh.Filename, fh.Header.Get(fiber.HeaderContentType), fh.Size)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(envelope{
			Success: true,
			Data:    doc,
			Message: "Document uploaded and registered successfully",
		})
	}
}

// VerifyDocument godoc
// @Summary Verify a document against the registry
// @Description isValid=false is a successful answer, not an error.
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param document formData file true "Document to verify"
// @Success 200 {object} envelope{data=model.VerificationResult}
// @Failure 400 {object} envelope
// @Failure 500 {object} envelope
// @Router /documents/verify [post]
func VerifyDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, f, ok, err := openUpload(c)
		if !ok {
			return err
		}
		defer f.Close()

		res, err := docSvc.Verify(c.UserContext(), f, fh.Header.Get(fiber.HeaderContentType), fh.Size)
		if err != nil {
			return writeServiceError(c, err)
		}
		msg := "Document not found in registry"
		if res.IsValid {
			msg = "Document is registered"
		}
		return c.JSON(envelope{Success: true, Data: res, Message: msg})
	}
}

// GetDocument godoc
// @Summary Get a document by registry id
// @Tags documents
// @Produce json
// @Param id path string true "Decimal registry id"
// @Success 200 {object} envelope{data=model.DocumentRecord}
// @Failure 400 {object} envelope
// @Failure 404 {object} envelope
// @Failure 500 {object} envelope
// @Router /documents/{id} [get]
func GetDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Params("id"))
		if id == "" {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "id is required")
		}
		if n, err := strconv.ParseUint(id, 10, 64); err != nil || n == 0 {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		doc, err := docSvc.Get(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(envelope{Success: true, Data: doc})
	}
}

// SwaggerUI serves the generated API docs with the request's host and scheme.
func SwaggerUI() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	}
}

// openUpload returns the uploaded part. When ok is false the 400 response
// has already been written and err is the result of writing it.
func openUpload(c *fiber.Ctx) (fh *multipart.FileHeader, f io.ReadCloser, ok bool, err error) {
	fh, err = c.FormFile(uploadField)
	if err != nil {
		return nil, nil, false, writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "no file uploaded")
	}
	f, err = fh.Open()
	if err != nil {
		return nil, nil, false, writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
	}
	return fh, f, true, nil
}
