package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/TrueFaces/CNN-FineTuning/internal/auth"
	"github.com/TrueFaces/CNN-FineTuning/internal/logging"
	"github.com/TrueFaces/CNN-FineTuning/internal/preprocess"
	"github.com/TrueFaces/CNN-FineTuning/internal/repository"
	"github.com/TrueFaces/CNN-FineTuning/internal/storage"
	"github.com/TrueFaces/CNN-FineTuning/internal/usecase"
)

// MaxUploadSize bounds the size of a single uploaded image.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and part headers on top of the file itself.
const multipartOverhead = 1 << 20

// PredictionService classifies uploads.
type PredictionService interface {
	Predict(ctx context.Context, upload usecase.Upload) (*usecase.Prediction, error)
}

// UserService manages accounts.
type UserService interface {
	Register(ctx context.Context, in usecase.RegisterInput) (*repository.User, error)
	Authenticate(ctx context.Context, username, password string) (*repository.User, error)
	Get(ctx context.Context, id uint) (*repository.User, error)
	List(ctx context.Context, limit, offset int) ([]*repository.User, error)
	Update(ctx context.Context, actorID, id uint, in usecase.UpdateUserInput) (*repository.User, error)
	Delete(ctx context.Context, actorID, id uint) error
}

// ImageService manages saved images.
type ImageService interface {
	Save(ctx context.Context, ownerID uint, upload usecase.Upload) (*repository.ImageRecord, error)
	Get(ctx context.Context, ownerID uint, publicID string) (*repository.ImageRecord, error)
	List(ctx context.Context, ownerID uint, limit, offset int) ([]*repository.ImageRecord, error)
	Rename(ctx context.Context, ownerID uint, publicID, filename string) (*repository.ImageRecord, error)
	Delete(ctx context.Context, ownerID uint, publicID string) error
	Content(ctx context.Context, ownerID uint, publicID string) (io.ReadCloser, *repository.ImageRecord, error)
	Stats(ctx context.Context, ownerID uint) (*usecase.ImageStats, error)
}

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	Issue(subject string) (string, time.Time, error)
}

// Services bundles everything the routes depend on.
type Services struct {
	Predictions PredictionService
	Users       UserService
	Images      ImageService
	Tokens      TokenIssuer
	Logger      *zap.Logger
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc Services, authMiddleware gin.HandlerFunc) {
	if svc.Logger == nil {
		svc.Logger = zap.NewNop()
	}
	h := &handler{svc: svc, logger: svc.Logger.Named("handlers")}

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "runnig"})
	})
	registerDocs(router)

	router.POST("/predict", h.predict)

	authGroup := router.Group("/auth")
	authGroup.POST("/register", h.register)
	authGroup.POST("/login", h.login)

	users := router.Group("/users", authMiddleware)
	users.GET("", h.listUsers)
	users.GET("/me", h.me)
	users.GET("/:id", h.getUser)
	users.PUT("/:id", h.updateUser)
	users.DELETE("/:id", h.deleteUser)

	images := router.Group("/images", authMiddleware)
	images.POST("", h.saveImage)
	images.GET("", h.listImages)
	images.GET("/stats", h.imageStats)
	images.GET("/:id", h.getImage)
	images.GET("/:id/content", h.imageContent)
	images.PUT("/:id", h.renameImage)
	images.DELETE("/:id", h.deleteImage)
}

type handler struct {
	svc    Services
	logger *zap.Logger
}

// readUpload pulls the "file" part out of a multipart request.
func readUpload(c *gin.Context) (usecase.Upload, int, string) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)

	file, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge) {
			return usecase.Upload{}, http.StatusRequestEntityTooLarge, "file too large"
		}
		return usecase.Upload{}, http.StatusBadRequest, "file is required"
	}
	if file.Size > MaxUploadSize {
		return usecase.Upload{}, http.StatusRequestEntityTooLarge, "file too large"
	}

	src, err := file.Open()
	if err != nil {
		return usecase.Upload{}, http.StatusBadRequest, "unable to open file"
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return usecase.Upload{}, http.StatusInternalServerError, "failed to read file"
	}

	return usecase.Upload{
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
	}, 0, ""
}

// currentUserID returns the id injected by the auth middleware.
func currentUserID(c *gin.Context) (uint, bool) {
	id, ok := auth.GetNumericUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
		return 0, false
	}
	return id, true
}

func pagination(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return limit, offset
}

// respondError maps domain errors to HTTP responses. Anything unexpected is
// logged and reported as a bare 500.
func (h *handler) respondError(c *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, storage.ErrObjectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, repository.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, usecase.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, preprocess.ErrImageTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image dimensions too large"})
	case errors.Is(err, usecase.ErrInvalidInput), errors.Is(err, auth.ErrPasswordTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, usecase.ErrStorageDisabled):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		logging.WithOperation(h.logger, operation, logging.RequestID(c.Request.Context())).
			Error("request failed", zap.Error(err), zap.String("failed_operation", logging.OperationOf(err)))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
