package api

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/filegate/internal/auth"
	"github.com/zots0127/filegate/internal/keystore"
	"github.com/zots0127/filegate/internal/listing"
	"github.com/zots0127/filegate/internal/storage"
	"github.com/zots0127/filegate/internal/upload"
)

// Stable error codes so clients can tell protocol violations and auth
// failures apart from transient storage trouble.
const (
	codeDenied          = "denied"
	codeInvalidRequest  = "invalid_request"
	codeOutOfOrder      = "out_of_order"
	codeIncomplete      = "incomplete"
	codeSessionNotFound = "session_not_found"
	codeStorageError    = "storage_error"
)

// API wires the gateway services to HTTP.
type API struct {
	authorizer *auth.Authorizer
	keys       *keystore.Store
	uploads    *upload.Manager
	files      *listing.Service
	store      storage.Store
	adminKey   string
}

func New(authorizer *auth.Authorizer, keys *keystore.Store, uploads *upload.Manager, files *listing.Service, store storage.Store, adminKey string) *API {
	return &API{
		authorizer: authorizer,
		keys:       keys,
		uploads:    uploads,
		files:      files,
		store:      store,
		adminKey:   adminKey,
	}
}

func (a *API) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", a.health)

	api := router.Group("/api")
	api.Use(a.authMiddleware())

	api.GET("/files", a.listFiles)
	api.GET("/files/:name/download", a.downloadFile)

	api.POST("/uploads", a.beginUpload)
	api.GET("/uploads/:id", a.getUpload)
	api.PUT("/uploads/:id", a.writeChunk)
	api.POST("/uploads/:id/complete", a.completeUpload)
	api.DELETE("/uploads/:id", a.abortUpload)

	admin := router.Group("/api/admin")
	admin.Use(a.adminMiddleware())

	admin.POST("/keys", a.createKey)
	admin.GET("/keys", a.listKeys)
	admin.DELETE("/keys/:id", a.revokeKey)
}

func (a *API) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *API) listFiles(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	search := c.Query("search")

	result, err := a.files.List(c.Request.Context(), search, page)
	if err != nil {
		log.Printf("List files failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Error fetching files",
			"code":  codeStorageError,
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *API) downloadFile(c *gin.Context) {
	name := c.Param("name")

	reader, err := a.store.OpenRead(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "File not found",
			"code":  codeStorageError,
		})
		return
	}
	defer reader.Close()

	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		log.Printf("Stream %s failed: %v", name, err)
	}
}

type beginUploadRequest struct {
	FileName  string `json:"fileName"`
	TotalSize int64  `json:"totalSize"`
}

func (a *API) beginUpload(c *gin.Context) {
	var req beginUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
			"code":  codeInvalidRequest,
		})
		return
	}

	sess, err := a.uploads.Begin(c.Request.Context(), req.FileName, req.TotalSize, c.GetString(keyIDContextKey))
	if err != nil {
		a.uploadError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// getUpload reports the session state, letting a client resume from the
// last acknowledged offset after an interruption.
func (a *API) getUpload(c *gin.Context) {
	sess, ok := a.uploads.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Upload session not found",
			"code":  codeSessionNotFound,
		})
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (a *API) writeChunk(c *gin.Context) {
	offset, err := strconv.ParseInt(c.Query("offset"), 10, 64)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing or invalid offset",
			"code":  codeInvalidRequest,
		})
		return
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read request body",
			"code":  codeInvalidRequest,
		})
		return
	}

	received, err := a.uploads.WriteChunk(c.Request.Context(), c.Param("id"), offset, data)
	if err != nil {
		a.uploadError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bytesReceived": received})
}

func (a *API) completeUpload(c *gin.Context) {
	info, err := a.uploads.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.uploadError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing.FileRecord{
		Name:      info.Name,
		UpdatedAt: info.UpdatedAt,
		Size:      info.Size,
	})
}

func (a *API) abortUpload(c *gin.Context) {
	if err := a.uploads.Abort(c.Request.Context(), c.Param("id")); err != nil {
		a.uploadError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type createKeyRequest struct {
	Description string `json:"description"`
}

func (a *API) createKey(c *gin.Context) {
	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
			"code":  codeInvalidRequest,
		})
		return
	}

	key, err := a.keys.Create(c.Request.Context(), req.Description)
	if err != nil {
		log.Printf("Create key failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create key",
			"code":  codeStorageError,
		})
		return
	}
	// The only response that ever carries the unmasked secret.
	c.JSON(http.StatusCreated, key)
}

func (a *API) listKeys(c *gin.Context) {
	keys, err := a.keys.List(c.Request.Context())
	if err != nil {
		log.Printf("List keys failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list keys",
			"code":  codeStorageError,
		})
		return
	}

	masked := make([]keystore.APIKey, 0, len(keys))
	for _, k := range keys {
		masked = append(masked, k.Masked())
	}
	c.JSON(http.StatusOK, gin.H{"keys": masked})
}

func (a *API) revokeKey(c *gin.Context) {
	err := a.keys.Revoke(c.Request.Context(), c.Param("id"))
	if errors.Is(err, keystore.ErrKeyNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Key not found",
			"code":  codeInvalidRequest,
		})
		return
	}
	if err != nil {
		log.Printf("Revoke key failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to revoke key",
			"code":  codeStorageError,
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// uploadError maps session manager errors onto the response taxonomy.
func (a *API) uploadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, upload.ErrDenied):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": codeDenied})
	case errors.Is(err, upload.ErrInvalidName), errors.Is(err, upload.ErrInvalidSize):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": codeInvalidRequest})
	case errors.Is(err, upload.ErrOutOfOrder):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": codeOutOfOrder})
	case errors.Is(err, upload.ErrIncomplete):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": codeIncomplete})
	case errors.Is(err, upload.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": codeSessionNotFound})
	default:
		var storageErr *storage.Error
		if errors.As(err, &storageErr) {
			log.Printf("Upload storage failure: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "code": codeStorageError})
			return
		}
		log.Printf("Upload failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "code": codeStorageError})
	}
}
