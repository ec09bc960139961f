package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type renameImageRequest struct {
	Filename string `json:"filename" binding:"required"`
}

func (h *handler) saveImage(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}
	upload, status, msg := readUpload(c)
	if status != 0 {
		c.JSON(status, gin.H{"error": msg})
		return
	}

	record, err := h.svc.Images.Save(c.Request.Context(), ownerID, upload)
	if err != nil {
		h.respondError(c, "handlers.save_image", err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *handler) listImages(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}
	limit, offset := pagination(c)
	records, err := h.svc.Images.List(c.Request.Context(), ownerID, limit, offset)
	if err != nil {
		h.respondError(c, "handlers.list_images", err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *handler) getImage(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}
	record, err := h.svc.Images.Get(c.Request.Context(), ownerID, c.Param("id"))
	if err != nil {
		h.respondError(c, "handlers.get_image", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *handler) imageContent(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}
	body, record, err := h.svc.Images.Content(c.Request.Context(), ownerID, c.Param("id"))
	if err != nil {
		h.respondError(c, "handlers.image_content", err)
		return
	}
	defer body.Close()

	contentType := record.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", "inline; filename="+strconv.Quote(record.Filename))
	c.DataFromReader(http.StatusOK, record.SizeBytes, contentType, body, nil)
}

func (h *handler) renameImage(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req renameImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename is required"})
		return
	}

	record, err := h.svc.Images.Rename(c.Request.Context(), ownerID, c.Param("id"), req.Filename)
	if err != nil {
		h.respondError(c, "handlers.rename_image", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *handler) deleteImage(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}
	if err := h.svc.Images.Delete(c.Request.Context(), ownerID, c.Param("id")); err != nil {
		h.respondError(c, "handlers.delete_image", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) imageStats(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}
	stats, err := h.svc.Images.Stats(c.Request.Context(), ownerID)
	if err != nil {
		h.respondError(c, "handlers.image_stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
