package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// predictionResponse mirrors the public contract of POST /predict.
type predictionResponse struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Prediction  string `json:"prediction"`
}

func (h *handler) predict(c *gin.Context) {
	upload, status, msg := readUpload(c)
	if status != 0 {
		c.JSON(status, gin.H{"error": msg})
		return
	}

	result, err := h.svc.Predictions.Predict(c.Request.Context(), upload)
	if err != nil {
		h.respondError(c, "handlers.predict", err)
		return
	}

	c.JSON(http.StatusOK, predictionResponse{
		Filename:    result.Filename,
		ContentType: result.ContentType,
		Prediction:  result.Label,
	})
}
