package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/TrueFaces/CNN-FineTuning/internal/usecase"
)

type updateUserRequest struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
	Password *string `json:"password"`
}

func userIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return uint(id), true
}

func (h *handler) me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	user, err := h.svc.Users.Get(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, "handlers.me", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *handler) listUsers(c *gin.Context) {
	limit, offset := pagination(c)
	users, err := h.svc.Users.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.respondError(c, "handlers.list_users", err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *handler) getUser(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	user, err := h.svc.Users.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "handlers.get_user", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *handler) updateUser(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := userIDParam(c)
	if !ok {
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := h.svc.Users.Update(c.Request.Context(), actorID, id, usecase.UpdateUserInput{
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		h.respondError(c, "handlers.update_user", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *handler) deleteUser(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := userIDParam(c)
	if !ok {
		return
	}

	if err := h.svc.Users.Delete(c.Request.Context(), actorID, id); err != nil {
		h.respondError(c, "handlers.delete_user", err)
		return
	}
	c.Status(http.StatusNoContent)
}
