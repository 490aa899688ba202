package userhandler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"auctionlane/internal/services/engine"
)

type RegisterBody struct {
	UserID     int64  `json:"user_id"  binding:"required"`
	Username   string `json:"username" binding:"required"`
	ChatHandle string `json:"chat_handle"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
}

type BlockBody struct {
	RequesterID int64 `json:"requester_id" binding:"required"`
	Blocked     *bool `json:"blocked"      binding:"required"`
}

type ResultResponse struct {
	OK bool `json:"ok"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type Handler struct {
	eng engine.IAuctionEngine
}

func New(eng engine.IAuctionEngine) *Handler { return &Handler{eng: eng} }

func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/users", h.register)
	r.GET("/users/:id/status", h.status)
	r.POST("/users/:id/block", h.block)
}

func (h *Handler) register(ginCtx *gin.Context) {
	var body RegisterBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	ok, err := h.eng.RegisterUser(ginCtx.Request.Context(), engine.RegisterUserParams{
		UserID:     body.UserID,
		Username:   body.Username,
		ChatHandle: body.ChatHandle,
		FirstName:  body.FirstName,
		LastName:   body.LastName,
	})
	if err != nil {
		ginCtx.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if !ok {
		ginCtx.JSON(http.StatusConflict, ErrorResponse{Error: "username already taken"})
		return
	}
	ginCtx.JSON(http.StatusCreated, ResultResponse{OK: true})
}

func (h *Handler) status(ginCtx *gin.Context) {
	userID, err := strconv.ParseInt(ginCtx.Param("id"), 10, 64)
	if err != nil {
		ginCtx.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}
	status, err := h.eng.UserStatus(ginCtx.Request.Context(), userID)
	if err != nil {
		ginCtx.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusOK, status)
}

func (h *Handler) block(ginCtx *gin.Context) {
	userID, err := strconv.ParseInt(ginCtx.Param("id"), 10, 64)
	if err != nil {
		ginCtx.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}
	var body BlockBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	ok, err := h.eng.SetUserBlocked(ginCtx.Request.Context(), body.RequesterID, userID, *body.Blocked)
	if err != nil {
		ginCtx.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if !ok {
		ginCtx.JSON(http.StatusForbidden, ResultResponse{OK: false})
		return
	}
	ginCtx.JSON(http.StatusOK, ResultResponse{OK: true})
}
