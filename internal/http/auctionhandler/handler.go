package auctionhandler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"auctionlane/internal/services/engine"
)

type Handler struct {
	eng engine.IAuctionEngine
}

func New(eng engine.IAuctionEngine) *Handler { return &Handler{eng: eng} }

func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/auctions", h.create)
	r.GET("/auctions/current", h.current)
	r.GET("/auctions/next", h.next)
	r.GET("/auctions/completed", h.completed)
	r.GET("/auctions/:id", h.info)
	r.POST("/auctions/:id/join", h.join)
	r.POST("/auctions/:id/bid", h.bid)
	r.POST("/auctions/:id/end", h.end)
	r.PATCH("/auctions/:id/title", h.editTitle)
	r.PATCH("/auctions/:id/description", h.editDescription)
	r.PATCH("/auctions/:id/price", h.editPrice)
}

// create starts the auction immediately or queues it, depending on the lane.
func (h *Handler) create(ginCtx *gin.Context) {
	var body CreateAuctionBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	id, err := h.eng.CreateAuction(ginCtx.Request.Context(), engine.CreateAuctionParams{
		CreatorID:     body.CreatorID,
		Title:         body.Title,
		StartPrice:    body.StartPrice,
		DurationHours: body.DurationHours,
		Description:   body.Description,
		PhotoURL:      body.PhotoURL,
		MediaType:     body.MediaType,
		CustomMessage: body.CustomMessage,
	})
	switch {
	case errors.Is(err, engine.ErrNotAdmin):
		ginCtx.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, engine.ErrInvalidPrice),
		errors.Is(err, engine.ErrInvalidDuration),
		errors.Is(err, engine.ErrEmptyTitle):
		ginCtx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case err != nil:
		ginCtx.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	default:
		ginCtx.JSON(http.StatusCreated, CreatedResponse{AuctionID: id})
	}
}

func (h *Handler) info(ginCtx *gin.Context) {
	auction, err := h.eng.GetAuction(ginCtx.Request.Context(), ginCtx.Param("id"))
	if err != nil {
		ginCtx.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if auction == nil {
		ginCtx.JSON(http.StatusNotFound, ErrorResponse{Error: "auction not found"})
		return
	}
	ginCtx.JSON(http.StatusOK, auction)
}

func (h *Handler) current(ginCtx *gin.Context) {
	auction, err := h.eng.CurrentAuction(ginCtx.Request.Context())
	if err != nil {
		ginCtx.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if auction == nil {
		ginCtx.JSON(http.StatusNotFound, ErrorResponse{Error: "no active auction"})
		return
	}
	ginCtx.JSON(http.StatusOK, auction)
}

func (h *Handler) next(ginCtx *gin.Context) {
	auction, err := h.eng.NextScheduledAuction(ginCtx.Request.Context())
	if err != nil {
		ginCtx.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if auction == nil {
		ginCtx.JSON(http.StatusNotFound, ErrorResponse{Error: "no scheduled auction"})
		return
	}
	ginCtx.JSON(http.StatusOK, auction)
}

func (h *Handler) completed(ginCtx *gin.Context) {
	var q ListCompletedQuery
	if err := ginCtx.ShouldBindQuery(&q); err != nil {
		ginCtx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	auctions, err := h.eng.ListCompletedAuctions(ginCtx.Request.Context(), q.Limit)
	if err != nil {
		ginCtx.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusOK, auctions)
}

func (h *Handler) join(ginCtx *gin.Context) {
	var body JoinAuctionBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	ok, err := h.eng.JoinAuction(ginCtx.Request.Context(), ginCtx.Param("id"), body.UserID)
	h.respondBool(ginCtx, ok, err)
}

func (h *Handler) bid(ginCtx *gin.Context) {
	var body PlaceBidBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	ok, err := h.eng.PlaceBid(ginCtx.Request.Context(), ginCtx.Param("id"), body.UserID, body.Amount)
	h.respondBool(ginCtx, ok, err)
}

func (h *Handler) end(ginCtx *gin.Context) {
	var body EndAuctionBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	ok, err := h.eng.EndAuction(ginCtx.Request.Context(), ginCtx.Param("id"), body.RequesterID)
	h.respondBool(ginCtx, ok, err)
}

func (h *Handler) editTitle(ginCtx *gin.Context) {
	var body EditTextBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	ok, err := h.eng.EditAuctionTitle(ginCtx.Request.Context(), ginCtx.Param("id"), body.Value)
	h.respondBool(ginCtx, ok, err)
}

func (h *Handler) editDescription(ginCtx *gin.Context) {
	var body EditTextBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	ok, err := h.eng.EditAuctionDescription(ginCtx.Request.Context(), ginCtx.Param("id"), body.Value)
	h.respondBool(ginCtx, ok, err)
}

func (h *Handler) editPrice(ginCtx *gin.Context) {
	var body EditPriceBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	ok, err := h.eng.EditAuctionStartPrice(ginCtx.Request.Context(), ginCtx.Param("id"), body.Value)
	h.respondBool(ginCtx, ok, err)
}

// respondBool maps the engine's pass/fail contract: business rejections are
// 409 (the client re-reads the auction to learn why), infrastructure faults
// are 500.
func (h *Handler) respondBool(ginCtx *gin.Context, ok bool, err error) {
	if err != nil {
		ginCtx.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if !ok {
		ginCtx.JSON(http.StatusConflict, ResultResponse{OK: false})
		return
	}
	ginCtx.JSON(http.StatusOK, ResultResponse{OK: true})
}
