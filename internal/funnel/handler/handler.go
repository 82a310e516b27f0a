// Package handler exposes the funnel board over HTTP.
package handler

import (
	"context"
	"net/http"

	"serenata_backend/internal/funnel/domain"
	"serenata_backend/internal/funnel/service"
	"serenata_backend/internal/funnel/transport"
	"serenata_backend/internal/orders/gateway"
	ordersrepo "serenata_backend/internal/orders/repository"
	"serenata_backend/platform/httpkit"
	"serenata_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

const checkoutQRSize = 512

// OrderGetter looks up a single order for the checkout QR endpoint.
type OrderGetter interface {
	GetStatus(ctx context.Context, orderID uuid.UUID) (ordersrepo.Order, error)
}

// Handler handles HTTP requests for the funnel board.
type Handler struct {
	svc      *service.Service
	val      *validator.Validator
	orders   OrderGetter
	resolver service.CheckoutResolver
}

// New creates a new funnel handler.
func New(svc *service.Service, val *validator.Validator, orders OrderGetter, resolver service.CheckoutResolver) *Handler {
	return &Handler{svc: svc, val: val, orders: orders, resolver: resolver}
}

// RegisterRoutes registers the funnel board routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.Board)
	rg.POST("", h.Enroll)
	rg.POST("/reload", h.Reload)
	rg.POST("/bulk-send", h.BulkSend)
	rg.POST("/dispatch-pending", h.DispatchPending)
	rg.GET("/:id", h.GetByID)
	rg.GET("/:id/messages", h.Messages)
	rg.GET("/:id/checkout-qr", h.CheckoutQR)
	rg.POST("/:id/move", h.Move)
	rg.POST("/:id/pause", h.Pause)
	rg.POST("/:id/resume", h.Resume)
	rg.POST("/:id/send", h.Send)
	rg.POST("/:id/send-step", h.SendStep)
	rg.DELETE("/:id", h.Delete)
}

// Board returns the three-column board snapshot from the cache.
func (h *Handler) Board(c *gin.Context) {
	pending, err := h.svc.Board(domain.BucketPending)
	if httpkit.HandleError(c, err) {
		return
	}
	completed, err := h.svc.Board(domain.BucketCompleted)
	if httpkit.HandleError(c, err) {
		return
	}
	exited, err := h.svc.Board(domain.BucketExited)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.BoardResponse{
		Pending:   transport.EntitiesFromDomain(pending),
		Completed: transport.EntitiesFromDomain(completed),
		Exited:    transport.EntitiesFromDomain(exited),
	})
}

// Reload refreshes the board cache from the database.
func (h *Handler) Reload(c *gin.Context) {
	if err := h.svc.ReloadBoard(c.Request.Context()); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": "reloaded"})
}

// Enroll adds a pending order to the funnel.
func (h *Handler) Enroll(c *gin.Context) {
	var req transport.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	entity, err := h.svc.CreateForOrder(c.Request.Context(), req.OrderID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.EntityFromDomain(entity))
}

// GetByID returns a single entity.
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	entity, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.EntityFromDomain(entity))
}

// Messages returns the dispatch history for an entity, newest first.
func (h *Handler) Messages(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	messages, err := h.svc.Messages(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.MessagesFromDomain(messages))
}

// Move transitions an entity between buckets on operator authority.
func (h *Handler) Move(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	if err := h.svc.Move(c.Request.Context(), id, domain.Bucket(req.To), req.ExitReason); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": "moved", "to": req.To})
}

// Pause suspends automated dispatch for an entity.
func (h *Handler) Pause(c *gin.Context) {
	h.setPaused(c, true)
}

// Resume lifts a pause.
func (h *Handler) Resume(c *gin.Context) {
	h.setPaused(c, false)
}

func (h *Handler) setPaused(c *gin.Context, paused bool) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.svc.SetPaused(c.Request.Context(), id, paused); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"isPaused": paused})
}

// Send dispatches the entity's current campaign step immediately.
func (h *Handler) Send(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	msg, err := h.svc.SendNow(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.MessagesFromDomain([]domain.Message{msg})[0])
}

// SendStep dispatches a specific campaign step.
func (h *Handler) SendStep(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.SendStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	msg, err := h.svc.SendStep(c.Request.Context(), id, req.Step)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.MessagesFromDomain([]domain.Message{msg})[0])
}

// BulkSend dispatches the first campaign message to a set of entities.
func (h *Handler) BulkSend(c *gin.Context) {
	var req transport.BulkSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.SendBulk(c.Request.Context(), req.IDs, nil)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.BulkFromResult(result))
}

// DispatchPending runs a bulk send over the entire pending bucket.
func (h *Handler) DispatchPending(c *gin.Context) {
	result, err := h.svc.DispatchAllPending(c.Request.Context(), nil)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.BulkFromResult(result))
}

// CheckoutQR renders the entity's checkout link as a PNG QR code.
func (h *Handler) CheckoutQR(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	entity, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	order, err := h.orders.GetStatus(c.Request.Context(), entity.OrderID)
	if httpkit.HandleError(c, err) {
		return
	}

	png, err := gateway.CheckoutQR(h.resolver.Resolve(order), checkoutQRSize)
	if httpkit.HandleError(c, err) {
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// Delete removes an entity and its message history.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": "deleted"})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}
