package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/ibralab/anaterra/internal/entities"
	"github.com/ibralab/anaterra/internal/usecases"
)

// EscalationAdmin is the back-office view of the ticket queue.
type EscalationAdmin interface {
	ListPending(ctx context.Context) ([]entities.EscalationTicket, error)
	Resolve(ctx context.Context, id int64) error
}

// Bridge exposes the WhatsApp multidevice pairing state to the admin UI.
type Bridge interface {
	GetQR() string
	IsLoggedIn() bool
}

type AdminHandler struct {
	escalations EscalationAdmin
	catalog     *usecases.CatalogAdmin
	bridge      Bridge // nil when the bridge is disabled
	logger      *slog.Logger
}

func NewAdminHandler(escalations EscalationAdmin, catalog *usecases.CatalogAdmin, bridge Bridge, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{escalations: escalations, catalog: catalog, bridge: bridge, logger: logger}
}

type ticketResponse struct {
	ID          int64     `json:"id"`
	SessionKey  string    `json:"sessionKey"`
	CPF         string    `json:"cpf,omitempty"`
	Channel     string    `json:"channel"`
	Reason      string    `json:"reason"`
	LastMessage string    `json:"lastMessage"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (h *AdminHandler) ListEscalations(c *gin.Context) {
	tickets, err := h.escalations.ListPending(c.Request.Context())
	if err != nil {
		h.logger.Error("escalation listing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list escalations"})
		return
	}

	out := make([]ticketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, ticketResponse{
			ID:          t.ID,
			SessionKey:  t.SessionKey,
			CPF:         t.CPF,
			Channel:     string(t.Channel),
			Reason:      t.Reason,
			LastMessage: t.LastMessage,
			CreatedAt:   t.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"escalations": out})
}

func (h *AdminHandler) ResolveEscalation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ticket id"})
		return
	}
	if err := h.escalations.Resolve(c.Request.Context(), id); err != nil {
		h.logger.Error("escalation resolve failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resolve ticket"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

type analysisRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description"`
	Price       float64 `json:"price" binding:"required"`
	Unit        string  `json:"unit"`
	Type        string  `json:"type"`
	Lab         string  `json:"lab" binding:"required"`
}

func (r analysisRequest) toItem() entities.CatalogItem {
	return entities.CatalogItem{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Unit:        r.Unit,
		Type:        r.Type,
		Lab:         r.Lab,
	}
}

func (h *AdminHandler) ListAnalyses(c *gin.Context) {
	items, err := h.catalog.List(c.Request.Context())
	if err != nil {
		h.logger.Error("catalog listing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list analyses"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": items})
}

func (h *AdminHandler) CreateAnalysis(c *gin.Context) {
	var req analysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, price and lab are required"})
		return
	}

	id, err := h.catalog.Save(c.Request.Context(), req.toItem())
	if err != nil {
		h.logger.Error("analysis create failed", "name", req.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save analysis"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *AdminHandler) CreateAnalysesBatch(c *gin.Context) {
	var reqs []analysisRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected a json array of analyses"})
		return
	}

	items := make([]entities.CatalogItem, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, r.toItem())
	}

	saved, err := h.catalog.SaveBatch(c.Request.Context(), items)
	if err != nil {
		h.logger.Error("analysis batch failed", "saved", saved, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "batch failed", "saved": saved})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"saved": saved})
}

func (h *AdminHandler) DeleteAnalysis(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid analysis id"})
		return
	}
	if err := h.catalog.Delete(c.Request.Context(), id); err != nil {
		h.logger.Error("analysis delete failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete analysis"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *AdminHandler) GenerateContexts(c *gin.Context) {
	updated, err := h.catalog.GenerateContexts(c.Request.Context())
	if err != nil {
		h.logger.Error("context generation failed", "updated", updated, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "context generation failed", "updated": updated})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *AdminHandler) RecomputeEmbeddings(c *gin.Context) {
	count, err := h.catalog.RecomputeEmbeddings(c.Request.Context())
	if err != nil {
		h.logger.Error("embedding recompute failed", "done", count, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "embedding recompute failed", "done": count})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recomputed": count})
}

// BridgeQR serves the whatsmeow pairing code as a PNG while the bridge
// waits for a phone to scan it.
func (h *AdminHandler) BridgeQR(c *gin.Context) {
	if h.bridge == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "whatsapp bridge is disabled"})
		return
	}
	if h.bridge.IsLoggedIn() {
		c.JSON(http.StatusOK, gin.H{"status": "already paired"})
		return
	}
	code := h.bridge.GetQR()
	if code == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pairing code available yet"})
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not render qr code"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
