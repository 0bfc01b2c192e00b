package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ibralab/anaterra/internal/entities"
)

const defaultGraphAPIBase = "https://graph.facebook.com/v18.0"

// WhatsAppHandler serves the Meta Cloud API webhook: GET for the
// verify-token handshake, POST for inbound messages. Replies go back out
// through the Graph API send endpoint.
type WhatsAppHandler struct {
	conv        Conversation
	verifyToken string
	accessToken string
	apiBase     string
	client      *http.Client
	logger      *slog.Logger
}

func NewWhatsAppHandler(conv Conversation, verifyToken, accessToken string, logger *slog.Logger) *WhatsAppHandler {
	return &WhatsAppHandler{
		conv:        conv,
		verifyToken: verifyToken,
		accessToken: accessToken,
		apiBase:     defaultGraphAPIBase,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
	}
}

// Verify answers Meta's subscription handshake.
func (h *WhatsAppHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	c.Status(http.StatusForbidden)
}

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Receive handles inbound messages. It always answers 200 so Meta does
// not retry: delivery failures on our side are logged, not bounced.
func (h *WhatsAppHandler) Receive(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warn("unparseable whatsapp webhook payload", "error", err)
		c.Status(http.StatusOK)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			phoneNumberID := change.Value.Metadata.PhoneNumberID
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || msg.Text.Body == "" {
					continue
				}
				reply := h.conv.ProcessMessage(c.Request.Context(), entities.ChannelWhatsApp, msg.From, msg.Text.Body)
				if err := h.send(phoneNumberID, msg.From, reply); err != nil {
					h.logger.Error("whatsapp reply delivery failed", "to", msg.From, "error", err)
				}
			}
		}
	}

	c.Status(http.StatusOK)
}

func (h *WhatsAppHandler) send(phoneNumberID, to, text string) error {
	body, err := json.Marshal(gin.H{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              gin.H{"body": text},
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/messages", h.apiBase, phoneNumberID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.accessToken)

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("graph api returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}
