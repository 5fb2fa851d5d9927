package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WhatsAppSender delivers template messages through a WhatsApp Business
// API gateway.
type WhatsAppSender struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewWhatsAppSender creates a sender for the given gateway URL and bearer
// token.
func NewWhatsAppSender(baseURL, token string) *WhatsAppSender {
	return &WhatsAppSender{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type whatsAppRequest struct {
	To       string `json:"to"`
	Type     string `json:"type"`
	Template struct {
		Name     string `json:"name"`
		Language struct {
			Code string `json:"code"`
		} `json:"language"`
		Components []whatsAppComponent `json:"components"`
	} `json:"template"`
}

type whatsAppComponent struct {
	Type       string              `json:"type"`
	Parameters []whatsAppParameter `json:"parameters"`
}

type whatsAppParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Send posts one templated message. The returned status code and body
// excerpt let the dispatcher record provider-side rejections without
// treating them as transport errors.
func (s *WhatsAppSender) Send(ctx context.Context, phone, name, language string) (int, string, error) {
	req := whatsAppRequest{To: phone, Type: "template"}
	req.Template.Name = "customer_winback"
	req.Template.Language.Code = language
	req.Template.Components = []whatsAppComponent{{
		Type:       "body",
		Parameters: []whatsAppParameter{{Type: "text", Text: name}},
	}}

	body, err := json.Marshal(req)
	if err != nil {
		return 0, "", fmt.Errorf("whatsapp: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("whatsapp: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(httpReq)
	if err != nil {
		return 0, "", fmt.Errorf("whatsapp: send: %w", err)
	}
	defer resp.Body.Close()

	detail := http.StatusText(resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		if len(excerpt) > 0 {
			detail = string(excerpt)
		}
	}
	return resp.StatusCode, detail, nil
}
