// Package whatsapp sends order notifications over WhatsApp through the Meta
// Cloud API or Twilio.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/httputil"
)

// ErrDisabled is returned by the no-op sender.
var ErrDisabled = errors.New("whatsapp notifications are disabled")

// ErrInvalidRecipient is returned for numbers that are not Indian mobiles.
var ErrInvalidRecipient = errors.New("invalid whatsapp recipient")

// Sender delivers a text message to an E.164 phone number and returns the
// provider's message id.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
	Provider() string
}

// Nop is used when no provider is configured.
type Nop struct{}

func (Nop) Send(context.Context, string, string) (string, error) { return "", ErrDisabled }
func (Nop) Provider() string                                     { return "none" }

// --- Meta Cloud API ---------------------------------------------------------

// MetaConfig configures the Graph API sender.
type MetaConfig struct {
	AccessToken   string
	PhoneNumberID string
	APIVersion    string
	// BaseURL overrides https://graph.facebook.com.
	BaseURL string
}

// Meta sends through POST /{version}/{phone_number_id}/messages.
type Meta struct {
	api  *httputil.APIClient
	path string
}

// NewMeta creates a Meta Cloud API sender.
func NewMeta(cfg MetaConfig) (*Meta, error) {
	if cfg.AccessToken == "" || cfg.PhoneNumberID == "" {
		return nil, errors.New("meta access token and phone number id are required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://graph.facebook.com"
	}
	version := cfg.APIVersion
	if version == "" {
		version = "v19.0"
	}
	return &Meta{
		api:  httputil.NewAPIClient(httputil.APIClientConfig{BaseURL: base, Token: cfg.AccessToken}),
		path: fmt.Sprintf("/%s/%s/messages", version, cfg.PhoneNumberID),
	}, nil
}

func (m *Meta) Provider() string { return "meta" }

type metaMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             metaText `json:"text"`
}

type metaText struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type metaResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (m *Meta) Send(ctx context.Context, to, body string) (string, error) {
	phone, ok := order.NormalizePhone(to)
	if !ok {
		return "", ErrInvalidRecipient
	}
	resp, err := m.api.Post(ctx, m.path, metaMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		// Graph expects digits without the leading plus.
		To:   strings.TrimPrefix(phone, "+"),
		Type: "text",
		Text: metaText{Body: body},
	})
	if err != nil {
		return "", fmt.Errorf("meta send: %w", err)
	}
	var out metaResponse
	if err := httputil.DecodeResponse(resp, &out); err != nil {
		return "", fmt.Errorf("meta send: %w", err)
	}
	if len(out.Messages) == 0 {
		return "", nil
	}
	return out.Messages[0].ID, nil
}

// --- Twilio -----------------------------------------------------------------

type twilioMessages interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// TwilioConfig configures the Twilio sender.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	// From is the WhatsApp-enabled sender number, with or without the
	// whatsapp: prefix.
	From string
}

// Twilio sends through the Programmable Messaging API.
type Twilio struct {
	api  twilioMessages
	from string
}

// NewTwilio creates a Twilio sender.
func NewTwilio(cfg TwilioConfig) (*Twilio, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" {
		return nil, errors.New("twilio account sid, auth token and sender are required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Twilio{api: client.Api, from: whatsappAddress(cfg.From)}, nil
}

func (t *Twilio) Provider() string { return "twilio" }

func (t *Twilio) Send(ctx context.Context, to, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	phone, ok := order.NormalizePhone(to)
	if !ok {
		return "", ErrInvalidRecipient
	}
	params := &twilioapi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(whatsappAddress(phone))
	params.SetBody(body)

	msg, err := t.api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("twilio send: %w", err)
	}
	if msg == nil || msg.Sid == nil {
		return "", nil
	}
	return *msg.Sid, nil
}

func whatsappAddress(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}
