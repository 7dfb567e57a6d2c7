// Package sender turns work items into signed HTTP requests.
//
// The body is serialized once, signed, and the request reads the same
// byte slice, so the ms-signature header always covers exactly the bytes
// on the wire.
package sender

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"webhook-dispatcher/internal/models"

	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"
)

const (
	SignatureHeader = "ms-signature"
	signaturePrefix = "sha256="
	contentTypeJSON = "application/json"
)

// ErrInvalidSignature is returned for any signature mismatch. It carries
// no detail on purpose.
var ErrInvalidSignature = errors.New("webhook verification failed")

// headers the sender owns; a webhook cannot override them
var reservedHeaders = map[string]bool{
	http.CanonicalHeaderKey(SignatureHeader): true,
	"Content-Type":                           true,
	"Content-Length":                         true,
	"Host":                                   true,
	"Transfer-Encoding":                      true,
}

type body struct {
	ID            string                `json:"Id"`
	Attempt       int                   `json:"Attempt"`
	Properties    map[string]any        `json:"Properties,omitempty"`
	Notifications []models.Notification `json:"Notifications"`
}

type Sender struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Sender {
	return &Sender{logger: logger}
}

// CreateBody serializes the work item. Map keys and payload keys are
// written in sorted order so the output is stable for a given item.
func CreateBody(item *models.WorkItem) ([]byte, error) {
	if item == nil || item.WebHook == nil {
		return nil, errors.New("work item has no webhook")
	}
	notifications := item.Notifications
	if notifications == nil {
		notifications = []models.Notification{}
	}
	return json.Marshal(body{
		ID:            item.ID,
		Attempt:       item.Attempt(),
		Properties:    item.WebHook.Properties,
		Notifications: notifications,
	})
}

// Sign returns the ms-signature header value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an ms-signature header value in constant time.
// Both "sha256=<hex>" and bare hex are accepted.
func VerifySignature(body []byte, signature, secret string) error {
	if secret == "" || signature == "" {
		return ErrInvalidSignature
	}
	actual, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), signaturePrefix))
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if subtle.ConstantTimeCompare(mac.Sum(nil), actual) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// CreateRequest builds the signed POST for one delivery attempt.
func (s *Sender) CreateRequest(ctx context.Context, item *models.WorkItem) (*http.Request, error) {
	payload, err := CreateBody(item)
	if err != nil {
		return nil, fmt.Errorf("failed to build body: %w", err)
	}

	target, err := url.Parse(item.WebHook.WebHookURI)
	if err != nil || !target.IsAbs() {
		return nil, fmt.Errorf("invalid webhook uri %q", item.WebHook.WebHookURI)
	}

	signature := Sign(payload, item.WebHook.Secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set(SignatureHeader, signature)

	s.mergeHeaders(req, item)
	return req, nil
}

// mergeHeaders copies the webhook's extra headers onto the request. A bad
// header is logged and skipped; it never fails the delivery.
func (s *Sender) mergeHeaders(req *http.Request, item *models.WorkItem) {
	headers := item.WebHook.Headers
	if len(headers) == 0 {
		return
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := headers[name]
		if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
			s.logger.Warn("Skipping invalid webhook header",
				zap.String("webhook_id", item.WebHook.ID),
				zap.String("header", name))
			continue
		}
		canonical := http.CanonicalHeaderKey(name)
		if reservedHeaders[canonical] {
			s.logger.Warn("Skipping reserved webhook header",
				zap.String("webhook_id", item.WebHook.ID),
				zap.String("header", canonical))
			continue
		}
		if strings.HasPrefix(canonical, "Content-") {
			s.logger.Debug("Applying webhook header as content header",
				zap.String("webhook_id", item.WebHook.ID),
				zap.String("header", canonical))
		}
		req.Header.Set(canonical, value)
	}
}
