// File: internal/captcha/recognizer.go
package captcha

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/wjleong/zxgkquery/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HTTPRecognizer sends captcha images to a ddddocr-compatible HTTP endpoint
// and returns the recognized text.
type HTTPRecognizer struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRecognizer builds a recognizer for the configured OCR service.
func NewHTTPRecognizer(cfg config.OCRConfig) *HTTPRecognizer {
	return &HTTPRecognizer{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

type ocrRequest struct {
	Image string `json:"image"`
}

type ocrResponse struct {
	Code    int    `json:"code"`
	Data    string `json:"data"`
	Message string `json:"message"`
}

// Recognize posts the image as base64 JSON and decodes the service answer.
func (r *HTTPRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	payload, err := json.Marshal(ocrRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return "", fmt.Errorf("encoding ocr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ocr service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr service answered %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading ocr response: %w", err)
	}

	var decoded ocrResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decoding ocr response: %w", err)
	}
	if decoded.Code != 0 && decoded.Code != http.StatusOK {
		return "", fmt.Errorf("ocr service error %d: %s", decoded.Code, decoded.Message)
	}
	return decoded.Data, nil
}
