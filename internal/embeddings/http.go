package embeddings

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"github.com/bdougie/keyframer/internal/cluster"
)

// HTTPEmbedder calls an image embedding server (for example a CLIP model
// behind a small HTTP shim). The request body is
//
//	{"model": "...", "images": ["<base64 jpeg>", ...]}
//
// and the response must be {"embeddings": [[...], ...]} in request order.
type HTTPEmbedder struct {
	url    string
	model  string
	client *http.Client
}

func NewHTTPEmbedder(url, model string, timeout time.Duration) *HTTPEmbedder {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &HTTPEmbedder{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	Model  string   `json:"model,omitempty"`
	Images []string `json:"images"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (e *HTTPEmbedder) Embed(ctx context.Context, images []image.Image) ([][]float32, error) {
	req := embedRequest{Model: e.model, Images: make([]string, len(images))}
	var buf bytes.Buffer
	for i, img := range images {
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return nil, fmt.Errorf("encode image %d: %w", i, err)
		}
		req.Images[i] = base64.StdEncoding.EncodeToString(buf.Bytes())
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embed request: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(out.Embeddings) != len(images) {
		return nil, fmt.Errorf("embed response has %d vectors for %d images", len(out.Embeddings), len(images))
	}

	// The server is expected to normalize; do it again so clustering can
	// rely on unit length.
	for i, v := range out.Embeddings {
		out.Embeddings[i] = cluster.Normalize(v)
	}
	return out.Embeddings, nil
}
