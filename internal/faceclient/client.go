package faceclient

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"geoattend/internal/face"
)

// DescriptorSize is the length of descriptors produced by the service.
const DescriptorSize = 128

// Client calls the face detection microservice. It implements face.Detector.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with configurable timeout.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // Face processing can take time
		},
	}
}

// Detect finds the most prominent face in an encoded image frame.
func (c *Client) Detect(ctx context.Context, frame []byte) (face.Detection, error) {
	if c.Skip {
		return mockDetection(frame), nil
	}
	if len(frame) == 0 {
		return face.Detection{}, fmt.Errorf("image required")
	}

	var out struct {
		Present    bool      `json:"present"`
		Confidence float64   `json:"confidence"`
		Descriptor []float32 `json:"descriptor"`
	}
	payload := map[string]string{"image": base64.StdEncoding.EncodeToString(frame)}
	if err := c.post(ctx, "/detect", payload, &out); err != nil {
		return face.Detection{}, err
	}
	if out.Present && len(out.Descriptor) > 0 && len(out.Descriptor) != DescriptorSize {
		return face.Detection{}, fmt.Errorf("%w: got %d, want %d", face.ErrDescriptorShape, len(out.Descriptor), DescriptorSize)
	}
	return face.Detection{Present: out.Present, Confidence: out.Confidence, Descriptor: out.Descriptor}, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}

	return nil
}

// mockDetection derives a stable result from the frame bytes. Distinct frames
// land roughly 0.2 apart, identical frames at zero, and confidence varies
// between 0.8 and 1.0 so a burst of distinct frames shows confidence drops.
func mockDetection(frame []byte) face.Detection {
	if len(frame) == 0 {
		return face.Detection{}
	}
	sum := sha256.Sum256(frame)
	d := make(face.Descriptor, DescriptorSize)
	for i := range d {
		d[i] = 0.1 + (float32(sum[i%len(sum)]^byte(i))/255-0.5)*0.04
	}
	return face.Detection{
		Present:    true,
		Confidence: 0.8 + float64(sum[0])/255*0.2,
		Descriptor: d,
	}
}
