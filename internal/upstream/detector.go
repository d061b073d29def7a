package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	mmetrics "github.com/NagaPranathiRallabandi/marg-ai/internal/metrics"
)

// DetectorClient submits camera frames to the vision service.
type DetectorClient struct {
	baseURL string
	http    *http.Client
	metrics *mmetrics.Collector
}

func NewDetectorClient(baseURL string, timeout time.Duration, metrics *mmetrics.Collector) *DetectorClient {
	return &DetectorClient{baseURL: baseURL, http: &http.Client{Timeout: timeout}, metrics: metrics}
}

type Detection struct {
	ObjectType string  `json:"object_type"`
	Confidence float64 `json:"confidence"`
	Box        []int   `json:"box,omitempty"`
}

type DetectionResult struct {
	VehicleDetected bool        `json:"vehicle_detected"`
	Detections      []Detection `json:"detections"`
}

// Image is one camera frame.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Detect posts the frame as multipart field "image" to {base}/detect.
func (c *DetectorClient) Detect(ctx context.Context, img Image) (DetectionResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	filename := img.Filename
	if filename == "" {
		filename = "frame.jpg"
	}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return DetectionResult{}, fmt.Errorf("%w: build detector request: %v", ErrUpstream, err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return DetectionResult{}, fmt.Errorf("%w: build detector request: %v", ErrUpstream, err)
	}
	if err := mw.Close(); err != nil {
		return DetectionResult{}, fmt.Errorf("%w: build detector request: %v", ErrUpstream, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", &body)
	if err != nil {
		return DetectionResult{}, fmt.Errorf("%w: build detector request: %v", ErrUpstream, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.http.Do(req)
	observe(c.metrics, "detector", start)
	if err != nil {
		return DetectionResult{}, fmt.Errorf("%w: detector: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return DetectionResult{}, fmt.Errorf("%w: detector status %d: %s", ErrUpstream, resp.StatusCode, msg)
	}

	var out DetectionResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return DetectionResult{}, fmt.Errorf("%w: decode detector response: %v", ErrUpstream, err)
	}
	return out, nil
}
