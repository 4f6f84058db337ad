package facematch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// CompareResult contains the decision for one crop against one reference.
type CompareResult struct {
	Match      bool    `json:"match"`
	Similarity float64 `json:"similarity"`
	Threshold  float64 `json:"threshold"`
}

// EnrollResult contains the reference-registration response.
type EnrollResult struct {
	StudentID string `json:"student_id"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
}

// Client calls the cloud face recognition service. Reference photos are
// addressed by the handle students/<id>.jpg, which the enrollment path
// establishes. Skip mode returns canned results for local development.
type Client struct {
	BaseURL   string
	Threshold float64
	HTTP      *http.Client
	Skip      bool
}

// New creates a client. threshold is the similarity percentage the service
// requires for a match.
func New(baseURL string, threshold float64, skip bool) *Client {
	return &Client{
		BaseURL:   baseURL,
		Threshold: threshold,
		Skip:      skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // face processing can take time
		},
	}
}

// ReferenceHandle returns the service-side key for a student's reference
// photo.
func ReferenceHandle(studentID string) string {
	return "students/" + studentID + ".jpg"
}

// Detect returns the face crops found in a frame.
func (c *Client) Detect(ctx context.Context, frame []byte) ([][]byte, error) {
	if c.Skip {
		return [][]byte{frame}, nil
	}
	if len(frame) == 0 {
		return nil, fmt.Errorf("frame required")
	}

	body, _ := json.Marshal(map[string]string{
		"image": base64.StdEncoding.EncodeToString(frame),
	})
	var out struct {
		Faces []string `json:"faces"`
	}
	if err := c.post(ctx, "/detect", body, &out); err != nil {
		return nil, err
	}

	faces := make([][]byte, 0, len(out.Faces))
	for _, enc := range out.Faces {
		crop, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("decode face crop: %w", err)
		}
		faces = append(faces, crop)
	}
	return faces, nil
}

// Compare checks one face crop against a student's enrolled reference.
func (c *Client) Compare(ctx context.Context, crop []byte, studentID string) (*CompareResult, error) {
	if c.Skip {
		return &CompareResult{Match: true, Similarity: 92, Threshold: c.Threshold}, nil
	}
	if len(crop) == 0 {
		return nil, fmt.Errorf("crop required")
	}

	body, _ := json.Marshal(map[string]interface{}{
		"image":     base64.StdEncoding.EncodeToString(crop),
		"reference": ReferenceHandle(studentID),
		"threshold": c.Threshold,
	})
	var out CompareResult
	if err := c.post(ctx, "/compare", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Match wraps Compare with the fail-closed contract: any transport or
// service error is a non-match for that pairing, never an abort.
func (c *Client) Match(ctx context.Context, crop []byte, studentID string) bool {
	res, err := c.Compare(ctx, crop, studentID)
	if err != nil {
		log.Printf("facematch: compare %s failed: %v", studentID, err)
		return false
	}
	return res.Match
}

// Enroll registers a reference photo for a student.
func (c *Client) Enroll(ctx context.Context, studentID string, image []byte) (*EnrollResult, error) {
	if c.Skip {
		return &EnrollResult{StudentID: studentID, Success: true, Message: "enrolled (mock)"}, nil
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("image required")
	}

	body, _ := json.Marshal(map[string]string{
		"student_id": studentID,
		"reference":  ReferenceHandle(studentID),
		"image":      base64.StdEncoding.EncodeToString(image),
	})
	var out EnrollResult
	if err := c.post(ctx, "/enroll", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
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

func (c *Client) post(ctx context.Context, path string, body []byte, out interface{}) error {
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
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("face service error %s: %s", resp.Status, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
