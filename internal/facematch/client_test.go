package facematch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompare_Match(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/compare" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Reference string  `json:"reference"`
			Threshold float64 `json:"threshold"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Reference != "students/student_378.jpg" {
			t.Errorf("reference = %q", req.Reference)
		}
		if req.Threshold != 80 {
			t.Errorf("threshold = %g", req.Threshold)
		}
		json.NewEncoder(w).Encode(CompareResult{Match: true, Similarity: 91.5, Threshold: 80})
	}))
	defer srv.Close()

	c := New(srv.URL, 80, false)
	res, err := c.Compare(context.Background(), []byte("crop"), "student_378")
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if !res.Match || res.Similarity != 91.5 {
		t.Errorf("got %+v", res)
	}

	if !c.Match(context.Background(), []byte("crop"), "student_378") {
		t.Error("Match should report true")
	}
}

func TestMatch_FailsClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, 80, false)
	if c.Match(context.Background(), []byte("crop"), "student_378") {
		t.Error("a service error must be a non-match")
	}

	// Unreachable service fails closed too.
	srv.Close()
	if c.Match(context.Background(), []byte("crop"), "student_378") {
		t.Error("an unreachable service must be a non-match")
	}
}

func TestDetect_DecodesCrops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string][]string{
			"faces": {
				base64.StdEncoding.EncodeToString([]byte("face-a")),
				base64.StdEncoding.EncodeToString([]byte("face-b")),
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, 80, false)
	faces, err := c.Detect(context.Background(), []byte("frame"))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(faces) != 2 || string(faces[0]) != "face-a" {
		t.Errorf("got %d faces", len(faces))
	}
}

func TestSkipMode(t *testing.T) {
	c := New("http://unused", 80, true)

	if err := c.Health(context.Background()); err != nil {
		t.Errorf("skip-mode Health: %v", err)
	}
	res, err := c.Compare(context.Background(), []byte("crop"), "student_378")
	if err != nil || !res.Match {
		t.Errorf("skip-mode Compare = %+v, %v", res, err)
	}
	det, err := c.Detect(context.Background(), []byte("frame"))
	if err != nil || len(det) != 1 {
		t.Errorf("skip-mode Detect = %v, %v", det, err)
	}
	enr, err := c.Enroll(context.Background(), "student_378", []byte("img"))
	if err != nil || !enr.Success {
		t.Errorf("skip-mode Enroll = %+v, %v", enr, err)
	}
}

func TestReferenceHandle(t *testing.T) {
	if got := ReferenceHandle("student_378"); got != "students/student_378.jpg" {
		t.Errorf("ReferenceHandle = %q", got)
	}
}
