package image

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T) (*httptest.Server, *testEnv) {
	t.Helper()
	env := newTestEnv(t, nil)
	handler := NewHandler(env.service, 10*1024*1024)
	srv := httptest.NewServer(handler.Routes())
	t.Cleanup(srv.Close)
	return srv, env
}

func uploadImage(t *testing.T, srv *httptest.Server, filename string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	resp, err := http.Post(srv.URL+"/", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("post upload: %v", err)
	}
	return resp
}

type envelope struct {
	Success bool `json:"success"`
	Data    json.RawMessage
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return env
}

func TestUploadEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("first upload is created", func(t *testing.T) {
		resp := uploadImage(t, srv, "one.png", gradientPNG(t, 800, 400, true))
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d", resp.StatusCode)
		}
		env := decodeEnvelope(t, resp)
		var rec ImageRecord
		if err := json.Unmarshal(env.Data, &rec); err != nil {
			t.Fatalf("decode record: %v", err)
		}
		if rec.ID == "" {
			t.Fatal("record has no id")
		}
	})

	t.Run("same bytes again conflict with duplicate id", func(t *testing.T) {
		resp := uploadImage(t, srv, "two.png", gradientPNG(t, 800, 400, true))
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("expected 409, got %d", resp.StatusCode)
		}
		env := decodeEnvelope(t, resp)
		if env.Error == nil || env.Error.Code != "DUPLICATE_IMAGE" {
			t.Fatalf("expected DUPLICATE_IMAGE, got %+v", env.Error)
		}
		if env.Error.Details["duplicate_of"] == "" {
			t.Fatal("rejection does not name the duplicated record")
		}
	})

	t.Run("garbage upload is unprocessable", func(t *testing.T) {
		resp := uploadImage(t, srv, "junk.bin", []byte("not an image at all"))
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", resp.StatusCode)
		}
		env := decodeEnvelope(t, resp)
		if env.Error == nil || env.Error.Code != "DECODE_ERROR" {
			t.Fatalf("expected DECODE_ERROR, got %+v", env.Error)
		}
	})

	t.Run("missing file field is a bad request", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		mw.WriteField("something", "else")
		mw.Close()
		resp, err := http.Post(srv.URL+"/", mw.FormDataContentType(), &body)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})
}

func TestRecordEndpoints(t *testing.T) {
	srv, env := newTestServer(t)

	resp := uploadImage(t, srv, "seed.png", gradientPNG(t, 800, 400, true))
	created := decodeEnvelope(t, resp)
	var rec ImageRecord
	if err := json.Unmarshal(created.Data, &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}

	t.Run("list returns the record", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/")
		if err != nil {
			t.Fatalf("get list: %v", err)
		}
		env := decodeEnvelope(t, resp)
		var recs []ImageRecord
		if err := json.Unmarshal(env.Data, &recs); err != nil {
			t.Fatalf("decode list: %v", err)
		}
		if len(recs) != 1 || recs[0].ID != rec.ID {
			t.Fatalf("unexpected list: %+v", recs)
		}
	})

	t.Run("patch fills metadata", func(t *testing.T) {
		body := strings.NewReader(`{"description": "hand cut shapes", "tags": ["collage", "cutout"]}`)
		req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/"+rec.ID, body)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("patch: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		resp.Body.Close()

		stored, _ := env.catalog.Get(rec.ID)
		if stored.Description != "hand cut shapes" || len(stored.Tags) != 2 {
			t.Fatalf("metadata not stored: %+v", stored)
		}
	})

	t.Run("patch rejects malformed tags", func(t *testing.T) {
		body := strings.NewReader(`{"tags": ["has,comma"]}`)
		req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/"+rec.ID, body)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("patch: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("delete removes record and file", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/"+rec.ID, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", resp.StatusCode)
		}

		getResp, err := http.Get(srv.URL + "/" + rec.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		getResp.Body.Close()
		if getResp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404 after delete, got %d", getResp.StatusCode)
		}
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/no-such-id")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", resp.StatusCode)
		}
	})
}
