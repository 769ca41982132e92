package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"datavault/db"
	"datavault/logging"
	"datavault/models"
	"datavault/notes"
	"datavault/secrets"
)

var testRouter http.Handler

func TestMain(m *testing.M) {
	// Setup
	dir, err := os.MkdirTemp("", "datavault-handlers")
	if err != nil {
		panic(err)
	}
	conn, err := db.Open(filepath.Join(dir, "test_api.db"))
	if err != nil {
		panic(err)
	}
	repo := notes.NewRepository(conn, secrets.NewMemoryStore(), notes.WithLogger(logging.Discard()))
	testRouter = NewRouter(NewAPI(repo, logging.Discard()))

	// Run tests
	code := m.Run()

	// Teardown
	conn.Close()
	os.RemoveAll(dir)

	os.Exit(code)
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp APIResponse
	json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&resp)
	return w, resp
}

func TestAPINoteLifecycle(t *testing.T) {
	// 1. Create
	w, resp := doRequest(t, testRouter, "POST", "/api/v1/notes", map[string]string{
		"title":   "Shopping",
		"content": "Milk, eggs",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Create failed, expected 201, got %d. Body: %s", w.Code, w.Body.String())
	}
	if resp.Status != "success" {
		t.Errorf("Expected success status, got %s", resp.Status)
	}
	dataMap := resp.Data.(map[string]interface{})
	id := int64(dataMap["id"].(float64))
	if dataMap["title"] != "Shopping" || dataMap["content"] != "Milk, eggs" {
		t.Errorf("Create returned unexpected note %v", dataMap)
	}
	path := fmt.Sprintf("/api/v1/notes/%d", id)

	// 2. List contains it
	w, resp = doRequest(t, testRouter, "GET", "/api/v1/notes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("List failed, expected 200, got %d", w.Code)
	}
	found := false
	for _, item := range resp.Data.([]interface{}) {
		n := item.(map[string]interface{})
		if int64(n["id"].(float64)) == id {
			found = n["title"] == "Shopping"
		}
	}
	if !found {
		t.Errorf("Created note missing from list: %s", w.Body.String())
	}

	// 3. Update
	w, _ = doRequest(t, testRouter, "PUT", path, map[string]string{
		"title":   "Shopping",
		"content": "Milk, eggs, bread",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Update failed, expected 200, got %d. Body: %s", w.Code, w.Body.String())
	}

	// 4. Get reflects the update
	w, resp = doRequest(t, testRouter, "GET", path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Get failed, expected 200, got %d", w.Code)
	}
	if got := resp.Data.(map[string]interface{})["content"]; got != "Milk, eggs, bread" {
		t.Errorf("Expected updated content, got %v", got)
	}

	// 5. Delete, then Get is 404
	w, _ = doRequest(t, testRouter, "DELETE", path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Delete failed, expected 200, got %d", w.Code)
	}
	w, _ = doRequest(t, testRouter, "GET", path, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
}

func TestAPIMissingNote(t *testing.T) {
	for _, method := range []string{"GET", "PUT", "DELETE"} {
		var body any
		if method == "PUT" {
			body = map[string]string{"title": "t"}
		}
		w, _ := doRequest(t, testRouter, method, "/api/v1/notes/999999", body)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s missing note: expected 404, got %d", method, w.Code)
		}
	}
}

func TestAPIValidation(t *testing.T) {
	tests := []struct {
		name string
		body any
		want string
	}{
		{"missing title", map[string]string{"content": "body"}, "A title is required"},
		{"long title", map[string]string{"title": strings.Repeat("x", 513)}, "Title or content is too long"},
		{"malformed json", `{"title": `, "Invalid request body"},
	}
	for _, tt := range tests {
		w, resp := doRequest(t, testRouter, "POST", "/api/v1/notes", tt.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tt.name, w.Code)
		}
		if resp.Message != tt.want {
			t.Errorf("%s: expected message %q, got %q", tt.name, tt.want, resp.Message)
		}
	}

	w, _ := doRequest(t, testRouter, "GET", "/api/v1/notes/abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Non-numeric id: expected 400, got %d", w.Code)
	}
}

func TestAPILocalizedMessages(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/notes/999999", nil)
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9")
	w := httptest.NewRecorder()
	testRouter.ServeHTTP(w, req)

	var resp APIResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Message != "Note introuvable" {
		t.Errorf("Expected French message, got %q", resp.Message)
	}
}

func TestAPIMethodNotAllowed(t *testing.T) {
	w, _ := doRequest(t, testRouter, "PATCH", "/api/v1/notes", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}

	w, resp := doRequest(t, testRouter, "POST", "/api/v1/notes/1", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for POST on a note, got %d", w.Code)
	}
	if resp.Status != "error" || resp.Message == "" {
		t.Errorf("Expected a JSON error body, got %+v", resp)
	}
}

func TestAPIUnknownRoute(t *testing.T) {
	w, resp := doRequest(t, testRouter, "GET", "/api/v1/unknown", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
	if resp.Status != "error" {
		t.Errorf("Expected a JSON error body, got %+v", resp)
	}
}

type failingNotes struct{}

var errKeyring = fmt.Errorf("%w: keyring locked", secrets.ErrSecretUnavailable)

func (failingNotes) Create(context.Context, string, string) (models.Note, error) {
	return models.Note{}, errKeyring
}
func (failingNotes) List(context.Context) ([]models.Note, error) { return nil, errKeyring }
func (failingNotes) GetByID(context.Context, int64) (models.Note, bool, error) {
	return models.Note{}, false, errors.New("disk I/O error")
}
func (failingNotes) Update(context.Context, int64, string, string) (bool, error) {
	return false, errKeyring
}
func (failingNotes) Delete(context.Context, int64) (bool, error) { return false, errKeyring }

func TestAPISecretUnavailable(t *testing.T) {
	h := NewRouter(NewAPI(failingNotes{}, logging.Discard()))

	w, resp := doRequest(t, h, "GET", "/api/v1/notes", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", w.Code)
	}
	if !strings.Contains(resp.Message, "keyring") {
		t.Errorf("Expected keyring message, got %q", resp.Message)
	}
	if resp.Data != nil {
		t.Errorf("No data may be returned without the secret, got %v", resp.Data)
	}

	w, resp = doRequest(t, h, "GET", "/api/v1/notes/1", nil)
	if w.Code != http.StatusInternalServerError || resp.Message != "Internal server error" {
		t.Errorf("Expected generic 500, got %d %q", w.Code, resp.Message)
	}
}
