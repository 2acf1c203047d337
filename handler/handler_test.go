package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/CosminFerecatu/mail-queue-sub000/apperr"
	"github.com/CosminFerecatu/mail-queue-sub000/repository"
	"github.com/rs/zerolog"
)

func TestQueryInt(t *testing.T) {
	tests := []struct {
		name, query, key string
		def, want        int
	}{
		{"valid value", "limit=50", "limit", 20, 50},
		{"missing uses default", "", "limit", 20, 20},
		{"non-numeric uses default", "limit=abc", "limit", 20, 20},
		{"negative value", "offset=-5", "offset", 0, -5},
		{"zero value", "page=0", "page", 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/test?"+tt.query, nil)
			if got := queryInt(r, tt.key, tt.def); got != tt.want {
				t.Errorf("queryInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEncodeDecodeCursor(t *testing.T) {
	for _, offset := range []int{0, 1, 20, 9999} {
		cursor := encodeCursor(offset)
		if got := decodeCursor(cursor); got != offset {
			t.Errorf("decodeCursor(encodeCursor(%d)) = %d, want %d", offset, got, offset)
		}
	}
}

func TestDecodeCursorInvalid(t *testing.T) {
	if got := decodeCursor("not-valid-base64!!"); got != 0 {
		t.Errorf("decodeCursor() on garbage = %d, want 0", got)
	}
	if got := decodeCursor(""); got != 0 {
		t.Errorf("decodeCursor(\"\") = %d, want 0", got)
	}
}

func TestMapRepoErr(t *testing.T) {
	if err := mapRepoErr(repository.ErrNotFound, "queue"); err.(*apperr.Error).Code != apperr.CodeNotFound {
		t.Errorf("mapRepoErr(ErrNotFound) did not produce CodeNotFound: %v", err)
	}
	other := errors.New("boom")
	if err := mapRepoErr(other, "queue"); err != other {
		t.Errorf("mapRepoErr() should pass through non-sentinel errors unchanged")
	}
}

func TestWriteData(t *testing.T) {
	h := &Handler{logger: zerolog.Nop()}

	rr := httptest.NewRecorder()
	h.writeData(rr, http.StatusCreated, map[string]string{"id": "abc"})
	if rr.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusCreated)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("response body is not valid JSON: %v", err)
	}
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}

	rr = httptest.NewRecorder()
	h.writeData(rr, http.StatusNoContent, nil)
	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNoContent)
	}
}

func TestWriteErr(t *testing.T) {
	h := &Handler{logger: zerolog.Nop()}

	rr := httptest.NewRecorder()
	h.writeErr(rr, apperr.New(apperr.CodeRateLimitExceeded, "too many requests"))
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusTooManyRequests)
	}
	var body map[string]any
	json.Unmarshal(rr.Body.Bytes(), &body)
	errBody := body["error"].(map[string]any)
	if errBody["code"] != string(apperr.CodeRateLimitExceeded) {
		t.Errorf("error code = %v, want %v", errBody["code"], apperr.CodeRateLimitExceeded)
	}

	rr = httptest.NewRecorder()
	h.writeErr(rr, errors.New("unclassified"))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("unclassified error should map to 500, got %d", rr.Code)
	}
}

func TestDecodeAndValidate(t *testing.T) {
	h := &Handler{validator: newTestValidator(), logger: zerolog.Nop()}

	type req struct {
		Name string `json:"name" validate:"required"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", jsonBody(`{"name":"queue-a"}`))
	var dst req
	if verr := h.decodeAndValidate(r, &dst); verr != nil {
		t.Fatalf("decodeAndValidate() unexpected error: %v", verr)
	}
	if dst.Name != "queue-a" {
		t.Errorf("Name = %q, want %q", dst.Name, "queue-a")
	}

	r = httptest.NewRequest(http.MethodPost, "/", jsonBody(`{"name":""}`))
	var empty req
	if verr := h.decodeAndValidate(r, &empty); verr == nil || verr.Code != apperr.CodeValidation {
		t.Errorf("decodeAndValidate() on missing required field = %v, want VALIDATION_ERROR", verr)
	}

	r = httptest.NewRequest(http.MethodPost, "/", jsonBody(`{not-json`))
	var broken req
	if verr := h.decodeAndValidate(r, &broken); verr == nil || verr.Code != apperr.CodeValidation {
		t.Errorf("decodeAndValidate() on malformed JSON = %v, want VALIDATION_ERROR", verr)
	}
}
