package generichttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alexkolodchuk/maxigauge/server"
)

func TestGetIntEncodesPayload(t *testing.T) {
	h := GetInt(func() (int, error) { return 14, nil })
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/display-contrast", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	it := server.IntT{}
	if err := json.NewDecoder(w.Body).Decode(&it); err != nil {
		t.Fatal(err)
	}
	if it.Int != 14 {
		t.Errorf("expected 14, got %d", it.Int)
	}
}

func TestSetIntDecodesPayload(t *testing.T) {
	got := 0
	h := SetInt(func(i int) error { got = i; return nil })
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/display-contrast", strings.NewReader(`{"int": 7}`))
	h(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got != 7 {
		t.Errorf("expected the setter to receive 7, got %d", got)
	}
}

func TestSetIntRejectsGarbageBody(t *testing.T) {
	h := SetInt(func(int) error { return nil })
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/display-contrast", strings.NewReader("contrast up"))
	h(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a non-JSON body, got %d", w.Code)
	}
}

func TestGetStringEncodesPayload(t *testing.T) {
	h := GetString(func() (string, error) { return "mbar", nil })
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/unit", nil))
	st := server.StrT{}
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Str != "mbar" {
		t.Errorf("expected mbar, got %q", st.Str)
	}
}

func TestGetStringSurfacesErrors(t *testing.T) {
	h := GetString(func() (string, error) { return "", errors.New("controller unplugged") })
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/unit", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestSubMuxSanitize(t *testing.T) {
	cases := map[string]string{
		"omc/tpg":  "/omc/tpg",
		"/dst/tpg": "/dst/tpg",
		"/a/":      "/a",
	}
	for in, want := range cases {
		if got := SubMuxSanitize(in); got != want {
			t.Errorf("%q: expected %q, got %q", in, want, got)
		}
	}
}
