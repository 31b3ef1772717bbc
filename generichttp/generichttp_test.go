package generichttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
)

func TestSubMuxSanitize(t *testing.T) {
	for in, want := range map[string]string{
		"pinem/kuro":    "/pinem/kuro",
		"/pinem/kuro/*": "/pinem/kuro",
		"/pinem/":       "/pinem",
	} {
		if got := SubMuxSanitize(in); got != want {
			t.Errorf("%q: expected %q, got %q", in, want, got)
		}
	}
}

func TestBindAndEndpoints(t *testing.T) {
	rt := RouteTable{
		{Method: http.MethodGet, Path: "/g"}:    GetFloat(func() (float64, error) { return 0.5, nil }),
		{Method: http.MethodPost, Path: "/mode"}: SetString(func(string) error { return nil }),
	}
	eps := rt.Endpoints()
	if len(eps) != 2 || eps[0] != "GET /g" || eps[1] != "POST /mode" {
		t.Errorf("unexpected endpoints %v", eps)
	}
	r := chi.NewRouter()
	rt.Bind(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/g", nil))
	f := FloatT{}
	if err := json.NewDecoder(w.Body).Decode(&f); err != nil {
		t.Fatal(err)
	}
	if f.F64 != 0.5 {
		t.Errorf("expected 0.5, got %f", f.F64)
	}
}

func TestSetBoolBadBody(t *testing.T) {
	h := SetBool(func(bool) error { return nil })
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestSetStringPassesValueAndError(t *testing.T) {
	var got string
	h := SetString(func(s string) error {
		got = s
		return errors.New("nope")
	})
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"str":"SPIM"}`)))
	if got != "SPIM" {
		t.Errorf("expected SPIM, got %q", got)
	}
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestSetFloatBadInputIs400(t *testing.T) {
	h := SetFloat(func(f float64) error {
		if f < 0 {
			return BadInput{Err: errors.New("negative")}
		}
		return nil
	})
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"f64":-1}`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	w = httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"f64":1}`)))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestGetIntAndGetBool(t *testing.T) {
	w := httptest.NewRecorder()
	GetInt(func() (int, error) { return 7, nil })(w, httptest.NewRequest(http.MethodGet, "/", nil))
	i := IntT{}
	json.NewDecoder(w.Body).Decode(&i)
	if i.Int != 7 {
		t.Errorf("expected 7, got %d", i.Int)
	}
	w = httptest.NewRecorder()
	GetBool(func() (bool, error) { return false, errors.New("off") })(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}
