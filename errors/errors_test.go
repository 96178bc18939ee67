package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestDashError(t *testing.T) {
	err := New(ErrCodeProjectNotFound, "project not found")
	if err.Code != ErrCodeProjectNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeProjectNotFound, err.Code)
	}

	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeCommandFailed, "command failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	if !Is(wrapped, ErrCodeCommandFailed) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeProjectNotFound) {
		t.Error("Is should return false for non-matching code")
	}

	// Codes survive fmt.Errorf wrapping
	outer := fmt.Errorf("launch: %w", wrapped)
	if GetCode(outer) != ErrCodeCommandFailed {
		t.Errorf("GetCode through %%w = %q", GetCode(outer))
	}

	detailed := err.WithDetail("name", "web").WithDetail("port", 8080)
	if detailed.Details["name"] != "web" {
		t.Error("WithDetail should add details")
	}
}

func TestErrorConstructors(t *testing.T) {
	err := ProjectNotFound("web")
	if err.Code != ErrCodeProjectNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeProjectNotFound, err.Code)
	}
	if err.Details["name"] != "web" {
		t.Error("ProjectNotFound should include name detail")
	}

	err = ManifestNotFound("web", "package.json")
	if err.Details["manifest"] != "package.json" {
		t.Error("ManifestNotFound should include manifest detail")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid name", InvalidName("../x", "bad"), http.StatusBadRequest},
		{"path escape", PathEscape("x"), http.StatusBadRequest},
		{"not found", ProjectNotFound("x"), http.StatusNotFound},
		{"manifest", ManifestNotFound("x", "package.json"), http.StatusBadRequest},
		{"spawn", SpawnFailed("x", fmt.Errorf("boom")), http.StatusInternalServerError},
		{"tool", ToolNotAllowed("drop_all"), http.StatusBadRequest},
		{"upstream", New(ErrCodeUpstreamFailed, "x"), http.StatusBadGateway},
		{"not configured", New(ErrCodeNotConfigured, "x"), http.StatusServiceUnavailable},
		{"plain error", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMessageHidesUncodedErrors(t *testing.T) {
	if got := Message(fmt.Errorf("open /secret/path: permission denied")); got != "internal server error" {
		t.Errorf("Message() = %q", got)
	}
	if got := Message(fmt.Errorf("wrap: %w", ProjectNotFound("x"))); got != "Project not found" {
		t.Errorf("Message() = %q", got)
	}
}
