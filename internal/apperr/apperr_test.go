package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{BadRequest, http.StatusBadRequest},
		{NotFound, http.StatusNotFound},
		{Conflict, http.StatusConflict},
		{Upstream, http.StatusBadGateway},
		{Timeout, http.StatusGatewayTimeout},
		{Transient, http.StatusServiceUnavailable},
		{Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.kind.HTTPStatus(); got != tt.want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestKindOfWrappedChain(t *testing.T) {
	base := New(Conflict, "name taken")
	wrapped := fmt.Errorf("creating session: %w", base)
	if KindOf(wrapped) != Conflict {
		t.Errorf("KindOf(wrapped) = %v, want Conflict", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != Internal {
		t.Error("unclassified errors should be Internal")
	}
	if KindOf(nil) != Internal {
		t.Error("nil maps to Internal by definition")
	}
}

func TestWrapPreservesUnderlying(t *testing.T) {
	underlying := errors.New("exit 128")
	err := Wrap(Upstream, underlying, "git worktree add")
	if !errors.Is(err, underlying) {
		t.Error("Wrap must keep the underlying error in the chain")
	}
	if !IsKind(err, Upstream) {
		t.Error("Wrap must carry the kind")
	}
	if Wrap(Upstream, nil, "x") != nil {
		t.Error("Wrap(nil) must be nil")
	}
}
