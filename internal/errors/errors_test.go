package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	cause := fmt.Errorf("open index.scip: no such file")

	tests := []struct {
		name string
		err  *CwbError
		want string
	}{
		{
			name: "with cause",
			err:  New(IndexMissing, "SCIP index not found", cause),
			want: "[INDEX_MISSING] SCIP index not found: open index.scip: no such file",
		},
		{
			name: "without cause",
			err:  New(TreeUnavailable, "no grammar for language", nil),
			want: "[TREE_UNAVAILABLE] no grammar for language",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := New(StoreError, "failed to persist analysis", cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"cwb error", New(ParseDegraded, "degraded", nil), ParseDegraded},
		{"foreign error", fmt.Errorf("boom"), InternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}
