package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-sync/internal/domain"
)

func TestMapStatus(t *testing.T) {
	assert.Nil(t, MapStatus(nil))

	cases := map[string]domain.ProjectStatus{
		"COMPLETED":   domain.StatusClosed,
		"completed":   domain.StatusClosed,
		" Completed ": domain.StatusClosed,
		"IN_PROGRESS": domain.StatusOpen,
		"":            domain.StatusOpen,
		"COMPLETE":    domain.StatusOpen,
		"on hold 🛑":   domain.StatusOpen,
	}
	for in, want := range cases {
		got := MapStatus(strPtr(in))
		require.NotNil(t, got, "input %q", in)
		assert.Equal(t, want, *got, "input %q", in)
	}
}
