package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPaginationDefaults(t *testing.T) {
	p := NewPagination(0, 0, 120)
	require.Equal(t, 1, p.Page)
	require.Equal(t, DefaultPerPage, p.PerPage)
	require.Equal(t, 3, p.TotalPages)
}

func TestOffsetClampsPageSize(t *testing.T) {
	require.Equal(t, 0, Offset(1, 10))
	require.Equal(t, 20, Offset(3, 10))
	require.Equal(t, MaxPerPage, Offset(2, MaxPerPage*4))
}

func TestActorContextRoundTrip(t *testing.T) {
	ctx := ContextWithActor(t.Context(), "  clerk-7 ")
	require.Equal(t, "clerk-7", ActorFromContext(ctx))
	require.Empty(t, ActorFromContext(t.Context()))
}
