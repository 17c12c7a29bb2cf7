package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/licitatech/pncp-harvester/internal/pncp"
)

func TestPutGetDelete(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	url, err := s.Put(ctx, "editais/111/2024/7/a.pdf", "application/pdf", []byte("conteudo"))
	require.NoError(t, err)
	require.Equal(t, "memory://editais/111/2024/7/a.pdf", url)

	data, ok := s.Get("editais/111/2024/7/a.pdf")
	require.True(t, ok)
	require.Equal(t, []byte("conteudo"), data)

	require.NoError(t, s.Delete(ctx, "editais/111/2024/7/a.pdf"))
	_, ok = s.Get("editais/111/2024/7/a.pdf")
	require.False(t, ok)
	require.Zero(t, s.Len())
}

func TestPutConflict(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	_, err := s.Put(ctx, "editais/x", "", []byte("um"))
	require.NoError(t, err)

	_, err = s.Put(ctx, "editais/x", "", []byte("dois"))
	require.ErrorIs(t, err, pncp.ErrObjectExists)

	// First write remains untouched after the refused second one.
	data, ok := s.Get("editais/x")
	require.True(t, ok)
	require.Equal(t, []byte("um"), data)

	require.NoError(t, s.Delete(ctx, "editais/x"))
	_, err = s.Put(ctx, "editais/x", "", []byte("dois"))
	require.NoError(t, err)
}
