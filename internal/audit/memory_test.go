package audit

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage_KeepsNewestAndFilters(t *testing.T) {
	m := NewMemoryStorage(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		action := ActionStatusChanged
		if i%2 == 0 {
			action = ActionReviewSubmitted
		}
		require.NoError(t, m.WriteBatch(ctx, []AuditEvent{{ID: fmt.Sprint(i), Action: action, RequestID: "req-1"}}))
	}

	all, err := m.FetchEvents(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "4", all[0].ID)
	assert.Equal(t, "2", all[2].ID)

	submitted, err := m.FetchEvents(ctx, Filter{Action: ActionReviewSubmitted, Limit: 1})
	require.NoError(t, err)
	require.Len(t, submitted, 1)
	assert.Equal(t, "4", submitted[0].ID)

	none, err := m.FetchEvents(ctx, Filter{RequestID: "req-2"})
	require.NoError(t, err)
	assert.Empty(t, none)
}
