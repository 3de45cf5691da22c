package memory

import (
	"context"
	"testing"

	"github.com/FahadIshaq/scanback-backend/internal/notify"
	"github.com/stretchr/testify/require"
)

func TestDeliveryLog_List(t *testing.T) {
	log := NewDeliveryLog()
	ctx := context.Background()

	for _, d := range []*notify.Delivery{
		{Code: "A", Status: notify.StatusDelivered},
		{Code: "B", Status: notify.StatusFailed},
		{Code: "A", Status: notify.StatusSkipped},
	} {
		require.NoError(t, log.Record(ctx, d))
	}

	all, err := log.List(ctx, notify.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.EqualValues(t, 3, all[0].ID)

	forA, err := log.List(ctx, notify.ListOptions{Code: "A", Limit: 1})
	require.NoError(t, err)
	require.Len(t, forA, 1)
	require.Equal(t, notify.StatusSkipped, forA[0].Status)

	failed := notify.StatusFailed
	onlyFailed, err := log.List(ctx, notify.ListOptions{Status: &failed})
	require.NoError(t, err)
	require.Len(t, onlyFailed, 1)
	require.Equal(t, "B", onlyFailed[0].Code)
}
