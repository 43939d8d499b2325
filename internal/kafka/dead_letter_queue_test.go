package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statusflow/internal/interfaces"
	"statusflow/internal/models"
)

func TestInMemoryDeadLetterStore(t *testing.T) {
	store := NewInMemoryDeadLetterStore(nopLogger())
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, channel := range []string{models.ChannelSMS, models.ChannelEmail, models.ChannelEmail} {
		env := models.NewRetryEnvelope([]byte("report"), base.Add(time.Duration(2-i)*time.Minute))
		rec := models.NewDeadLetterRecord(channel, env, base.Add(time.Hour))
		if i == 2 {
			rec.Resolved = true
		}
		require.NoError(t, store.Save(ctx, &rec))
	}

	all, err := store.List(ctx, interfaces.DeadLetterFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].FirstSeen.Before(all[1].FirstSeen))
	assert.True(t, all[1].FirstSeen.Before(all[2].FirstSeen))

	email, err := store.List(ctx, interfaces.DeadLetterFilter{Channel: models.ChannelEmail, UnresolvedOnly: true})
	require.NoError(t, err)
	require.Len(t, email, 1)
	assert.False(t, email[0].Resolved)

	limited, err := store.List(ctx, interfaces.DeadLetterFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	n, err := store.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = store.Count(ctx, models.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInMemoryDeadLetterStore_NilRecord(t *testing.T) {
	store := NewInMemoryDeadLetterStore(nopLogger())
	assert.Error(t, store.Save(context.Background(), nil))
}
