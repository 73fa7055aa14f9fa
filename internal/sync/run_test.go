package sync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-sync/internal/domain"
)

func TestRunScenario(t *testing.T) {
	crm := newFakeCRM([]domain.RemoteRecord{
		rec("A", "o1", "c1"),
		rec("B", "o1", "c2"),
		rec("C", "o1", "c1", "c2"),
	})
	s := openStore(t)
	fs := &failingUpserts{ProjectStore: s}

	res, err := NewRunner(crm, crm, fs, nil).Run(context.Background(), DefaultParams())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 2, res.Valid)
	assert.Equal(t, 1, res.Invalid)
	assert.Equal(t, []InvalidRecord{{ID: "C", CompanyCount: 2}}, res.Warnings)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, []string{"A", "B"}, fs.seen, "exactly two reconciliation attempts")
	assert.Equal(t, 1, crm.ownerCount("o1"))
}

func TestRunPartialFailure(t *testing.T) {
	crm := newFakeCRM([]domain.RemoteRecord{
		rec("A", "", "c1"),
		rec("B", "", "c1"),
	})
	s := openStore(t)
	fs := &failingUpserts{ProjectStore: s, fail: map[string]error{"B": errors.New("CHECK constraint failed")}}

	res, err := NewRunner(crm, crm, fs, nil).Run(context.Background(), DefaultParams())
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.ProjectErrors, 1)
	assert.Equal(t, "B", res.ProjectErrors[0].ID)

	_, err = s.GetProjectByServiceID(context.Background(), "A")
	assert.NoError(t, err)
}

func TestRunEnrichFailureMarksUnsuccessful(t *testing.T) {
	crm := newFakeCRM([]domain.RemoteRecord{rec("A", "bad", "c1"), rec("B", "", "c1")})
	crm.failOwner["bad"] = true

	res, err := NewRunner(crm, crm, openStore(t), nil).Run(context.Background(), DefaultParams())
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.EnrichErrors, 1)
	assert.Equal(t, "A", res.EnrichErrors[0].ID)
	assert.Equal(t, 1, res.Updated)
}

func TestRunIsIdempotent(t *testing.T) {
	crm := newFakeCRM(
		[]domain.RemoteRecord{rec("A", "o1", "c1"), rec("B", "", "c2")},
		[]domain.RemoteRecord{rec("C", "o1", "c1")},
	)
	s := openStore(t)
	runner := NewRunner(crm, crm, s, nil)
	ctx := context.Background()

	first, err := runner.Run(ctx, DefaultParams())
	require.NoError(t, err)
	before, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, before, 3)

	second, err := runner.Run(ctx, DefaultParams())
	require.NoError(t, err)
	after, err := s.ListProjects(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, 3, second.Updated)
	require.Len(t, after, 3)
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].ClientID, after[i].ClientID)
	}
	assert.Equal(t, 0, second.ClientsNew)
}

func TestRunRespectsPageCeiling(t *testing.T) {
	crm := newFakeCRM(
		[]domain.RemoteRecord{rec("A", "", "c1")},
		[]domain.RemoteRecord{rec("B", "", "c1")},
	)
	res, err := NewRunner(crm, crm, openStore(t), nil).Run(context.Background(), Params{PageSize: 1, MaxPages: 1, Concurrency: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fetched)
	assert.True(t, res.Truncated)
}

func TestRunCollectionFailure(t *testing.T) {
	crm := newFakeCRM([]domain.RemoteRecord{rec("A", "", "c1")})
	crm.pageErr = map[int]error{1: errors.New("max retries exceeded")}
	s := openStore(t)

	res, err := NewRunner(crm, crm, s, nil).Run(context.Background(), DefaultParams())
	var cerr *CollectError
	require.ErrorAs(t, err, &cerr)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Fetched)

	all, err := s.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRunResultJSON(t *testing.T) {
	crm := newFakeCRM()
	r := NewRunner(crm, crm, nil, nil)
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ticks := []time.Time{start, start.Add(1500 * time.Millisecond)}
	r.now = func() time.Time {
		tick := ticks[0]
		if len(ticks) > 1 {
			ticks = ticks[1:]
		}
		return tick
	}

	res, err := r.Run(context.Background(), Params{})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), res.ElapsedMs)
	assert.True(t, res.Success)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	for _, key := range []string{"success", "runId", "fetched", "valid", "invalid", "updated", "warnings", "enrichErrors", "projectErrors", "startedAt", "elapsedMs"} {
		assert.Contains(t, m, key)
	}
	assert.Equal(t, []any{}, m["warnings"])
	assert.Equal(t, "2024-01-02T03:04:05Z", m["startedAt"])
}
