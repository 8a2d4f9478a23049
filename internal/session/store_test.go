package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"findash/internal/errs"
	"findash/internal/models"
	"findash/internal/testutil"
)

func TestCreateGet(t *testing.T) {
	s := NewStore(time.Hour)
	tb := testutil.MonthlyTable(t, []float64{1000, 1000}, []float64{500, 600})

	created := s.Create("bank.csv", tb)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, tb.Hash(), created.Hash)
	assert.Equal(t, 4, created.Rows)
	assert.Equal(t, testutil.FullSchema.Columns(), created.Columns)

	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "bank.csv", got.Filename)
	assert.Same(t, tb, got.Table)

	got.Filename = "changed"
	again, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "bank.csv", again.Filename)
}

func TestGetMissing(t *testing.T) {
	_, err := NewStore(0).Get("nope")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestReplaceDropsOldHash(t *testing.T) {
	s := NewStore(time.Hour)
	var dropped []string
	s.OnDrop(func(h string) { dropped = append(dropped, h) })

	first := testutil.MonthlyTable(t, []float64{1000}, []float64{500})
	second := testutil.MonthlyTable(t, []float64{2000}, []float64{500})

	sess := s.Create("a.csv", first)
	replaced, err := s.Replace(sess.ID, "b.csv", second)
	require.NoError(t, err)

	assert.Equal(t, sess.ID, replaced.ID)
	assert.Equal(t, second.Hash(), replaced.Hash)
	assert.Equal(t, "b.csv", replaced.Filename)
	assert.Equal(t, []string{first.Hash()}, dropped)

	_, err = s.Replace("missing", "c.csv", second)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := NewStore(time.Hour)
	var dropped []string
	s.OnDrop(func(h string) { dropped = append(dropped, h) })

	tb := testutil.MonthlyTable(t, []float64{1000}, []float64{500})
	sess := s.Create("a.csv", tb)

	require.NoError(t, s.Delete(sess.ID))
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, []string{tb.Hash()}, dropped)
	assert.ErrorIs(t, s.Delete(sess.ID), errs.ErrNotFound)
}

func TestIdleExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(10 * time.Minute)
	s.now = func() time.Time { return now }

	tb := testutil.MonthlyTable(t, []float64{1000}, []float64{500})
	idle := s.Create("idle.csv", tb)
	active := s.Create("active.csv", models.NewTable(nil, models.Schema{}))

	now = now.Add(8 * time.Minute)
	_, err := s.Get(active.ID)
	require.NoError(t, err)

	now = now.Add(3 * time.Minute)
	_, err = s.Get(idle.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	assert.Equal(t, 1, s.CleanExpired())
	assert.Equal(t, 1, s.Len())

	_, err = s.Get(active.ID)
	assert.NoError(t, err)
}
