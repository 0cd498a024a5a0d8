package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"spendly/internal/core"
	"spendly/internal/log"
	"spendly/internal/storage"
)

func expense(id string, cents int64, cat string, d core.Date) core.Expense {
	return core.Expense{ID: id, Amount: core.Money{Cents: cents}, Category: cat, Date: d}
}

type StoreSuite struct {
	suite.Suite
	ctx     context.Context
	backend *storage.Memory
	store   *Store
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.backend = storage.NewMemory()
	s.store = New(s.backend, log.Discard())
}

func (s *StoreSuite) TestLoadMissingIsEmpty() {
	s.Empty(s.store.Load(s.ctx))
	s.NotNil(s.store.All())
}

func (s *StoreSuite) TestLoadMalformedIsEmpty() {
	for _, blob := range []string{"{not json", `{"id":"a"}`, `[{"id":"a","amount":1,"category":"food","date":"03/01/2024"}]`} {
		s.backend.Set(KeyExpenses, []byte(blob))
		s.Empty(s.store.Load(s.ctx), blob)
	}
}

func (s *StoreSuite) TestLoadKeepsLegacyCategory() {
	s.backend.Set(KeyExpenses, []byte(`[{"id":"old","amount":99.5,"category":"Snacks","note":"","date":"2023-12-31"}]`))
	items := s.store.Load(s.ctx)
	s.Require().Len(items, 1)
	s.Equal("Snacks", items[0].Category)
	s.Equal(int64(9950), items[0].Amount.Cents)
}

func (s *StoreSuite) TestAddPersistsAndRoundTrips() {
	d := core.NewDate(2024, 3, 1)
	s.Require().NoError(s.store.Add(s.ctx, expense("a", 12000, "food", d)))
	s.Require().NoError(s.store.Add(s.ctx, expense("b", 4000, "travel", d)))

	fresh := New(s.backend, log.Discard())
	items := fresh.Load(s.ctx)
	s.Equal(s.store.All(), items)
	s.Equal([]string{"a", "b"}, []string{items[0].ID, items[1].ID})
}

func (s *StoreSuite) TestAddRejectsDuplicateAndEmptyID() {
	d := core.NewDate(2024, 3, 1)
	s.Require().NoError(s.store.Add(s.ctx, expense("a", 100, "food", d)))
	s.ErrorIs(s.store.Add(s.ctx, expense("a", 200, "food", d)), ErrDuplicateID)
	s.ErrorIs(s.store.Add(s.ctx, expense("", 200, "food", d)), core.ErrEmptyID)
	s.Len(s.store.All(), 1)
}

func (s *StoreSuite) TestAddKeepsRecordWhenSaveFails() {
	s.backend.FailSave = errors.New("quota exceeded")
	err := s.store.Add(s.ctx, expense("a", 100, "food", core.NewDate(2024, 3, 1)))
	s.ErrorIs(err, ErrPersist)
	s.Len(s.store.All(), 1)

	_, ok, _ := s.backend.Load(s.ctx, KeyExpenses)
	s.False(ok)
}

func (s *StoreSuite) TestRemove() {
	d := core.NewDate(2024, 3, 1)
	s.Require().NoError(s.store.Add(s.ctx, expense("a", 100, "food", d)))
	s.Require().NoError(s.store.Add(s.ctx, expense("b", 200, "food", d)))

	removed, err := s.store.Remove(s.ctx, "a")
	s.Require().NoError(err)
	s.True(removed)

	fresh := New(s.backend, log.Discard())
	items := fresh.Load(s.ctx)
	s.Require().Len(items, 1)
	s.Equal("b", items[0].ID)
}

func (s *StoreSuite) TestRemoveUnknownDoesNotWrite() {
	s.Require().NoError(s.store.Add(s.ctx, expense("a", 100, "food", core.NewDate(2024, 3, 1))))
	rev := s.store.Revision()
	s.backend.FailSave = errors.New("must not be called")

	removed, err := s.store.Remove(s.ctx, "zzz")
	s.NoError(err)
	s.False(removed)
	s.Equal(rev, s.store.Revision())
}

func (s *StoreSuite) TestRapidRemovesKeepBoth() {
	d := core.NewDate(2024, 3, 1)
	for _, id := range []string{"a", "b", "c"} {
		s.Require().NoError(s.store.Add(s.ctx, expense(id, 100, "food", d)))
	}
	_, err := s.store.Remove(s.ctx, "a")
	s.Require().NoError(err)
	_, err = s.store.Remove(s.ctx, "b")
	s.Require().NoError(err)

	items := New(s.backend, log.Discard()).Load(s.ctx)
	s.Require().Len(items, 1)
	s.Equal("c", items[0].ID)
}

func (s *StoreSuite) TestRevisionBumps() {
	r0 := s.store.Revision()
	s.Require().NoError(s.store.Add(s.ctx, expense("a", 100, "food", core.NewDate(2024, 3, 1))))
	s.Greater(s.store.Revision(), r0)
}

func (s *StoreSuite) TestLastCategory() {
	s.Equal("", s.store.LastCategory(s.ctx))
	s.Require().NoError(s.store.SetLastCategory(s.ctx, "health"))
	s.Equal("health", New(s.backend, log.Discard()).LastCategory(s.ctx))
}

func (s *StoreSuite) TestAllReturnsCopy() {
	s.Require().NoError(s.store.Add(s.ctx, expense("a", 100, "food", core.NewDate(2024, 3, 1))))
	all := s.store.All()
	all[0].Note = "mutated"
	s.Equal("", s.store.All()[0].Note)
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func TestStoresSharingBackend(t *testing.T) {
	ctx := context.Background()
	b, err := storage.NewFile(t.TempDir())
	require.NoError(t, err)
	d := core.NewDate(2024, 3, 1)

	web := New(b, log.Discard())
	web.Load(ctx)
	cli := New(b, log.Discard())
	cli.Load(ctx)

	require.NoError(t, cli.Add(ctx, expense("from-cli", 100, "food", d)))
	require.NoError(t, web.Add(ctx, expense("from-web", 200, "food", d)))

	ids := func(items []core.Expense) []string {
		out := make([]string, 0, len(items))
		for _, e := range items {
			out = append(out, e.ID)
		}
		return out
	}
	assert.Equal(t, []string{"from-cli", "from-web"}, ids(New(b, log.Discard()).Load(ctx)))

	removed, err := cli.Remove(ctx, "from-web")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []string{"from-cli"}, ids(New(b, log.Discard()).Load(ctx)))
}

func TestUnsavedChangesSurviveRefresh(t *testing.T) {
	ctx := context.Background()
	b := storage.NewMemory()
	st := New(b, log.Discard())
	d := core.NewDate(2024, 3, 1)

	b.FailSave = errors.New("disk full")
	require.ErrorIs(t, st.Add(ctx, expense("a", 100, "food", d)), ErrPersist)

	b.FailSave = nil
	require.NoError(t, st.Add(ctx, expense("b", 100, "food", d)))
	assert.Len(t, New(b, log.Discard()).Load(ctx), 2)
}

func TestLoadSkipsBadRecordsAndKeepsThem(t *testing.T) {
	ctx := context.Background()
	b := storage.NewMemory()
	b.Set(KeyExpenses, []byte(`[`+
		`{"id":"a","amount":5,"category":"food","note":"","date":"2024-03-01"},`+
		`{"id":"b","amount":7,"category":"food","note":"","date":""}]`))

	st := New(b, log.Discard())
	items := st.Load(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].ID)

	require.NoError(t, st.Add(ctx, expense("c", 100, "misc", core.NewDate(2024, 3, 2))))

	blob, ok, err := b.Load(ctx, KeyExpenses)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(blob), `"id":"a"`)
	assert.Contains(t, string(blob), `"id":"b","amount":7`)
	assert.Contains(t, string(blob), `"id":"c"`)
	assert.Len(t, New(b, log.Discard()).Load(ctx), 2)
}

func TestConcurrentRemoves(t *testing.T) {
	ctx := context.Background()
	st := New(storage.NewMemory(), log.Discard())
	d := core.NewDate(2024, 3, 1)
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, id := range ids {
		require.NoError(t, st.Add(ctx, expense(id, 100, "food", d)))
	}

	done := make(chan struct{})
	for _, id := range ids[:6] {
		go func(id string) {
			defer func() { done <- struct{}{} }()
			_, _ = st.Remove(ctx, id)
		}(id)
	}
	for range ids[:6] {
		<-done
	}
	assert.Len(t, st.All(), 2)
}

func TestSnapshotAcrossBackends(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	fileBackend, err := storage.NewFile(filepath.Join(dir, "kv"))
	require.NoError(t, err)
	sqliteBackend, err := storage.NewSQLite(filepath.Join(dir, "spendly.db"))
	require.NoError(t, err)
	defer sqliteBackend.Close()

	for name, b := range map[string]storage.Backend{"file": fileBackend, "sqlite": sqliteBackend} {
		t.Run(name, func(t *testing.T) {
			st := New(b, log.Discard())
			st.Load(ctx)
			require.NoError(t, st.Add(ctx, core.Expense{
				ID: "x", Amount: core.Money{Cents: 1250}, Category: "groceries",
				Note: "milk", Date: core.NewDate(2024, 2, 29),
			}))

			got := New(b, log.Discard()).Load(ctx)
			assert.Equal(t, st.All(), got)
		})
	}
}
