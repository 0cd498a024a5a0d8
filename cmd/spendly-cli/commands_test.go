package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendly/internal/app"
	"spendly/internal/cli"
	"spendly/internal/config"
	"spendly/internal/log"
	"spendly/internal/store"
)

type harness struct {
	t      *testing.T
	dir    string
	clock  *app.MockClock
	stdin  string
	tty    bool
	copied string
	clipFn func(string) error
}

func newHarness(t *testing.T) *harness {
	return &harness{
		t:     t,
		dir:   t.TempDir(),
		clock: app.NewMockClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)),
	}
}

func (h *harness) run(args ...string) (string, error) {
	var out bytes.Buffer
	e := &env{
		out:   &out,
		in:    strings.NewReader(h.stdin),
		isTTY: func() bool { return h.tty },
		clip: app.ClipboardFunc(func(s string) error {
			if h.clipFn != nil {
				return h.clipFn(s)
			}
			h.copied = s
			return nil
		}),
		open: func(ctx context.Context, _ string) (*cli.Runtime, error) {
			cfg := config.Defaults()
			cfg.Storage.Backend = "file"
			cfg.Storage.Dir = h.dir
			return cli.Bootstrap(ctx, &cfg, log.Discard(), cli.Options{Clock: h.clock})
		},
	}
	root := newRootCmd(e)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errors.Join(err, e.close())
}

func (h *harness) mustRun(args ...string) string {
	out, err := h.run(args...)
	require.NoError(h.t, err)
	return out
}

func TestAddAndList(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("add", "120", "--category", "food", "--note", "lunch")
	assert.Contains(t, out, "Saved ₹120 🍔 Food on 2024-03-01")

	// category defaults to the last one used
	out = h.mustRun("add", "40,5")
	assert.Contains(t, out, "Saved ₹40.5 🍔 Food")

	h.mustRun("add", "--amount", "7", "-k", "misc", "-d", "2024-03-02")

	out = h.mustRun("list", "--from", "2024-03-01", "--to", "2024-03-01")
	assert.Contains(t, out, "Showing expenses from 2024-03-01 to 2024-03-01")
	assert.Contains(t, out, "Total ₹160.5 (2)")
	assert.Contains(t, out, "Fri, 01 Mar 2024")
	assert.Contains(t, out, "🍔 Food (lunch)")
	assert.NotContains(t, out, "Sat, 02 Mar 2024")

	out = h.mustRun("list")
	assert.Contains(t, out, "Total ₹167.5 (3)")

	_, err := h.run("add", "1", "--amount", "2", "-k", "food")
	assert.ErrorContains(t, err, "amount given twice")
}

func TestAddRejectsInvalid(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("add", "0", "-k", "food")
	assert.ErrorContains(t, err, "Amount must be greater than 0")

	_, err = h.run("add", "5")
	assert.ErrorContains(t, err, "Please pick a category")

	out := h.mustRun("list")
	assert.Contains(t, out, "No expenses yet.")
}

func TestAddFailsWhenStorageRejectsWrite(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.Mkdir(filepath.Join(h.dir, "expenses.json"), 0o755))

	out, err := h.run("add", "12", "-k", "food")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrPersist)
	assert.ErrorContains(t, err, "was not saved")
	assert.NotContains(t, out, "Saved")
}

func TestListInvalidRange(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("list", "--from", "March")
	assert.ErrorIs(t, err, app.ErrInvalidRange)
}

func TestRemove(t *testing.T) {
	h := newHarness(t)
	h.mustRun("add", "9", "-k", "health")
	out := h.mustRun("list", "--ids")
	fields := strings.Fields(strings.TrimSpace(out[strings.LastIndex(out, "₹9"):]))
	require.Len(t, fields, 2)
	id := fields[1]

	_, err := h.run("rm", id)
	assert.ErrorIs(t, err, errNotConfirmed)

	h.tty, h.stdin = true, "n\n"
	out = h.mustRun("rm", id)
	assert.Contains(t, out, "Kept.")
	assert.Contains(t, h.mustRun("list"), "(1)")

	h.stdin = "y\n"
	out = h.mustRun("rm", id)
	assert.Contains(t, out, "Deleted.")
	assert.Contains(t, h.mustRun("list"), "No expenses yet.")

	_, err = h.run("rm", id, "--yes")
	assert.ErrorContains(t, err, "no expense with id")
}

func TestCopy(t *testing.T) {
	h := newHarness(t)
	h.mustRun("add", "120", "-k", "food", "-n", "lunch")
	h.mustRun("add", "40", "-k", "travel")

	out := h.mustRun("copy")
	assert.Contains(t, out, "Copied!")
	assert.Equal(t, "Fri, 01 Mar 2024\n• ₹120 lunch\n• ₹40 travel", h.copied)

	out = h.mustRun("copy", "--print")
	assert.Contains(t, out, "• ₹40 travel")

	h.clipFn = func(string) error { return errors.New("no display") }
	_, err := h.run("copy")
	assert.ErrorContains(t, err, "no display")
}

func TestCategoriesWorksWithoutStorage(t *testing.T) {
	var out bytes.Buffer
	e := &env{
		out: &out,
		open: func(context.Context, string) (*cli.Runtime, error) {
			return nil, errors.New("storage must not be opened")
		},
	}
	root := newRootCmd(e)
	root.SetArgs([]string{"categories"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "groceries")
	assert.Contains(t, out.String(), "🎉 Fun")
}
