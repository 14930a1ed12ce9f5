package searchindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()

	idx, err := Open(Config{Dir: t.TempDir() + "/idx", WriterMemMB: 10})
	require.NoError(t, err)

	t.Cleanup(func() { _ = idx.Close() })

	return idx
}

func TestIndex_AddCommitReload_ReadYourWrites(t *testing.T) {
	idx := openTestIndex(t)

	doc := Document{AppID: "a", EventID: 1, TSEpochMS: 1000, Host: "h", Source: "s", Message: "hello world"}

	err := idx.WithWriter(func() error {
		if err := idx.Add(doc); err != nil {
			return err
		}

		return idx.Commit()
	})
	require.NoError(t, err)
	require.NoError(t, idx.Reload())

	q, err := ParseUserQuery("hello")
	require.NoError(t, err)

	hits, err := idx.Search(q, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, int64(1), hits[0].Document.EventID)
}

func TestIndex_DeleteByIDTerm(t *testing.T) {
	idx := openTestIndex(t)

	doc := Document{AppID: "a", EventID: 42, Message: "goodbye"}

	err := idx.WithWriter(func() error {
		_ = idx.Add(doc)

		return idx.Commit()
	})
	require.NoError(t, err)

	err = idx.WithWriter(func() error {
		_ = idx.DeleteByIDTerm(42)

		return idx.Commit()
	})
	require.NoError(t, err)

	q, err := ParseUserQuery("goodbye")
	require.NoError(t, err)

	hits, err := idx.Search(q, 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestParseUserQuery_EmptyIsBadQuery(t *testing.T) {
	_, err := ParseUserQuery("")
	require.ErrorIs(t, err, ErrBadQuery)
}

func TestIndex_AddFlushesEarlyOnceOverWriterMemBudget(t *testing.T) {
	idx, err := Open(Config{Dir: t.TempDir() + "/idx", WriterMemMB: 0})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	idx.maxBatchBytes = 200 // small budget so a handful of docs crosses it

	err = idx.WithWriter(func() error {
		for n := 0; n < 10; n++ {
			doc := Document{AppID: "a", EventID: int64(n), Message: "padding message text"}
			if addErr := idx.Add(doc); addErr != nil {
				return addErr
			}
		}

		return idx.Commit()
	})
	require.NoError(t, err)
	require.Positive(t, idx.FlushCount())
}

func TestIndex_AddNeverFlushesWhenBudgetDisabled(t *testing.T) {
	idx, err := Open(Config{Dir: t.TempDir() + "/idx", WriterMemMB: 0})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	err = idx.WithWriter(func() error {
		for n := 0; n < 10; n++ {
			doc := Document{AppID: "a", EventID: int64(n), Message: "padding message text"}
			if addErr := idx.Add(doc); addErr != nil {
				return addErr
			}
		}

		return idx.Commit()
	})
	require.NoError(t, err)
	require.Zero(t, idx.FlushCount())
}
