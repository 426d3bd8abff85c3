// Package repotest holds the behaviour tests every vaultbox.MetaDataRepo backend must pass.
package repotest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sagarc03/vaultbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty, migrated repo that is isolated from other tests.
type Factory func(t *testing.T) vaultbox.MetaDataRepo

// Run exercises repo semantics against a backend.
func Run(t *testing.T, newRepo Factory) {
	t.Run("Create", func(t *testing.T) { testCreate(t, newRepo) })
	t.Run("GetByID", func(t *testing.T) { testGetByID(t, newRepo) })
	t.Run("List", func(t *testing.T) { testList(t, newRepo) })
	t.Run("Pagination", func(t *testing.T) { testPagination(t, newRepo) })
	t.Run("SoftDelete", func(t *testing.T) { testSoftDelete(t, newRepo) })
	t.Run("FinalizeDelete", func(t *testing.T) { testFinalizeDelete(t, newRepo) })
	t.Run("ListPendingPurge", func(t *testing.T) { testListPendingPurge(t, newRepo) })
}

func newFile(owner *uuid.UUID, title string) vaultbox.NewFile {
	return vaultbox.NewFile{
		InternalID: uuid.NewString() + ".txt",
		OwnerID:    owner,
		Title:      title,
		Size:       int64(len(title)),
		Format:     "text/plain",
	}
}

func seed(t *testing.T, repo vaultbox.MetaDataRepo, owner *uuid.UUID, n int) []vaultbox.FileMetadata {
	t.Helper()
	ctx := context.Background()

	out := make([]vaultbox.FileMetadata, 0, n)
	for i := range n {
		m, err := repo.Create(ctx, newFile(owner, fmt.Sprintf("file-%02d.txt", i)))
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func ids(items []vaultbox.FileMetadata) []uuid.UUID {
	out := make([]uuid.UUID, len(items))
	for i, m := range items {
		out[i] = m.ID
	}
	return out
}

func testCreate(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("all fields", func(t *testing.T) {
		repo := newRepo(t)
		owner := uuid.New()
		before := time.Now().Add(-time.Minute)

		m, err := repo.Create(ctx, vaultbox.NewFile{
			InternalID: "abc.pdf",
			OwnerID:    &owner,
			Title:      "report.pdf",
			Size:       1024,
			Format:     "application/pdf",
		})
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, m.ID)
		assert.Equal(t, "abc.pdf", m.InternalID)
		require.NotNil(t, m.OwnerID)
		assert.Equal(t, owner, *m.OwnerID)
		assert.Equal(t, "report.pdf", m.Title)
		assert.Equal(t, int64(1024), m.Size)
		assert.Equal(t, "application/pdf", m.Format)
		assert.True(t, m.CreatedAt.After(before), "created_at %v", m.CreatedAt)
		assert.Nil(t, m.DeletedAt)
		assert.False(t, m.IsDeleted)
	})

	t.Run("minimal fields", func(t *testing.T) {
		repo := newRepo(t)

		m, err := repo.Create(ctx, vaultbox.NewFile{Title: "blob", Size: 0})
		require.NoError(t, err)

		assert.Empty(t, m.InternalID)
		assert.Nil(t, m.OwnerID)
		assert.Empty(t, m.Format)

		got, err := repo.GetByID(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, m.ID, got.ID)
		assert.Nil(t, got.OwnerID)
	})

	t.Run("ids are unique", func(t *testing.T) {
		repo := newRepo(t)
		files := seed(t, repo, nil, 5)

		seen := map[uuid.UUID]bool{}
		for _, m := range files {
			assert.False(t, seen[m.ID])
			seen[m.ID] = true
		}
	})
}

func testGetByID(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		repo := newRepo(t)
		owner := uuid.New()
		created := seed(t, repo, &owner, 1)[0]

		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)

		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, created.InternalID, got.InternalID)
		assert.Equal(t, created.Title, got.Title)
		assert.Equal(t, created.Size, got.Size)
		assert.Equal(t, created.Format, got.Format)
		assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("not found", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, vaultbox.ErrNotFound)
	})

	t.Run("soft-deleted rows are still returned", func(t *testing.T) {
		repo := newRepo(t)
		m := seed(t, repo, nil, 1)[0]
		require.NoError(t, repo.SoftDelete(ctx, m.ID))

		got, err := repo.GetByID(ctx, m.ID)
		require.NoError(t, err)
		assert.True(t, got.IsDeleted)
	})
}

func testList(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("newest first", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo, nil, 4)

		result, err := repo.List(ctx, vaultbox.ListQuery{Limit: 10})
		require.NoError(t, err)
		require.Len(t, result.Items, 4)

		for i := 1; i < len(result.Items); i++ {
			prev, cur := result.Items[i-1], result.Items[i]
			assert.False(t, cur.CreatedAt.After(prev.CreatedAt), "row %d is newer than row %d", i, i-1)
		}
	})

	t.Run("owner filter", func(t *testing.T) {
		repo := newRepo(t)
		alice, bob := uuid.New(), uuid.New()
		seed(t, repo, &alice, 3)
		seed(t, repo, &bob, 2)
		seed(t, repo, nil, 1)

		result, err := repo.List(ctx, vaultbox.ListQuery{OwnerID: &alice, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 3, result.Total)
		for _, m := range result.Items {
			require.NotNil(t, m.OwnerID)
			assert.Equal(t, alice, *m.OwnerID)
		}

		all, err := repo.List(ctx, vaultbox.ListQuery{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 6, all.Total)
	})

	t.Run("soft-deleted rows hidden unless requested", func(t *testing.T) {
		repo := newRepo(t)
		files := seed(t, repo, nil, 3)
		require.NoError(t, repo.SoftDelete(ctx, files[1].ID))

		visible, err := repo.List(ctx, vaultbox.ListQuery{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 2, visible.Total)
		assert.NotContains(t, ids(visible.Items), files[1].ID)

		all, err := repo.List(ctx, vaultbox.ListQuery{Limit: 10, ShowDeleted: true})
		require.NoError(t, err)
		assert.Equal(t, 3, all.Total)
		assert.Contains(t, ids(all.Items), files[1].ID)
	})

	t.Run("empty", func(t *testing.T) {
		repo := newRepo(t)

		result, err := repo.List(ctx, vaultbox.ListQuery{Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, result.Items)
		assert.NotNil(t, result.Items)
		assert.Equal(t, 0, result.Total)
	})

	t.Run("offset past the end keeps the total", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo, nil, 3)

		result, err := repo.List(ctx, vaultbox.ListQuery{Limit: 10, Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, result.Items)
		assert.Equal(t, 3, result.Total)
	})
}

func testPagination(t *testing.T, newRepo Factory) {
	ctx := context.Background()
	repo := newRepo(t)
	owner := uuid.New()
	seed(t, repo, &owner, 15)

	full, err := repo.List(ctx, vaultbox.ListQuery{OwnerID: &owner, Limit: 100})
	require.NoError(t, err)
	require.Len(t, full.Items, 15)

	var paged []uuid.UUID
	seen := map[uuid.UUID]bool{}
	for offset := 0; offset < 15; offset += 5 {
		page, err := repo.List(ctx, vaultbox.ListQuery{OwnerID: &owner, Limit: 5, Offset: offset})
		require.NoError(t, err)
		assert.Len(t, page.Items, 5)
		assert.Equal(t, 15, page.Total, "total ignores pagination")

		for _, id := range ids(page.Items) {
			assert.False(t, seen[id], "id %s appears on two pages", id)
			seen[id] = true
			paged = append(paged, id)
		}
	}

	assert.Equal(t, ids(full.Items), paged)
}

func testSoftDelete(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("marks row", func(t *testing.T) {
		repo := newRepo(t)
		m := seed(t, repo, nil, 1)[0]

		require.NoError(t, repo.SoftDelete(ctx, m.ID))

		got, err := repo.GetByID(ctx, m.ID)
		require.NoError(t, err)
		assert.True(t, got.IsDeleted)
		assert.Nil(t, got.DeletedAt, "soft delete leaves deleted_at for the purge")
	})

	t.Run("repeat succeeds", func(t *testing.T) {
		repo := newRepo(t)
		m := seed(t, repo, nil, 1)[0]

		require.NoError(t, repo.SoftDelete(ctx, m.ID))
		assert.NoError(t, repo.SoftDelete(ctx, m.ID))
	})

	t.Run("not found", func(t *testing.T) {
		repo := newRepo(t)

		err := repo.SoftDelete(ctx, uuid.New())
		assert.ErrorIs(t, err, vaultbox.ErrNotFound)
	})
}

func testFinalizeDelete(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("sets deleted_at once", func(t *testing.T) {
		repo := newRepo(t)
		m := seed(t, repo, nil, 1)[0]
		require.NoError(t, repo.SoftDelete(ctx, m.ID))

		require.NoError(t, repo.FinalizeDelete(ctx, m.ID))
		first, err := repo.GetByID(ctx, m.ID)
		require.NoError(t, err)
		require.NotNil(t, first.DeletedAt)
		assert.True(t, first.Purged())
		assert.True(t, first.IsDeleted)

		time.Sleep(10 * time.Millisecond)

		require.NoError(t, repo.FinalizeDelete(ctx, m.ID))
		second, err := repo.GetByID(ctx, m.ID)
		require.NoError(t, err)
		require.NotNil(t, second.DeletedAt)
		assert.True(t, first.DeletedAt.Equal(*second.DeletedAt), "deleted_at must not move")
	})

	t.Run("leaves is_deleted alone", func(t *testing.T) {
		repo := newRepo(t)
		m := seed(t, repo, nil, 1)[0]

		require.NoError(t, repo.FinalizeDelete(ctx, m.ID))

		got, err := repo.GetByID(ctx, m.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.DeletedAt)
		assert.False(t, got.IsDeleted)

		list, err := repo.List(ctx, vaultbox.ListQuery{Limit: 10})
		require.NoError(t, err)
		assert.Contains(t, ids(list.Items), m.ID, "row stays visible without show_deleted")
	})

	t.Run("not found", func(t *testing.T) {
		repo := newRepo(t)

		err := repo.FinalizeDelete(ctx, uuid.New())
		assert.ErrorIs(t, err, vaultbox.ErrNotFound)
	})
}

func testListPendingPurge(t *testing.T, newRepo Factory) {
	ctx := context.Background()
	repo := newRepo(t)

	files := seed(t, repo, nil, 4)
	live, pendingA, pendingB, finalized := files[0], files[1], files[2], files[3]

	for _, m := range []vaultbox.FileMetadata{pendingA, pendingB, finalized} {
		require.NoError(t, repo.SoftDelete(ctx, m.ID))
	}
	require.NoError(t, repo.FinalizeDelete(ctx, finalized.ID))

	pending, err := repo.ListPendingPurge(ctx, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{pendingA.ID, pendingB.ID}, ids(pending))
	assert.NotContains(t, ids(pending), live.ID)

	limited, err := repo.ListPendingPurge(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
