package listing_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/filegate/internal/listing"
	"github.com/zots0127/filegate/internal/storage"
)

func seedStore(t *testing.T, names ...string) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range names {
		store.Put(name, []byte(strings.Repeat("x", i+1)), base.Add(time.Duration(i)*time.Minute))
	}
	return store
}

func TestListPagination(t *testing.T) {
	// 23 matching files at page size 10.
	names := make([]string, 23)
	for i := range names {
		names[i] = fmt.Sprintf("doc-%02d.txt", i)
	}
	svc := listing.NewService(seedStore(t, names...))
	ctx := context.Background()

	tests := []struct {
		page      int
		wantItems int
	}{
		{page: 1, wantItems: 10},
		{page: 2, wantItems: 10},
		{page: 3, wantItems: 3},
		{page: 4, wantItems: 0},
		{page: 100, wantItems: 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("page %d", tt.page), func(t *testing.T) {
			result, err := svc.List(ctx, "", tt.page)
			require.NoError(t, err)
			assert.Len(t, result.Files, tt.wantItems)
			assert.Equal(t, 3, result.TotalPages)
		})
	}
}

func TestListSearchFilter(t *testing.T) {
	svc := listing.NewService(seedStore(t,
		"Report-2024.pdf", "notes.txt", "REPORTS/archive.zip", "holiday.jpg"))
	ctx := context.Background()

	result, err := svc.List(ctx, "report", 1)
	require.NoError(t, err)
	require.Len(t, result.Files, 2)
	for _, f := range result.Files {
		assert.Contains(t, strings.ToLower(f.Name), "report")
	}

	// No false negatives: everything matching the term is returned.
	gotNames := []string{result.Files[0].Name, result.Files[1].Name}
	assert.ElementsMatch(t, []string{"Report-2024.pdf", "REPORTS/archive.zip"}, gotNames)

	// Empty term matches all.
	result, err = svc.List(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, result.Files, 4)
	assert.Equal(t, 1, result.TotalPages)

	// A term matching nothing yields zero pages, not an error.
	result, err = svc.List(ctx, "does-not-exist", 1)
	require.NoError(t, err)
	assert.Empty(t, result.Files)
	assert.Equal(t, 0, result.TotalPages)
}

func TestListPreservesEnumerationOrder(t *testing.T) {
	svc := listing.NewService(seedStore(t, "a.txt", "b.txt", "c.txt", "d.txt"))

	result, err := svc.List(context.Background(), "", 1)
	require.NoError(t, err)
	require.Len(t, result.Files, 4)
	for i, want := range []string{"a.txt", "b.txt", "c.txt", "d.txt"} {
		assert.Equal(t, want, result.Files[i].Name)
	}
}

func TestListReturnsMetadata(t *testing.T) {
	store := storage.NewMemoryStore()
	updated := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store.Put("a.txt", []byte("hello"), updated)
	svc := listing.NewService(store)

	result, err := svc.List(context.Background(), "", 1)
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	assert.Equal(t, listing.FileRecord{Name: "a.txt", UpdatedAt: updated, Size: 5}, result.Files[0])
}

func TestListMetadataFailureFailsWholeCall(t *testing.T) {
	store := seedStore(t, "a.txt", "b.txt", "c.txt")
	store.StatErr = map[string]error{"b.txt": errors.New("backend down")}
	svc := listing.NewService(store)

	_, err := svc.List(context.Background(), "", 1)
	var storageErr *storage.Error
	require.ErrorAs(t, err, &storageErr)
}

func TestListEnumerationFailure(t *testing.T) {
	store := seedStore(t, "a.txt")
	store.ListErr = errors.New("backend down")
	svc := listing.NewService(store)

	_, err := svc.List(context.Background(), "", 1)
	var storageErr *storage.Error
	require.ErrorAs(t, err, &storageErr)
}

func TestListPageBelowOne(t *testing.T) {
	svc := listing.NewService(seedStore(t, "a.txt", "b.txt"))

	result, err := svc.List(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, result.Files, 2)
	assert.Equal(t, 1, result.TotalPages)
}
