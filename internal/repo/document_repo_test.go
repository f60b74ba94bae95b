package repo_test

import (
	"context"
	"database/sql"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/factstore/internal/config"
	"github.com/xxxsen/factstore/internal/db"
	"github.com/xxxsen/factstore/internal/model"
	appErr "github.com/xxxsen/factstore/internal/pkg/errors"
	"github.com/xxxsen/factstore/internal/repo"
)

const testDimension = 1536

// openTestDB connects to the database named by TEST_DB_* env vars and
// skips the test when none is configured. The target needs the pgvector
// extension available.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping database tests")
	}
	port, _ := strconv.Atoi(os.Getenv("TEST_DB_PORT"))
	if port == 0 {
		port = 5432
	}
	conn, err := db.Open(config.DatabaseConfig{
		Host:     host,
		Port:     port,
		User:     os.Getenv("TEST_DB_USER"),
		Password: os.Getenv("TEST_DB_PASSWORD"),
		DBName:   os.Getenv("TEST_DB_NAME"),
	})
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations(conn))
	_, err = conn.Exec("DELETE FROM documents")
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = conn.Exec("DELETE FROM documents")
		_ = conn.Close()
	})
	return conn
}

// testVector builds a unit-ish vector whose direction varies with seed
// so cosine distances between different seeds are meaningful.
func testVector(seed int) []float32 {
	vec := make([]float32, testDimension)
	for i := range vec {
		vec[i] = float32((seed+i)%7) / 7
	}
	vec[seed%testDimension] = 1
	return vec
}

func testDoc(id, content string, seed int) *model.Document {
	return &model.Document{
		DocID:     id,
		Content:   content,
		Embedding: testVector(seed),
		Metadata:  map[string]interface{}{"seed": float64(seed)},
	}
}

func TestUpsertAndGet(t *testing.T) {
	r := repo.NewDocumentRepo(openTestDB(t))
	ctx := context.Background()

	written, err := r.Upsert(ctx, testDoc("fact-1", "Remote work policy allows 3 days per week", 1))
	require.NoError(t, err)
	require.Equal(t, "fact-1", written.DocID)
	require.Len(t, written.Embedding, testDimension)
	require.False(t, written.CreatedAt.IsZero())

	fetched, err := r.Get(ctx, "fact-1")
	require.NoError(t, err)
	require.Equal(t, written.Content, fetched.Content)
	require.Equal(t, map[string]interface{}{"seed": float64(1)}, fetched.Metadata)
}

func TestUpsertReplaces(t *testing.T) {
	r := repo.NewDocumentRepo(openTestDB(t))
	ctx := context.Background()

	first, err := r.Upsert(ctx, testDoc("fact-1", "old", 1))
	require.NoError(t, err)
	second, err := r.Upsert(ctx, testDoc("fact-1", "new", 2))
	require.NoError(t, err)
	require.Equal(t, "new", second.Content)
	require.Equal(t, first.CreatedAt.Unix(), second.CreatedAt.Unix())

	count, err := r.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestGetMissing(t *testing.T) {
	r := repo.NewDocumentRepo(openTestDB(t))

	_, err := r.Get(context.Background(), "nope")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestDeleteAndBulk(t *testing.T) {
	r := repo.NewDocumentRepo(openTestDB(t))
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		_, err := r.Upsert(ctx, testDoc(id, "content "+id, i))
		require.NoError(t, err)
	}

	deleted, err := r.Delete(ctx, "a")
	require.NoError(t, err)
	require.True(t, deleted)
	deleted, err = r.Delete(ctx, "a")
	require.NoError(t, err)
	require.False(t, deleted)

	removed, err := r.DeleteBulk(ctx, []string{"b", "c", "missing"})
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	count, err := r.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestUpsertBulkRoundTrip(t *testing.T) {
	r := repo.NewDocumentRepo(openTestDB(t))
	ctx := context.Background()

	docs := []*model.Document{
		testDoc("a", "alpha fact", 1),
		testDoc("b", "beta fact", 2),
		testDoc("c", "gamma fact", 3),
	}
	written, err := r.UpsertBulk(ctx, docs)
	require.NoError(t, err)
	require.Len(t, written, 3)

	count, err := r.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestUpsertBulkDuplicateIDs(t *testing.T) {
	r := repo.NewDocumentRepo(openTestDB(t))
	ctx := context.Background()

	docs := []*model.Document{
		testDoc("a", "first version", 1),
		testDoc("b", "beta fact", 2),
		testDoc("a", "second version", 3),
	}
	written, err := r.UpsertBulk(ctx, docs)
	require.NoError(t, err)
	require.Len(t, written, 2)

	fetched, err := r.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "second version", fetched.Content)

	count, err := r.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestSearchByVectorRanksBySimilarity(t *testing.T) {
	r := repo.NewDocumentRepo(openTestDB(t))
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		_, err := r.Upsert(ctx, testDoc(id, "content "+id, i*100))
		require.NoError(t, err)
	}

	results, err := r.SearchByVector(ctx, testVector(0), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	// The query vector equals doc "a"'s embedding, so it ranks first
	// with a score of ~1.
	require.Equal(t, "a", results[0].Document.DocID)
	require.InDelta(t, 1.0, results[0].Score, 1e-6)
	require.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestFilterByPattern(t *testing.T) {
	r := repo.NewDocumentRepo(openTestDB(t))
	ctx := context.Background()

	_, err := r.Upsert(ctx, testDoc("policy", "Remote work policy allows 3 days per week", 1))
	require.NoError(t, err)
	_, err = r.Upsert(ctx, testDoc("other", "Grocery list", 2))
	require.NoError(t, err)

	docs, err := r.FilterByPattern(ctx, "%remote%work%policy%", 8)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "policy", docs[0].DocID)

	docs, err = r.FilterByPattern(ctx, "%nomatch%", 8)
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestListInsertionOrder(t *testing.T) {
	r := repo.NewDocumentRepo(openTestDB(t))
	ctx := context.Background()

	for i, id := range []string{"first", "second", "third"} {
		_, err := r.Upsert(ctx, testDoc(id, "content "+id, i))
		require.NoError(t, err)
	}

	docs, err := r.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "first", docs[0].DocID)
	require.Equal(t, "second", docs[1].DocID)
}
