package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/educore/tutor/internal/corpus"
	"github.com/educore/tutor/internal/embedding"
	"github.com/educore/tutor/internal/extract"
	"github.com/educore/tutor/internal/models"
	"github.com/educore/tutor/internal/storage"
)

type testEnv struct {
	store *storage.SQLiteStorage
	index *corpus.Index
	svc   *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	index := corpus.NewIndex(embedding.NewHashEmbedder(64), 128, 16)
	svc := NewService(store, index, extract.NewExtractor(), zap.NewNop())
	return &testEnv{store: store, index: index, svc: svc}
}

func (env *testEnv) createAgent(t *testing.T, id string) {
	t.Helper()
	agent := &models.Agent{
		ID: id, Name: "Tutor", SystemPrompt: "Tutor.",
		Status: models.AgentApproved, OwnerName: "teacher1",
	}
	if err := env.store.CreateAgent(context.Background(), agent); err != nil {
		t.Fatal(err)
	}
}

func (env *testEnv) search(t *testing.T, agentID, question string) []*corpus.ScoredPassage {
	t.Helper()
	hits, err := env.index.Search(context.Background(), agentID, question, 8)
	if err != nil {
		t.Fatal(err)
	}
	return hits
}

func TestIngestDocumentStoresAndIndexes(t *testing.T) {
	env := newTestEnv(t)
	env.createAgent(t, "a1")
	ctx := context.Background()

	doc, err := env.svc.IngestDocument(ctx, "a1", "goias.txt",
		[]byte("The capital of the state of Goiás is Goiânia."))
	if err != nil {
		t.Fatal(err)
	}
	if doc.AgentID != "a1" || doc.Filename != "goias.txt" {
		t.Errorf("got %+v", doc)
	}

	stored, err := env.store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Content == "" {
		t.Error("extracted text not persisted")
	}

	if hits := env.search(t, "a1", "What is the capital of Goiás?"); len(hits) == 0 {
		t.Error("ingested document not retrievable")
	}
}

func TestIngestDocumentExtractionFailure(t *testing.T) {
	env := newTestEnv(t)
	env.createAgent(t, "a1")

	_, err := env.svc.IngestDocument(context.Background(), "a1", "broken.docx", []byte("not a zip"))
	if err == nil {
		t.Fatal("expected extraction failure")
	}
	if !corpus.IsIngestionError(err) {
		t.Errorf("expected IngestionError, got %T", err)
	}
	docs, _ := env.store.ListDocumentsByAgent(context.Background(), "a1")
	if len(docs) != 0 {
		t.Error("failed ingestion must not leave a document row")
	}
}

func TestIngestFileFromDisk(t *testing.T) {
	env := newTestEnv(t)
	env.createAgent(t, "a1")

	path := filepath.Join(t.TempDir(), "calendar.txt")
	if err := os.WriteFile(path, []byte("School holidays begin on July 7."), 0644); err != nil {
		t.Fatal(err)
	}
	doc, err := env.svc.IngestFile(context.Background(), "a1", path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Filename != "calendar.txt" {
		t.Errorf("got %q", doc.Filename)
	}
}

func TestDeleteDocumentPurgesIndex(t *testing.T) {
	env := newTestEnv(t)
	env.createAgent(t, "a1")
	ctx := context.Background()

	doc, err := env.svc.IngestDocument(ctx, "a1", "goias.txt",
		[]byte("The capital of the state of Goiás is Goiânia."))
	if err != nil {
		t.Fatal(err)
	}
	if err := env.svc.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatal(err)
	}
	if hits := env.search(t, "a1", "What is the capital of Goiás?"); len(hits) != 0 {
		t.Error("deleted document still retrievable")
	}
}

func TestIngestKnowledgeSkipsInactive(t *testing.T) {
	env := newTestEnv(t)
	env.createAgent(t, "a1")
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)

	cases := []*models.Knowledge{
		{ID: "k-pending", Title: "calendar", Content: "School holidays begin July 7.", Status: models.KnowledgePending, AuthorName: "u"},
		{ID: "k-expired", Title: "calendar", Content: "School holidays begin July 7.", Status: models.KnowledgeApproved, AuthorName: "u", ExpiresAt: &past},
	}
	for _, k := range cases {
		if err := env.svc.IngestKnowledge(ctx, k, "a1"); err != nil {
			t.Fatal(err)
		}
	}
	if hits := env.search(t, "a1", "When do school holidays begin?"); len(hits) != 0 {
		t.Error("inactive knowledge must not be indexed")
	}

	active := &models.Knowledge{ID: "k-ok", Title: "calendar", Content: "School holidays begin July 7.", Status: models.KnowledgeApproved, AuthorName: "u"}
	if err := env.svc.IngestKnowledge(ctx, active, "a1"); err != nil {
		t.Fatal(err)
	}
	if hits := env.search(t, "a1", "When do school holidays begin?"); len(hits) == 0 {
		t.Error("active knowledge should be indexed")
	}

	env.svc.RemoveKnowledge(ctx, "k-ok", "a1")
	if hits := env.search(t, "a1", "When do school holidays begin?"); len(hits) != 0 {
		t.Error("removed knowledge still retrievable")
	}
}

// An approved item whose expiry passes while the server runs must drop out of
// retrieval on its own, matching what ActiveKnowledgeByAgent reports.
func TestIngestKnowledgeExpiresWhileIndexed(t *testing.T) {
	env := newTestEnv(t)
	env.createAgent(t, "a1")
	ctx := context.Background()

	deadline := time.Now().UTC().Add(100 * time.Millisecond)
	k := &models.Knowledge{
		ID: "k1", Title: "calendar", Content: "School holidays begin July 7.",
		Status: models.KnowledgeApproved, AuthorName: "u", ExpiresAt: &deadline,
	}
	if err := env.store.CreateKnowledge(ctx, k); err != nil {
		t.Fatal(err)
	}
	if err := env.store.AssociateKnowledge(ctx, "k1", "a1"); err != nil {
		t.Fatal(err)
	}
	if err := env.svc.IngestKnowledge(ctx, k, "a1"); err != nil {
		t.Fatal(err)
	}
	if hits := env.search(t, "a1", "When do school holidays begin?"); len(hits) == 0 {
		t.Fatal("approved item not retrievable before expiry")
	}

	time.Sleep(150 * time.Millisecond)

	active, err := env.store.ActiveKnowledgeByAgent(ctx, "a1", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Fatalf("storage still reports %d active items after expiry", len(active))
	}
	if hits := env.search(t, "a1", "When do school holidays begin?"); len(hits) != 0 {
		t.Errorf("expired item still retrievable: %d hits", len(hits))
	}
}

func TestRemoveKnowledgeIsPerAgent(t *testing.T) {
	env := newTestEnv(t)
	env.createAgent(t, "a1")
	env.createAgent(t, "a2")
	ctx := context.Background()

	k := &models.Knowledge{ID: "k1", Title: "calendar", Content: "School holidays begin July 7.", Status: models.KnowledgeApproved, AuthorName: "u"}
	if err := env.svc.IngestKnowledge(ctx, k, "a1"); err != nil {
		t.Fatal(err)
	}
	if err := env.svc.IngestKnowledge(ctx, k, "a2"); err != nil {
		t.Fatal(err)
	}

	env.svc.RemoveKnowledge(ctx, "k1", "a1")
	if hits := env.search(t, "a1", "school holidays"); len(hits) != 0 {
		t.Error("a1 still indexed after removal")
	}
	if hits := env.search(t, "a2", "school holidays"); len(hits) == 0 {
		t.Error("removal for a1 must not affect a2")
	}
}

func TestRebuildRestoresIndex(t *testing.T) {
	env := newTestEnv(t)
	env.createAgent(t, "a1")
	ctx := context.Background()

	if _, err := env.svc.IngestDocument(ctx, "a1", "goias.txt",
		[]byte("The capital of the state of Goiás is Goiânia.")); err != nil {
		t.Fatal(err)
	}
	k := &models.Knowledge{ID: "k1", Title: "calendar", Content: "School holidays begin July 7.", Status: models.KnowledgeApproved, AuthorName: "u"}
	if err := env.store.CreateKnowledge(ctx, k); err != nil {
		t.Fatal(err)
	}
	if err := env.store.AssociateKnowledge(ctx, "k1", "a1"); err != nil {
		t.Fatal(err)
	}

	// Fresh index simulates a restart; storage still holds everything.
	fresh := corpus.NewIndex(embedding.NewHashEmbedder(64), 128, 16)
	svc := NewService(env.store, fresh, extract.NewExtractor(), zap.NewNop())
	if err := svc.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}

	hits, err := fresh.Search(ctx, "a1", "What is the capital of Goiás?", 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 {
		t.Error("documents missing after rebuild")
	}
	hits, err = fresh.Search(ctx, "a1", "When do school holidays begin?", 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 {
		t.Error("knowledge missing after rebuild")
	}
}

func TestDropHandlerReplacesSameFilename(t *testing.T) {
	env := newTestEnv(t)
	env.createAgent(t, "a1")
	h := NewDropHandler(env.svc, zap.NewNop())

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("First version about Goiás geography."), 0644); err != nil {
		t.Fatal(err)
	}
	h.FileDropped("a1", path)

	if err := os.WriteFile(path, []byte("Second version about Goiás geography."), 0644); err != nil {
		t.Fatal(err)
	}
	h.FileDropped("a1", path)

	docs, err := env.store.ListDocumentsByAgent(context.Background(), "a1")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Fatalf("re-dropped file should replace, got %d documents", len(docs))
	}
	if docs[0].Content != "Second version about Goiás geography." {
		t.Errorf("stale content kept: %q", docs[0].Content)
	}
}

func TestDropHandlerFileRemoved(t *testing.T) {
	env := newTestEnv(t)
	env.createAgent(t, "a1")
	h := NewDropHandler(env.svc, zap.NewNop())

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("Temporary notes about Goiás."), 0644); err != nil {
		t.Fatal(err)
	}
	h.FileDropped("a1", path)
	h.FileRemoved("a1", path)

	docs, err := env.store.ListDocumentsByAgent(context.Background(), "a1")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 0 {
		t.Errorf("removed file's document kept: %d", len(docs))
	}
}
