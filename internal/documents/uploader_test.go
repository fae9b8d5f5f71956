package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"

	"dms-backend/internal/extract"
	"dms-backend/internal/extract/extracttest"
)

func newTestUploader(policy ExtractionPolicy) (*Uploader, *fakeStore, *MemoryRepo, *fakePublisher) {
	store := newFakeStore()
	repo := NewMemoryRepo()
	events := &fakePublisher{}
	return &Uploader{
		Store:       store,
		Repo:        repo,
		Extract:     textExtract,
		Events:      events,
		Policy:      policy,
		Concurrency: 2,
	}, store, repo, events
}

func batchWithCorruptAt(n, corrupt int) []UploadedFile {
	files := make([]UploadedFile, 0, n)
	for i := 0; i < n; i++ {
		body := fmt.Sprintf("text of file %d", i)
		if i == corrupt {
			body = "BAD bytes"
		}
		files = append(files, memFile(fmt.Sprintf("f%d.pdf", i), body))
	}
	return files
}

func TestUploaderCorruptFileIsIsolatedAtAnyPosition(t *testing.T) {
	const n = 4
	for _, policy := range []ExtractionPolicy{PolicyKeep, PolicySkip} {
		for pos := 0; pos < n; pos++ {
			t.Run(fmt.Sprintf("%s/position-%d", policy, pos), func(t *testing.T) {
				up, store, repo, _ := newTestUploader(policy)

				res := up.Process(context.Background(), UploadRequest{UserID: "u1", Files: batchWithCorruptAt(n, pos)})

				want := n
				if policy == PolicySkip {
					want = n - 1
				}
				if len(res.Documents) != want {
					t.Fatalf("expected %d documents, got %d (%+v)", want, len(res.Documents), res.Failures)
				}
				if store.count() != want {
					t.Fatalf("expected %d stored objects, got %d", want, store.count())
				}
				listed, _ := repo.ListByUser(context.Background(), "u1", ListOptions{})
				if len(listed) != want {
					t.Fatalf("expected %d persisted, got %d", want, len(listed))
				}

				if policy == PolicySkip {
					if len(res.Failures) != 1 || res.Failures[0].OriginalName != fmt.Sprintf("f%d.pdf", pos) || res.Failures[0].Stage != StageExtract {
						t.Fatalf("unexpected failures: %+v", res.Failures)
					}
					return
				}
				if len(res.Failures) != 0 {
					t.Fatalf("keep policy should not fail files: %+v", res.Failures)
				}
				if res.Documents[pos].Text != "" {
					t.Fatalf("corrupt file should be kept with empty text, got %q", res.Documents[pos].Text)
				}
			})
		}
	}
}

func TestUploaderPreservesInputOrder(t *testing.T) {
	up, _, _, _ := newTestUploader(PolicyKeep)
	up.Concurrency = 8

	files := batchWithCorruptAt(8, -1)
	res := up.Process(context.Background(), UploadRequest{UserID: "u1", Files: files})

	for i, doc := range res.Documents {
		if doc.OriginalName != files[i].Name {
			t.Fatalf("position %d: got %s, want %s", i, doc.OriginalName, files[i].Name)
		}
		if doc.FileType != ".pdf" || doc.StorageProvider != "fake" || doc.URL == "" || doc.StorageID == "" {
			t.Fatalf("unexpected document fields: %+v", doc)
		}
	}
}

func TestUploaderStoreFailureOnlyAffectsThatFile(t *testing.T) {
	up, store, _, _ := newTestUploader(PolicyKeep)
	store.putErr["f1.pdf"] = errors.New("bucket unavailable")

	res := up.Process(context.Background(), UploadRequest{UserID: "u1", Files: batchWithCorruptAt(3, -1)})

	if len(res.Documents) != 2 || len(res.Failures) != 1 {
		t.Fatalf("expected 2 saved, 1 failed; got %+v / %+v", res.Documents, res.Failures)
	}
	if res.Failures[0].Stage != StageStore {
		t.Fatalf("expected store stage, got %q", res.Failures[0].Stage)
	}
}

func TestUploaderPersistFailureRemovesStoredObject(t *testing.T) {
	store := newFakeStore()
	repo := &failingRepo{MemoryRepo: NewMemoryRepo(), failNames: map[string]bool{"f0.pdf": true}}
	up := &Uploader{Store: store, Repo: repo, Extract: textExtract}

	res := up.Process(context.Background(), UploadRequest{UserID: "u1", Files: batchWithCorruptAt(2, -1)})

	if len(res.Documents) != 1 || len(res.Failures) != 1 || res.Failures[0].Stage != StagePersist {
		t.Fatalf("unexpected result: %+v", res)
	}
	if store.count() != 1 {
		t.Fatalf("expected orphan to be removed, %d objects remain", store.count())
	}
	if len(store.deleted) != 1 || store.deleted[0] != "fake://u1/f0.pdf" {
		t.Fatalf("unexpected deletes: %v", store.deleted)
	}
}

func TestUploaderRunsCleanupForEveryFile(t *testing.T) {
	up, _, _, _ := newTestUploader(PolicySkip)
	var cleaned int32

	files := batchWithCorruptAt(3, 1)
	for i := range files {
		files[i].Cleanup = func() error {
			atomic.AddInt32(&cleaned, 1)
			return errors.New("temp file already gone")
		}
	}
	up.Process(context.Background(), UploadRequest{UserID: "u1", Files: files})

	if cleaned != 3 {
		t.Fatalf("expected cleanup for all 3 files, got %d", cleaned)
	}
}

func TestUploaderReadFailure(t *testing.T) {
	up, store, _, _ := newTestUploader(PolicyKeep)
	files := []UploadedFile{
		{Name: "gone.pdf", Open: func() (io.ReadCloser, error) { return nil, errors.New("temp file missing") }},
		memFile("ok.pdf", "fine"),
	}

	res := up.Process(context.Background(), UploadRequest{UserID: "u1", Files: files})

	if len(res.Documents) != 1 || len(res.Failures) != 1 || res.Failures[0].Stage != StageRead {
		t.Fatalf("unexpected result: %+v", res)
	}
	if store.count() != 1 {
		t.Fatalf("expected one stored object, got %d", store.count())
	}
}

func TestUploaderPublishesCreatedEvents(t *testing.T) {
	up, _, _, events := newTestUploader(PolicyKeep)
	events.err = errors.New("broker down")

	res := up.Process(context.Background(), UploadRequest{UserID: "u1", RequestID: "req-1", Files: batchWithCorruptAt(2, -1)})

	if len(res.Documents) != 2 {
		t.Fatalf("publish failures must not fail uploads: %+v", res)
	}
	got := events.types()
	if len(got) != 2 || got[0] != "document.created" {
		t.Fatalf("unexpected events: %v", got)
	}
	if events.events[0].RequestID != "req-1" || !events.events[0].HasText {
		t.Fatalf("unexpected event payload: %+v", events.events[0])
	}
}

func TestParsePolicy(t *testing.T) {
	cases := map[string]ExtractionPolicy{"": PolicyKeep, "keep": PolicyKeep, "SKIP": PolicySkip, "other": PolicyKeep}
	for in, want := range cases {
		if got := ParsePolicy(in); got != want {
			t.Fatalf("ParsePolicy(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUploaderStoresUnsupportedTypesWithEmptyText(t *testing.T) {
	up, store, _, _ := newTestUploader(PolicySkip)
	up.Extract = extract.Text

	notes := memFile("notes.txt", "plain words")
	notes.MimeType = "text/plain"
	pdfBytes := string(extracttest.PDF("Hidden text"))
	bin := memFile("x.bin", pdfBytes)
	bin.MimeType = "application/pdf"

	res := up.Process(context.Background(), UploadRequest{UserID: "u1", Files: []UploadedFile{notes, bin}})

	if len(res.Failures) != 0 || len(res.Documents) != 2 {
		t.Fatalf("expected both files saved, got %+v / %+v", res.Documents, res.Failures)
	}
	for _, doc := range res.Documents {
		if doc.Text != "" {
			t.Fatalf("%s: expected empty text, got %q", doc.OriginalName, doc.Text)
		}
	}
	if res.Documents[0].FileType != ".txt" || res.Documents[1].FileType != ".bin" {
		t.Fatalf("unexpected file types: %q, %q", res.Documents[0].FileType, res.Documents[1].FileType)
	}
	if store.count() != 2 {
		t.Fatalf("expected 2 stored objects, got %d", store.count())
	}
}

func TestUploaderExtractFromStoreReadsObjectBack(t *testing.T) {
	up, store, _, _ := newTestUploader(PolicySkip)
	up.ExtractFromStore = true

	res := up.Process(context.Background(), UploadRequest{UserID: "u1", Files: []UploadedFile{memFile("a.pdf", "stored text")}})

	if len(res.Documents) != 1 || len(res.Failures) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	doc := res.Documents[0]
	if doc.Text != "stored text" || doc.Size != int64(len("stored text")) {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if len(store.opened) != 1 || store.opened[0] != doc.URL {
		t.Fatalf("expected one read back of %q, got %v", doc.URL, store.opened)
	}
}

func TestUploaderExtractFromStoreUnreadableObject(t *testing.T) {
	t.Run("skip discards the stored object", func(t *testing.T) {
		up, store, repo, _ := newTestUploader(PolicySkip)
		up.ExtractFromStore = true
		store.openErr = errors.New("not yet visible")

		res := up.Process(context.Background(), UploadRequest{UserID: "u1", Files: []UploadedFile{memFile("a.pdf", "body")}})

		if len(res.Failures) != 1 || res.Failures[0].Stage != StageExtract {
			t.Fatalf("expected extract failure, got %+v", res)
		}
		if store.count() != 0 || len(store.deleted) != 1 {
			t.Fatalf("expected stored object to be discarded, count=%d deleted=%v", store.count(), store.deleted)
		}
		if listed, _ := repo.ListByUser(context.Background(), "u1", ListOptions{}); len(listed) != 0 {
			t.Fatalf("expected nothing persisted, got %d", len(listed))
		}
	})

	t.Run("keep saves with empty text", func(t *testing.T) {
		up, store, _, _ := newTestUploader(PolicyKeep)
		up.ExtractFromStore = true
		store.openErr = errors.New("not yet visible")

		res := up.Process(context.Background(), UploadRequest{UserID: "u1", Files: []UploadedFile{memFile("a.pdf", "body")}})

		if len(res.Documents) != 1 || res.Documents[0].Text != "" || res.Documents[0].Size != 4 {
			t.Fatalf("expected document with empty text, got %+v", res)
		}
		if store.count() != 1 {
			t.Fatalf("expected object kept, got %d", store.count())
		}
	})
}
