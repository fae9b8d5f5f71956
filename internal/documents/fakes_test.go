package documents

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"dms-backend/internal/queue"
	"dms-backend/internal/shared/storage/object"
)

type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	putErr    map[string]error // fileName -> error
	deleteErr error
	openErr   error
	deleted   []string
	opened    []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, putErr: map[string]error{}}
}

func (s *fakeStore) Provider() string { return "fake" }

func (s *fakeStore) Put(_ context.Context, ownerID, fileName, _ string, r io.Reader) (object.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putErr[fileName]; err != nil {
		return object.Object{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return object.Object{}, err
	}
	key := ownerID + "/" + fileName
	s.objects[key] = data
	return object.Object{Locator: "fake://" + key, Key: key, Provider: "fake", Size: int64(len(data))}, nil
}

func (s *fakeStore) Open(_ context.Context, locator string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = append(s.opened, locator)
	if s.openErr != nil {
		return nil, s.openErr
	}
	data, ok := s.objects[strings.TrimPrefix(locator, "fake://")]
	if !ok {
		return nil, object.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) Delete(_ context.Context, locator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, locator)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	key := strings.TrimPrefix(locator, "fake://")
	if _, ok := s.objects[key]; !ok {
		return object.ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, evt queue.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// failingRepo rejects Create for the named files.
type failingRepo struct {
	*MemoryRepo
	failNames map[string]bool
}

func (r *failingRepo) Create(ctx context.Context, doc Document) error {
	if r.failNames[doc.OriginalName] {
		return errors.New("insert failed")
	}
	return r.MemoryRepo.Create(ctx, doc)
}

var errCorrupt = errors.New("corrupt payload")

// textExtract treats payloads starting with "BAD" as unparseable and returns
// the rest as text.
func textExtract(_ context.Context, data []byte, _, _ string) (string, error) {
	if bytes.HasPrefix(data, []byte("BAD")) {
		return "", errCorrupt
	}
	return string(data), nil
}

func memFile(name, body string) UploadedFile {
	return UploadedFile{
		Name:     name,
		MimeType: "application/octet-stream",
		Size:     int64(len(body)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}
