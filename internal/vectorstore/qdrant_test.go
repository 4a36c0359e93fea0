package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nholik/stackboot/internal/logging"
)

// fakeQdrant serves just enough of the collections API for the client.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]fakeCollection
	operations  []string
}

type fakeCollection struct {
	size     int
	distance string
	points   int64
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{collections: map[string]fakeCollection{}}
}

func (f *fakeQdrant) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/collections/")

		f.mu.Lock()
		defer f.mu.Unlock()
		f.operations = append(f.operations, r.Method+" "+name)

		switch r.Method {
		case http.MethodGet:
			collection, ok := f.collections[name]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			payload := map[string]any{
				"result": map[string]any{
					"points_count": collection.points,
					"config": map[string]any{
						"params": map[string]any{
							"vectors": map[string]any{
								"size":     collection.size,
								"distance": collection.distance,
							},
						},
					},
				},
			}
			_ = json.NewEncoder(w).Encode(payload)
		case http.MethodPut:
			var body struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.collections[name] = fakeCollection{size: body.Vectors.Size, distance: body.Vectors.Distance}
			_, _ = fmt.Fprint(w, `{"result":true,"status":"ok"}`)
		case http.MethodDelete:
			if _, ok := f.collections[name]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(f.collections, name)
			_, _ = fmt.Fprint(w, `{"result":true,"status":"ok"}`)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func (f *fakeQdrant) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.operations...)
}

func newTestClient(t *testing.T, fake *fakeQdrant) *Client {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	client, err := NewClient(logging.New(), server.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestEnsureCollection_CreatesMissing(t *testing.T) {
	fake := newFakeQdrant()
	client := newTestClient(t, fake)

	if err := client.EnsureCollection(context.Background(), DefaultSpec()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	created, ok := fake.collections[DefaultCollection]
	if !ok {
		t.Fatalf("collection was not created")
	}
	if created.size != DefaultVectorSize || created.distance != DefaultDistance {
		t.Fatalf("unexpected collection: %+v", created)
	}
}

func TestEnsureCollection_KeepsMatching(t *testing.T) {
	fake := newFakeQdrant()
	fake.collections[DefaultCollection] = fakeCollection{size: DefaultVectorSize, distance: DefaultDistance, points: 1200}
	client := newTestClient(t, fake)

	if err := client.EnsureCollection(context.Background(), DefaultSpec()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ops := fake.ops()
	if len(ops) != 1 || ops[0] != "GET "+DefaultCollection {
		t.Fatalf("expected a single GET, got %v", ops)
	}
	if fake.collections[DefaultCollection].points != 1200 {
		t.Fatalf("existing collection was modified")
	}
}

func TestEnsureCollection_RecreatesMismatchedEmpty(t *testing.T) {
	fake := newFakeQdrant()
	fake.collections[DefaultCollection] = fakeCollection{size: 384, distance: "Dot"}
	client := newTestClient(t, fake)

	if err := client.EnsureCollection(context.Background(), DefaultSpec()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recreated := fake.collections[DefaultCollection]
	if recreated.size != DefaultVectorSize || recreated.distance != DefaultDistance {
		t.Fatalf("unexpected collection after recreate: %+v", recreated)
	}

	want := []string{"GET " + DefaultCollection, "DELETE " + DefaultCollection, "PUT " + DefaultCollection}
	if got := fake.ops(); len(got) != len(want) || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("unexpected operations: %v", got)
	}
}

func TestEnsureCollection_MismatchedWithPoints(t *testing.T) {
	fake := newFakeQdrant()
	fake.collections[DefaultCollection] = fakeCollection{size: 384, distance: "Dot", points: 42}
	client := newTestClient(t, fake)

	err := client.EnsureCollection(context.Background(), DefaultSpec())
	if !errors.Is(err, ErrCollectionConflict) {
		t.Fatalf("expected ErrCollectionConflict, got %v", err)
	}
	if fake.collections[DefaultCollection].points != 42 {
		t.Fatalf("conflicting collection was modified")
	}
}

func TestEnsureCollection_Idempotent(t *testing.T) {
	fake := newFakeQdrant()
	client := newTestClient(t, fake)

	for range 3 {
		if err := client.EnsureCollection(context.Background(), DefaultSpec()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	puts := 0
	for _, op := range fake.ops() {
		if strings.HasPrefix(op, "PUT ") {
			puts++
		}
	}
	if puts != 1 {
		t.Fatalf("expected exactly one create, got %d", puts)
	}
}

func TestReset_RequiresForce(t *testing.T) {
	fake := newFakeQdrant()
	fake.collections[DefaultCollection] = fakeCollection{size: DefaultVectorSize, distance: DefaultDistance, points: 10}
	client := newTestClient(t, fake)

	if err := client.Reset(context.Background(), DefaultSpec(), false); err == nil {
		t.Fatalf("expected error without force")
	}
	if len(fake.ops()) != 0 {
		t.Fatalf("reset without force must not reach the server: %v", fake.ops())
	}
}

func TestReset_ForcedDropsPoints(t *testing.T) {
	fake := newFakeQdrant()
	fake.collections[DefaultCollection] = fakeCollection{size: DefaultVectorSize, distance: DefaultDistance, points: 10}
	client := newTestClient(t, fake)

	if err := client.Reset(context.Background(), DefaultSpec(), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.collections[DefaultCollection].points != 0 {
		t.Fatalf("expected an empty collection after reset")
	}
}

func TestEnsureCollection_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(logging.New(), server.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if err := client.EnsureCollection(context.Background(), DefaultSpec()); err == nil {
		t.Fatalf("expected error for server failure")
	}
}

func TestNewClient_RequiresURL(t *testing.T) {
	if _, err := NewClient(logging.New(), ""); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
