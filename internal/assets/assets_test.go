package assets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/niczy/designtree/internal/models"
)

func component(t *testing.T, raw string) *models.Component {
	t.Helper()
	c := &models.Component{}
	if err := json.Unmarshal([]byte(raw), c); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return c
}

func pages() *models.Pages {
	p := models.NewOrderedMap[string]()
	p.Set("gad", "u1")
	p.Set("tbox", "u2")
	return p
}

func TestResolveAssetPath(t *testing.T) {
	cases := []struct {
		name string
		node string
		page string
		want string
	}{
		{"enabled leaf", `{"value": true, "fileId": "f1"}`, "gad", "/assets/u1/f1.svg"},
		{"disabled leaf", `{"value": false, "fileId": "f1"}`, "gad", ""},
		{"leaf without file", `{"value": true, "fileId": "none"}`, "gad", ""},
		{"nothing selected", `{"selected": "none", "options": {"none": {"fileId": "none"}}}`, "gad", ""},
		{"plain option", `{"selected": "x", "options": {"x": {"fileId": "fx"}}}`, "tbox", "/assets/u2/fx.svg"},
		{"nested option", `{"selected": "n", "options": {"n": {"selected": "s", "options": {"s": {"fileId": "fs"}}}}}`, "gad", "/assets/u1/fs.svg"},
		{"nested with nothing chosen", `{"selected": "n", "options": {"n": {"selected": " ", "options": {"s": {"fileId": "fs"}}}}}`, "gad", ""},
		{"unknown page", `{"value": true, "fileId": "f1"}`, "side", ""},
		{"dangling selection", `{"selected": "gone", "options": {"x": {"fileId": "fx"}}}`, "gad", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ResolveAssetPath(component(t, tc.node), pages(), tc.page, "/assets/")
			if ok != (tc.want != "") || got != tc.want {
				t.Fatalf("ResolveAssetPath = %q, %v; want %q", got, ok, tc.want)
			}
		})
	}
}

func TestResolvePage(t *testing.T) {
	s := models.NewStructure()
	s.Pages = pages()
	s.BaseDrawing = models.FileRef{FileID: "b1"}
	s.Components.Set("fan", models.NewLeaf("f1", true))
	s.Components.Set("lamp", models.NewLeaf("f2", false))

	layers := ResolvePage(s, "tbox", "http://cdn")
	want := []Layer{{Path: "http://cdn/u2/b1.svg"}, {Component: "fan", Path: "http://cdn/u2/f1.svg"}}
	if len(layers) != len(want) {
		t.Fatalf("ResolvePage = %+v", layers)
	}
	for i := range want {
		if layers[i] != want[i] {
			t.Fatalf("layer %d = %+v, want %+v", i, layers[i], want[i])
		}
	}
	if got := ResolvePage(s, "missing", ""); len(got) != 0 {
		t.Fatalf("unknown page resolved to %+v", got)
	}
}

type countingChecker struct {
	calls  int32
	exists map[string]bool
	err    error
}

func (c *countingChecker) Exists(ctx context.Context, path string) (bool, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.err != nil {
		return false, c.err
	}
	return c.exists[path], nil
}

func TestCachedCheckerCachesSuccessOnly(t *testing.T) {
	ctx := context.Background()
	inner := &countingChecker{exists: map[string]bool{"a": true}}
	checker := NewCachedChecker(inner)

	for i := 0; i < 3; i++ {
		ok, err := checker.Exists(ctx, "a")
		if err != nil || !ok {
			t.Fatalf("Exists(a) = %v, %v", ok, err)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("found path checked %d times", inner.calls)
	}

	for i := 0; i < 2; i++ {
		if ok, _ := checker.Exists(ctx, "b"); ok {
			t.Fatal("missing path reported present")
		}
	}
	if inner.calls != 3 {
		t.Fatalf("missing path should be rechecked, calls = %d", inner.calls)
	}
}

func TestCachedCheckerInvalidate(t *testing.T) {
	ctx := context.Background()
	inner := &countingChecker{exists: map[string]bool{"a": true}}
	checker := NewCachedChecker(inner)

	if ok, _ := checker.Exists(ctx, "a"); !ok {
		t.Fatal("Exists(a) = false")
	}
	inner.exists["a"] = false
	if ok, _ := checker.Exists(ctx, "a"); !ok {
		t.Fatal("cached success was rechecked")
	}
	checker.Invalidate("a")
	if ok, _ := checker.Exists(ctx, "a"); ok {
		t.Fatal("invalidated path still reported present")
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", inner.calls)
	}
}

func TestCachedCheckerConcurrent(t *testing.T) {
	inner := &countingChecker{exists: map[string]bool{"a": true}}
	checker := NewCachedChecker(inner)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := checker.Exists(context.Background(), "a"); err != nil || !ok {
				t.Errorf("Exists(a) = %v, %v", ok, err)
			}
		}()
	}
	wg.Wait()

	if ok, _ := checker.Exists(context.Background(), "a"); !ok {
		t.Fatal("cached path lost")
	}
}

func TestFilterDropsErrors(t *testing.T) {
	layers := []Layer{{Component: "a", Path: "a"}}
	if got := Filter(context.Background(), &countingChecker{err: errors.New("boom")}, layers); len(got) != 0 {
		t.Fatalf("Filter kept %+v", got)
	}
	if got := Filter(context.Background(), &countingChecker{exists: map[string]bool{"a": true}}, layers); len(got) != 1 {
		t.Fatalf("Filter dropped %+v", layers)
	}
}

func TestHTTPChecker(t *testing.T) {
	var heads int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("unexpected method %s", r.Method)
		}
		atomic.AddInt32(&heads, 1)
		if r.URL.Path == "/u1/f1.svg" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	checker := NewCachedChecker(NewHTTPChecker(nil))
	ctx := context.Background()

	ok, err := checker.Exists(ctx, srv.URL+"/u1/f1.svg")
	if err != nil || !ok {
		t.Fatalf("Exists(found) = %v, %v", ok, err)
	}
	if _, err := checker.Exists(ctx, srv.URL+"/u1/f1.svg"); err != nil {
		t.Fatalf("cached Exists failed: %v", err)
	}
	ok, err = checker.Exists(ctx, srv.URL+"/u1/missing.svg")
	if err != nil || ok {
		t.Fatalf("Exists(missing) = %v, %v", ok, err)
	}
	if heads != 2 {
		t.Fatalf("expected 2 HEAD requests, got %d", heads)
	}
}

type keySet map[string]bool

func (k keySet) Exists(ctx context.Context, key string) (bool, error) { return k[key], nil }

func TestStoreChecker(t *testing.T) {
	checker := NewStoreChecker(keySet{ObjectKey("u1", "f1"): true}, "/assets/")
	if ok, _ := checker.Exists(context.Background(), "/assets/u1/f1.svg"); !ok {
		t.Fatal("stored asset not found")
	}
	if ok, _ := checker.Exists(context.Background(), "/assets/u1/f2.svg"); ok {
		t.Fatal("missing asset found")
	}
}
