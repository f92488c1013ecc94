package extensions

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestResolveLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/ext.js"
	if err := os.WriteFile(path, []byte("module.exports = {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := New(t.TempDir())
	src, err := c.Resolve(path)
	if err != nil {
		t.Fatal(err)
	}
	if src != "module.exports = {}" {
		t.Fatalf("got %q", src)
	}
}

func TestFetchCachedRemote(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("remote source"))
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	c := New(cacheDir)

	for i := 0; i < 2; i++ {
		src, err := c.Resolve(srv.URL)
		if err != nil {
			t.Fatal(err)
		}
		if src != "remote source" {
			t.Fatalf("got %q", src)
		}
	}
	if hits != 1 {
		t.Fatalf("expected exactly one fetch, got %d", hits)
	}
}
