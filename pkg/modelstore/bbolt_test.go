package modelstore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/adaptivebreaker/breaker/pkg/logx"
)

func testLogger() *logx.Logger {
	return logx.New(logx.Options{Level: "error", Output: os.Stderr})
}

func TestStore_SaveAndLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.bbolt")
	store, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer store.Close()

	want := []byte("serialized ensemble blob")
	if err := store.Save(want, "checkout"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := store.Load("checkout")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Load() = %q, want %q", got, want)
	}
}

func TestStore_LoadMissingKeyReturnsNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.bbolt")
	store, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer store.Close()

	got, err := store.Load("never-saved")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got != nil {
		t.Fatalf("Load() of a missing key = %v, want nil", got)
	}
}

func TestStore_SaveOverwritesExistingValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.bbolt")
	store, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer store.Close()

	_ = store.Save([]byte("first"), "checkout")
	_ = store.Save([]byte("second"), "checkout")

	got, err := store.Load("checkout")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("Load() = %q, want %q", got, "second")
	}
}

func TestStore_KeysAreIsolatedPerServiceName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.bbolt")
	store, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer store.Close()

	_ = store.Save([]byte("checkout-blob"), "checkout")
	_ = store.Save([]byte("payments-blob"), "payments")

	got, err := store.Load("payments")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if string(got) != "payments-blob" {
		t.Fatalf("Load(\"payments\") = %q, want %q", got, "payments-blob")
	}
}

func TestOpen_ReopensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.bbolt")
	store, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	_ = store.Save([]byte("persisted"), "checkout")
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	reopened, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("re-open error: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Load("checkout")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if string(got) != "persisted" {
		t.Fatalf("Load() after reopen = %q, want %q", got, "persisted")
	}
}
