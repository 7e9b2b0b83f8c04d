package largefile

import (
	"bytes"
	"testing"

	"github.com/layerfs/scmstore/internal/contenthash"
	"github.com/layerfs/scmstore/service/backend"
)

// TestRoundTrip is invariant 6: writing a blob places it under its content
// hash, and a subsequent fetch returns identical content.
func TestRoundTrip(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	data := bytes.Repeat([]byte("big-file-content"), 1024)
	hash := contenthash.Sum(data)

	if err := d.AddBlob(hash, data); err != nil {
		t.Fatal(err)
	}

	entry, ok, err := d.FetchAvailable(backend.StoreKey{ContentHash: hash, ByHash: true})
	if err != nil {
		t.Fatal(err)
	}
	if !ok || !entry.HasBlob {
		t.Fatal("expected blob to be found after AddBlob")
	}
	if !bytes.Equal(entry.Blob, data) {
		t.Fatal("round-tripped content does not match")
	}
}

func TestAddBlobRejectsHashMismatch(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	wrongHash := contenthash.Sum([]byte("not the data"))
	if err := d.AddBlob(wrongHash, []byte("actual data")); err == nil {
		t.Fatal("expected hash-mismatch error")
	}
}

func TestFetchAvailableMiss(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, ok, err := d.FetchAvailable(backend.StoreKey{ContentHash: contenthash.Sum([]byte("nope")), ByHash: true})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected miss for unknown hash")
	}
}
