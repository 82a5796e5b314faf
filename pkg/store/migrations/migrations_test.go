package migrations

import (
	"errors"
	"io"
	"os"
	"testing"
)

func TestSource_Sequence(t *testing.T) {
	src, err := Source()
	if err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	defer src.Close()

	version, err := src.First()
	if err != nil {
		t.Fatalf("First() error = %v", err)
	}
	var versions []uint
	for {
		versions = append(versions, version)
		for _, read := range []func(uint) (io.ReadCloser, string, error){src.ReadUp, src.ReadDown} {
			r, _, err := read(version)
			if err != nil {
				t.Fatalf("migration %d is missing a direction: %v", version, err)
			}
			r.Close()
		}
		next, err := src.Next(version)
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		if err != nil {
			t.Fatalf("Next(%d) error = %v", version, err)
		}
		version = next
	}
	if len(versions) != 3 || versions[0] != 1 || versions[2] != 3 {
		t.Fatalf("versions = %v, want 1..3", versions)
	}
}
