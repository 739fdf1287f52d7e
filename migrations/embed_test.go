package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	if err := Validate(); err != nil {
		t.Fatalf("embedded migration set is invalid: %v", err)
	}
}

func TestList_SortedAndPaired(t *testing.T) {
	names, err := List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}

	if len(names) == 0 {
		t.Fatal("no embedded migrations")
	}

	ups := 0
	downs := 0

	for i, name := range names {
		if i > 0 && names[i-1] > name {
			t.Errorf("migrations out of order: %s before %s", names[i-1], name)
		}

		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups++
		case strings.HasSuffix(name, ".down.sql"):
			downs++
		default:
			t.Errorf("unexpected migration filename: %s", name)
		}
	}

	if ups != downs {
		t.Errorf("unpaired migrations: %d up, %d down", ups, downs)
	}
}

func TestMaxVersion(t *testing.T) {
	names, err := List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}

	want := len(names) / 2
	if got := MaxVersion(); got != want {
		t.Errorf("MaxVersion() = %d, want %d", got, want)
	}
}

func TestFS_ContainsAllListed(t *testing.T) {
	names, err := List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}

	for _, name := range names {
		content, err := fs.ReadFile(FS(), name)
		if err != nil {
			t.Errorf("failed to read %s: %v", name, err)

			continue
		}

		if len(content) == 0 {
			t.Errorf("migration %s is empty", name)
		}
	}
}
