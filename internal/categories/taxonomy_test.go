package categories

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMapUsesSynonymsAndCanonical(t *testing.T) {
	got := Default().Map([]string{" Padel Tennis ", "TENNIS", "ping pong", "", "underwater hockey", "padel"})
	want := "padel,table_tennis,tennis"
	if strings.Join(got, ",") != want {
		t.Fatalf("Map = %v, want %s", got, want)
	}
}

func TestMapKeepsSynonymTargetsOutsideCanonicalList(t *testing.T) {
	got := Default().Map([]string{"Kids Club", "sauna"})
	if strings.Join(got, ",") != "family,spa" {
		t.Fatalf("Map = %v, want [family spa]", got)
	}
}

func TestMapEmpty(t *testing.T) {
	if got := Default().Map(nil); len(got) != 0 {
		t.Fatalf("expected no categories, got %v", got)
	}
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	content := `
canonical:
  - bouldering
synonyms:
  "rock climbing": climbing
  "indoor bouldering": bouldering
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write taxonomy: %v", err)
	}

	tax, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got := tax.Map([]string{"Rock Climbing", "indoor bouldering", "padel"})
	if strings.Join(got, ",") != "bouldering,climbing,padel" {
		t.Fatalf("Map = %v", got)
	}
}

func TestStrings(t *testing.T) {
	got := Strings([]any{"padel", 3.0, "tennis"})
	if strings.Join(got, ",") != "padel,tennis" {
		t.Fatalf("Strings = %v", got)
	}
	if Strings(nil) != nil {
		t.Fatal("expected nil for nil input")
	}
}
