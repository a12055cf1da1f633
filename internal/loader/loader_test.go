package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadSingleFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "scenes.yaml", `
- id: evening
  name: Evening
  icon: mdi:weather-night
  entities:
    light.lounge:
      state: "on"
      brightness: 90
    light.hall: "on"
    switch.fountain: false
- name: Movie Time
  entities:
    media_player.tv: playing
`)

	defs, err := New(path, nil).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("Load() returned %d scenes, want 2", len(defs))
	}

	evening := defs[0]
	if evening.ID != "evening" || evening.Name != "Evening" || evening.Icon != "mdi:weather-night" {
		t.Errorf("identity = %+v", evening)
	}
	if len(evening.Entities) != 3 {
		t.Fatalf("evening has %d entities, want 3", len(evening.Entities))
	}
	// Sorted by entity id.
	if evening.Entities[0].EntityID != "light.hall" ||
		evening.Entities[1].EntityID != "light.lounge" ||
		evening.Entities[2].EntityID != "switch.fountain" {
		t.Errorf("entity order = %v", evening.Entities)
	}
	if evening.Entities[0].State != "on" {
		t.Errorf("scalar shorthand state = %q, want on", evening.Entities[0].State)
	}

	lounge := evening.Entities[1]
	if lounge.State != "on" {
		t.Errorf("lounge state = %q, want on", lounge.State)
	}
	if got := lounge.Attributes["brightness"]; got != 90 {
		t.Errorf("lounge brightness = %v (%T), want 90", got, got)
	}
	if _, leaked := lounge.Attributes["state"]; leaked {
		t.Error("state key leaked into attributes")
	}

	if evening.Entities[2].State != "off" {
		t.Errorf("boolean false state = %q, want off", evening.Entities[2].State)
	}

	movie := defs[1]
	if movie.ID != "" {
		t.Errorf("undeclared id = %q, want empty (assigned at load)", movie.ID)
	}
	if movie.Entities[0].State != "playing" {
		t.Errorf("tv state = %q, want playing", movie.Entities[0].State)
	}
}

func TestLoadSingleMapping(t *testing.T) {
	path := writeFile(t, t.TempDir(), "scene.yaml", `
name: Solo
entities:
  light.desk: "on"
`)

	defs, err := New(path, nil).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(defs) != 1 || defs[0].Name != "Solo" {
		t.Errorf("Load() = %+v", defs)
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b_second.yml", `
- name: Second
  entities:
    light.b: "on"
`)
	writeFile(t, dir, "a_first.yaml", `
- name: First
  entities:
    light.a: "on"
`)
	writeFile(t, dir, "broken.yaml", "{ not: [valid")
	writeFile(t, dir, "notes.txt", "ignored")

	defs, err := New(dir, nil).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("Load() returned %d scenes, want 2", len(defs))
	}
	// Filename order.
	if defs[0].Name != "First" || defs[1].Name != "Second" {
		t.Errorf("scene order = [%s %s], want [First Second]", defs[0].Name, defs[1].Name)
	}
}

func TestLoadMissingPath(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope.yaml"), nil).Load()
	if !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("Load() error = %v, want ErrSourceNotFound", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "{ not: [valid")

	_, err := New(path, nil).Load()
	if !errors.Is(err, ErrSourceInvalid) {
		t.Errorf("Load() error = %v, want ErrSourceInvalid", err)
	}
}

func TestLoadScalarDocument(t *testing.T) {
	path := writeFile(t, t.TempDir(), "scalar.yaml", "42\n")

	_, err := New(path, nil).Load()
	if !errors.Is(err, ErrSourceInvalid) {
		t.Errorf("Load() error = %v, want ErrSourceInvalid", err)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.yaml", "")

	defs, err := New(path, nil).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(defs) != 0 {
		t.Errorf("Load() returned %d scenes from empty file", len(defs))
	}
}

func TestLoadSkipsNonSceneItems(t *testing.T) {
	path := writeFile(t, t.TempDir(), "mixed.yaml", `
- name: Platform Scene
- name: Real Scene
  entities:
    light.a: "on"
- just a string
`)

	defs, err := New(path, nil).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(defs) != 1 || defs[0].Name != "Real Scene" {
		t.Errorf("Load() = %+v, want only Real Scene", defs)
	}
}

func TestLoadDuplicateKeepsFirst(t *testing.T) {
	path := writeFile(t, t.TempDir(), "dup.yaml", `
- id: evening
  name: Evening One
  entities:
    light.a: "on"
- id: evening
  name: Evening Two
  entities:
    light.b: "on"
- name: Evening
  entities:
    light.c: "on"
`)

	defs, err := New(path, nil).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	// The third scene's name slugs to "evening" too, colliding with the
	// declared id of the first.
	if len(defs) != 1 {
		t.Fatalf("Load() returned %d scenes, want 1", len(defs))
	}
	if defs[0].Name != "Evening One" {
		t.Errorf("kept scene = %s, want Evening One", defs[0].Name)
	}
}

func TestLoadUnnamedScene(t *testing.T) {
	path := writeFile(t, t.TempDir(), "unnamed.yaml", `
- entities:
    light.a: "on"
`)

	defs, err := New(path, nil).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(defs) != 1 || defs[0].Name != "Unnamed Scene" {
		t.Errorf("Load() = %+v, want Unnamed Scene placeholder", defs)
	}
}
