package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func exercise(t *testing.T, fsys FileSystem, root string) {
	t.Helper()

	dir := filepath.Join(root, "run", "plots")
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if !fsys.Exists(dir) || !fsys.Exists(filepath.Join(root, "run")) {
		t.Fatal("directories should exist after MkdirAll")
	}

	w, err := fsys.Create(filepath.Join(dir, "b.csv"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Write([]byte("a,b\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("1,2\n")); err != nil {
		t.Fatal(err)
	}
	if fsys.Exists(filepath.Join(dir, "b.csv")) {
		t.Error("file visible before Close")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := fsys.WriteFile(filepath.Join(dir, "a.png"), []byte{0x89, 'P'}, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := fsys.ReadFile(filepath.Join(dir, "b.csv"))
	if err != nil || string(got) != "a,b\n1,2\n" {
		t.Errorf("ReadFile = %q, %v", got, err)
	}

	names, err := fsys.List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := []string{"a.png", "b.csv"}; !reflect.DeepEqual(names, want) {
		t.Errorf("List = %v, want %v", names, want)
	}

	if _, err := fsys.ReadFile(filepath.Join(dir, "missing")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file: %v", err)
	}
	if _, err := fsys.List(filepath.Join(root, "nope")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing dir: %v", err)
	}

	if err := fsys.RemoveAll(filepath.Join(root, "run")); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if fsys.Exists(filepath.Join(dir, "a.png")) || fsys.Exists(dir) {
		t.Error("RemoveAll left entries behind")
	}
}

func TestOSFileSystem(t *testing.T) {
	exercise(t, OSFileSystem{}, t.TempDir())
}

func TestMemoryFileSystem(t *testing.T) {
	exercise(t, NewMemoryFileSystem(), "/out")
}

func TestOSCreateLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := OSFileSystem{}.Create(filepath.Join(dir, "x.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "x.csv" {
		t.Errorf("entries = %v", entries)
	}
	info, err := os.Stat(filepath.Join(dir, "x.csv"))
	if err != nil || info.Mode().Perm() != 0o644 {
		t.Errorf("mode = %v, %v", info, err)
	}
}

func TestMemoryFileSystemDataIsolation(t *testing.T) {
	m := NewMemoryFileSystem()
	data := []byte("abc")
	if err := m.WriteFile("f", data, 0o644); err != nil {
		t.Fatal(err)
	}
	data[0] = 'x'
	got, _ := m.ReadFile("f")
	got[1] = 'y'
	again, _ := m.ReadFile("./f")
	if string(again) != "abc" {
		t.Errorf("stored data changed: %q", again)
	}
}
