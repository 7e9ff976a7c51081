package service

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadCatalogPrefersInline(t *testing.T) {
	c, err := LoadCatalog([]string{"a", "b"}, "/does/not/exist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(c, Catalog{"a", "b"}) {
		t.Fatalf("unexpected catalog %v", c)
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.txt")
	body := "garbage\n  normal road \n\npotholes\r\nstreet light off\nstreet light on\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	c, err := LoadCatalog(nil, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(c, civicCatalog) {
		t.Fatalf("expected %v, got %v", civicCatalog, c)
	}
}

func TestLoadCatalogErrors(t *testing.T) {
	empty := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(empty, []byte("\n\n"), 0o644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	for name, path := range map[string]string{
		"no path": "",
		"missing": filepath.Join(t.TempDir(), "nope.txt"),
		"empty":   empty,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadCatalog(nil, path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCatalogCheck(t *testing.T) {
	if err := civicCatalog.Check(5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := civicCatalog.Check(6); !errors.Is(err, ErrCatalogMismatch) {
		t.Fatalf("expected ErrCatalogMismatch, got %v", err)
	}
}
