package quality

import (
	"bytes"
	"go/format"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestCodeFormatting 要求项目内所有 Go 源文件都已 gofmt。
// 以 _ 或 . 开头的目录、testdata 与 vendor 不属于模块源码，跳过。
func TestCodeFormatting(t *testing.T) {
	projectRoot, err := findProjectRoot()
	if err != nil {
		t.Fatalf("Failed to find project root: %v", err)
	}

	var goFiles []string
	err = filepath.WalkDir(projectRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != projectRoot && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || name == "testdata" || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".go") {
			goFiles = append(goFiles, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to walk project directory: %v", err)
	}
	if len(goFiles) == 0 {
		t.Fatal("No Go files found in project")
	}

	for _, file := range goFiles {
		src, err := os.ReadFile(file)
		if err != nil {
			t.Errorf("read %s: %v", file, err)
			continue
		}
		formatted, err := format.Source(src)
		if err != nil {
			t.Errorf("File %s does not parse: %v", file, err)
			continue
		}
		if !bytes.Equal(src, formatted) {
			rel, _ := filepath.Rel(projectRoot, file)
			t.Errorf("File %s is not gofmt-formatted; run 'gofmt -w %s'", rel, rel)
		}
	}
	t.Logf("Checked %d Go files for formatting consistency", len(goFiles))
}

// TestPackageLayout 确保每个 internal 包都带有测试文件。
func TestPackageLayout(t *testing.T) {
	projectRoot, err := findProjectRoot()
	if err != nil {
		t.Fatalf("Failed to find project root: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(projectRoot, "internal"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		tests, _ := filepath.Glob(filepath.Join(projectRoot, "internal", e.Name(), "*_test.go"))
		if len(tests) == 0 {
			t.Errorf("package internal/%s has no tests", e.Name())
		}
	}
}

// findProjectRoot finds the project root by looking for go.mod
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}
