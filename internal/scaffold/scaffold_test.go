package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"classroom-grader/internal/buildtool"
	"classroom-grader/internal/grading"
)

func request() *grading.Request {
	return &grading.Request{
		AssignmentID: "assignment-7",
		SourceFiles: map[string]string{
			"com/example/Calculator.java": "package com.example;\nclass Calculator {}\n",
			"com/example/Helper.java":     "package com.example;\nclass Helper {}\n",
		},
		TestFiles: map[string]string{
			"com/example/CalculatorTest.java": "package com.example;\nclass CalculatorTest {}\n",
		},
	}
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestSetup_Gradle(t *testing.T) {
	dir := t.TempDir()
	req := request()

	if err := Setup(dir, req, &buildtool.GradleTool{}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	// Config files at the root.
	if got := mustRead(t, filepath.Join(dir, "build.gradle")); got == "" {
		t.Error("build.gradle is empty")
	}
	if _, err := os.Stat(filepath.Join(dir, "settings.gradle")); err != nil {
		t.Error("settings.gradle missing")
	}

	// Two-root layout, files verbatim at their declared paths.
	src := mustRead(t, filepath.Join(dir, "src/main/java/com/example/Calculator.java"))
	if src != req.SourceFiles["com/example/Calculator.java"] {
		t.Errorf("source content = %q, want verbatim copy", src)
	}
	tst := mustRead(t, filepath.Join(dir, "src/test/java/com/example/CalculatorTest.java"))
	if tst != req.TestFiles["com/example/CalculatorTest.java"] {
		t.Errorf("test content = %q, want verbatim copy", tst)
	}
}

func TestSetup_Maven(t *testing.T) {
	dir := t.TempDir()

	if err := Setup(dir, request(), &buildtool.MavenTool{}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "pom.xml")); err != nil {
		t.Error("pom.xml missing")
	}
	if _, err := os.Stat(filepath.Join(dir, "src/main/java/com/example/Helper.java")); err != nil {
		t.Error("source tree missing")
	}
}

func TestSetup_WritesNothingElse(t *testing.T) {
	dir := t.TempDir()
	req := request()

	if err := Setup(dir, req, &buildtool.MavenTool{}); err != nil {
		t.Fatal(err)
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(dir, path)
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	want := 1 + len(req.SourceFiles) + len(req.TestFiles) // pom.xml + sources + tests
	if len(files) != want {
		t.Errorf("scaffold wrote %d files %v, want %d", len(files), files, want)
	}
}

func TestSetup_RejectsEscapingPaths(t *testing.T) {
	dir := t.TempDir()
	req := &grading.Request{
		SourceFiles: map[string]string{"../../../../../../etc/passwd": "x"},
	}

	if err := Setup(dir, req, &buildtool.GradleTool{}); err == nil {
		t.Error("Setup() should reject paths escaping the project directory")
	}
}
