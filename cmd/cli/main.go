package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL    string
	tool         string
	assignmentID string
	studentID    string
	timeLimit    string
)

func main() {
	root := &cobra.Command{
		Use:   "grader-cli",
		Short: "CLI client for classroom-grader",
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")

	// Grade a local project directory
	gradeCmd := &cobra.Command{
		Use:   "grade [dir]",
		Short: "Grade a project directory (src/ holds sources, test/ holds tests)",
		Args:  cobra.ExactArgs(1),
		RunE:  runGrade,
	}
	gradeCmd.Flags().StringVarP(&tool, "tool", "t", "", "Build tool (gradle, maven)")
	gradeCmd.Flags().StringVarP(&assignmentID, "assignment", "a", "", "Assignment ID (enables rubric grading)")
	gradeCmd.Flags().StringVarP(&studentID, "student", "s", "", "Student ID")
	root.AddCommand(gradeCmd)

	// Timed attempt lifecycle
	attemptCmd := &cobra.Command{
		Use:   "attempt",
		Short: "Manage timed assessment attempts",
	}
	attemptCmd.PersistentFlags().StringVarP(&assignmentID, "assignment", "a", "", "Assignment ID")
	attemptCmd.PersistentFlags().StringVarP(&studentID, "student", "s", "", "Student ID")
	attemptCmd.PersistentFlags().StringVar(&timeLimit, "limit", "45m", "Assignment time limit")

	attemptCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start (or rejoin) an attempt",
		RunE:  runAttemptStart,
	})
	attemptCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the attempt clock",
		RunE:  runAttemptStatus,
	})
	submitCmd := &cobra.Command{
		Use:   "submit [dir]",
		Short: "Submit an attempt, snapshotting the given directory",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAttemptSubmit,
	}
	attemptCmd.AddCommand(submitCmd)
	root.AddCommand(attemptCmd)

	// Health check
	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE:  runHealth,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGrade(_ *cobra.Command, args []string) error {
	sources, err := collectFiles(filepath.Join(args[0], "src"))
	if err != nil {
		return fmt.Errorf("collecting sources: %w", err)
	}
	tests, err := collectFiles(filepath.Join(args[0], "test"))
	if err != nil {
		return fmt.Errorf("collecting tests: %w", err)
	}
	if len(sources) == 0 || len(tests) == 0 {
		return fmt.Errorf("%s must contain non-empty src/ and test/ directories", args[0])
	}

	payload := map[string]any{
		"student_id":    studentID,
		"assignment_id": assignmentID,
		"tool":          tool,
		"source_files":  sources,
		"test_files":    tests,
	}

	// Grading waits for the sandbox run, so the client timeout is generous.
	result, err := postJSON("/api/v1/grade", payload, 5*time.Minute)
	if err != nil {
		return err
	}
	printJSON(result)

	if run, ok := result["run"].(map[string]any); ok {
		if success, ok := run["success"].(bool); ok && !success {
			os.Exit(1)
		}
	}
	return nil
}

func runAttemptStart(_ *cobra.Command, _ []string) error {
	if err := requireAttemptFlags(); err != nil {
		return err
	}
	result, err := postJSON("/api/v1/attempts/start", attemptPayload(nil), 10*time.Second)
	if err != nil {
		return err
	}
	printJSON(result)
	return nil
}

func runAttemptStatus(_ *cobra.Command, _ []string) error {
	if err := requireAttemptFlags(); err != nil {
		return err
	}
	q := url.Values{}
	q.Set("student_id", studentID)
	q.Set("assignment_id", assignmentID)
	q.Set("time_limit", timeLimit)

	resp, err := http.Get(serverURL + "/api/v1/attempts/status?" + q.Encode())
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	printJSON(result)
	return nil
}

func runAttemptSubmit(_ *cobra.Command, args []string) error {
	if err := requireAttemptFlags(); err != nil {
		return err
	}

	var snapshots map[string]string
	if len(args) > 0 {
		var err error
		snapshots, err = collectFiles(args[0])
		if err != nil {
			return fmt.Errorf("collecting snapshot: %w", err)
		}
	}

	result, err := postJSON("/api/v1/attempts/submit", attemptPayload(snapshots), 30*time.Second)
	if err != nil {
		return err
	}
	printJSON(result)
	return nil
}

func runHealth(_ *cobra.Command, _ []string) error {
	resp, err := http.Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	json.NewDecoder(resp.Body).Decode(&result)
	printJSON(result)
	return nil
}

func requireAttemptFlags() error {
	if studentID == "" || assignmentID == "" {
		return fmt.Errorf("--student and --assignment are required")
	}
	return nil
}

func attemptPayload(snapshots map[string]string) map[string]any {
	p := map[string]any{
		"student_id":    studentID,
		"assignment_id": assignmentID,
		"time_limit":    timeLimit,
	}
	if snapshots != nil {
		p["snapshots"] = snapshots
	}
	return p
}

func postJSON(path string, payload any, timeout time.Duration) (map[string]any, error) {
	body, _ := json.Marshal(payload)

	req, err := http.NewRequest("POST", serverURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return result, nil
}

// collectFiles reads every regular file under root into a map keyed by the
// slash-separated path relative to root.
func collectFiles(root string) (map[string]string, error) {
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		data, err := os.ReadFile(path) // #nosec G304 -- walking a user-supplied directory
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	return files, err
}

func printJSON(v any) {
	formatted, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(formatted))
}
