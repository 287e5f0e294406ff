// Command report_gen merges `go test -json` output with the metadata comments
// on each test function (TestPurpose, Scope, Security, Expected, Test Case ID)
// into JSON and Markdown reports.
//
//	go test -json ./... > test-output.json
//	go run ./scripts/testing -input test-output.json -out-json report.json -out-md report.md
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pterm/pterm"
)

const modulePath = "github.com/opentrusty/ssoproxy/"

// TestMetadata holds info parsed from Go source comments
type TestMetadata struct {
	Name       string `json:"name"`
	Purpose    string `json:"purpose,omitempty"`
	Scope      string `json:"scope,omitempty"`
	Security   string `json:"security,omitempty"`
	Expected   string `json:"expected,omitempty"`
	TestCaseID string `json:"test_case_id,omitempty"`
	Package    string `json:"package"`
	Category   string `json:"category"`
}

// GoTestEvent is a single event from 'go test -json'
type GoTestEvent struct {
	Action  string  `json:"Action"`
	Package string  `json:"Package"`
	Test    string  `json:"Test"`
	Elapsed float64 `json:"Elapsed"`
	Output  string  `json:"Output"`
}

// TestResult is the merged result for a single test
type TestResult struct {
	Name        string       `json:"name"`
	Status      string       `json:"status"`
	Elapsed     float64      `json:"elapsed_seconds"`
	Package     string       `json:"package"`
	Failure     string       `json:"failure_reason,omitempty"`
	Annotations TestMetadata `json:"annotations"`
}

// ReportSummary holds top-level stats
type ReportSummary struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Total       int          `json:"total"`
	Passed      int          `json:"passed"`
	Failed      int          `json:"failed"`
	Skipped     int          `json:"skipped"`
	Results     []TestResult `json:"results"`
}

// categories in report order, matched by package path fragment
var categories = []struct {
	name     string
	fragment string
}{
	{"Exchange", "internal/auth"},
	{"Authorization", "internal/authz"},
	{"Directory", "internal/directory"},
	{"Access Keys", "internal/accesskey"},
	{"Revocation", "internal/revocation"},
	{"Rate Limiting", "internal/ratelimit"},
	{"Audit", "internal/audit"},
	{"Roles", "internal/roles"},
	{"Storage", "internal/store"},
	{"Secrets", "internal/secret"},
	{"Import", "internal/importer"},
	{"HTTP API", "internal/transport/http"},
	{"CLI", "cmd/"},
}

func main() {
	inputPath := flag.String("input", "", "Path to go test -json output file")
	outputJSON := flag.String("out-json", "", "Path for output JSON report")
	outputMD := flag.String("out-md", "", "Path for output Markdown report")
	title := flag.String("title", "Test Report", "Report title")
	category := flag.String("category", "", "Only include this category")
	flag.Parse()

	if *inputPath == "" || *outputJSON == "" || *outputMD == "" {
		fmt.Println("Usage: report_gen -input <json_file> -out-json <out_json> -out-md <out_md>")
		os.Exit(1)
	}

	results, err := parseTestOutput(*inputPath, scanMetadata("."))
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
	if *category != "" {
		filtered := results[:0]
		for _, r := range results {
			if strings.EqualFold(r.Annotations.Category, *category) {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	summary := summarize(results)
	if err := writeJSON(summary, *outputJSON); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
	if err := writeFile(*outputMD, renderMarkdown(summary, *title)); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	pterm.Info.Printf("%d tests: %d passed, %d failed, %d skipped\n",
		summary.Total, summary.Passed, summary.Failed, summary.Skipped)
	if summary.Failed > 0 {
		pterm.Error.Printf("%d tests failed\n", summary.Failed)
		os.Exit(1)
	}
	pterm.Success.Println("All tests passed")
}

// scanMetadata reads the annotation comments of every Test function under root
func scanMetadata(root string) map[string]TestMetadata {
	meta := make(map[string]TestMetadata)
	fset := token.NewFileSet()

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && (d.Name() == "_examples" || d.Name() == "vendor" || d.Name() == ".git") {
			return filepath.SkipDir
		}
		if d.IsDir() || !strings.HasSuffix(path, "_test.go") {
			return nil
		}

		node, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if err != nil {
			return nil
		}
		pkg := modulePath + filepath.ToSlash(filepath.Dir(path))

		for _, decl := range node.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || !strings.HasPrefix(fn.Name.Name, "Test") || fn.Name.Name == "TestMain" {
				continue
			}
			m := TestMetadata{Name: fn.Name.Name, Package: pkg, Category: categoryOf(pkg)}
			if fn.Doc != nil {
				for _, line := range fn.Doc.List {
					annotate(&m, strings.TrimSpace(strings.TrimPrefix(line.Text, "//")))
				}
			}
			meta[pkg+"."+fn.Name.Name] = m
		}
		return nil
	})
	return meta
}

func annotate(m *TestMetadata, text string) {
	fields := map[string]*string{
		"TestPurpose:":  &m.Purpose,
		"Scope:":        &m.Scope,
		"Security:":     &m.Security,
		"Expected:":     &m.Expected,
		"Test Case ID:": &m.TestCaseID,
	}
	for prefix, dst := range fields {
		if strings.HasPrefix(text, prefix) {
			*dst = strings.TrimSpace(strings.TrimPrefix(text, prefix))
			return
		}
	}
}

func categoryOf(pkg string) string {
	rel := strings.TrimPrefix(pkg, modulePath)
	for _, c := range categories {
		if strings.HasPrefix(rel, c.fragment) && (c.fragment != "internal/auth" || rel == c.fragment) {
			return c.name
		}
	}
	return "Other"
}

// parseTestOutput folds test events onto the known tests. Subtests inherit
// their parent's annotations.
func parseTestOutput(path string, meta map[string]TestMetadata) ([]TestResult, error) {
	states := make(map[string]*TestResult, len(meta))
	for key, m := range meta {
		states[key] = &TestResult{Name: m.Name, Package: m.Package, Status: "not run", Annotations: m}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open test output: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var event GoTestEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil || event.Test == "" {
			continue
		}

		key := event.Package + "." + event.Test
		res, ok := states[key]
		if !ok {
			parent := meta[event.Package+"."+strings.SplitN(event.Test, "/", 2)[0]]
			annotations := parent
			annotations.Name = event.Test
			annotations.Package = event.Package
			if annotations.Category == "" {
				annotations.Category = categoryOf(event.Package)
			}
			res = &TestResult{Name: event.Test, Package: event.Package, Annotations: annotations}
			states[key] = res
		}

		switch event.Action {
		case "pass", "fail":
			res.Status = event.Action
			res.Elapsed = event.Elapsed
		case "skip":
			res.Status = "skip"
		case "output":
			if res.Status == "fail" || res.Status == "" || res.Status == "not run" {
				res.Failure += event.Output
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read test output: %w", err)
	}

	results := make([]TestResult, 0, len(states))
	for _, r := range states {
		if r.Status != "fail" {
			r.Failure = ""
		}
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Package != results[j].Package {
			return results[i].Package < results[j].Package
		}
		return results[i].Name < results[j].Name
	})
	return results, nil
}

func summarize(results []TestResult) ReportSummary {
	summary := ReportSummary{GeneratedAt: time.Now(), Results: results}
	for _, r := range results {
		summary.Total++
		switch r.Status {
		case "pass":
			summary.Passed++
		case "fail":
			summary.Failed++
		case "skip":
			summary.Skipped++
		}
	}
	return summary
}

func renderMarkdown(summary ReportSummary, title string) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# ssoproxy %s\n\n", title)
	fmt.Fprintf(&sb, "**Generated:** %s  \n", summary.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	status := "PASSED"
	if summary.Failed > 0 {
		status = "FAILED"
	}
	fmt.Fprintf(&sb, "**Status:** %s\n\n", status)

	rate := 0.0
	if summary.Total > 0 {
		rate = float64(summary.Passed) / float64(summary.Total) * 100
	}
	sb.WriteString("| Total | Passed | Failed | Skipped | Pass Rate |\n")
	sb.WriteString("|-------|--------|--------|---------|-----------|\n")
	fmt.Fprintf(&sb, "| %d | %d | %d | %d | %.1f%% |\n\n", summary.Total, summary.Passed, summary.Failed, summary.Skipped, rate)

	byCategory := make(map[string][]TestResult)
	for _, r := range summary.Results {
		byCategory[r.Annotations.Category] = append(byCategory[r.Annotations.Category], r)
	}
	order := make([]string, 0, len(categories)+1)
	for _, c := range categories {
		order = append(order, c.name)
	}
	order = append(order, "Other")

	for _, cat := range order {
		tests := byCategory[cat]
		if len(tests) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n\n", cat)
		sb.WriteString("| ID | Test | Status | Purpose | Security |\n")
		sb.WriteString("|----|------|--------|---------|----------|\n")
		for _, t := range tests {
			security := t.Annotations.Security
			if security != "" {
				security = "**" + security + "**"
			}
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
				t.Annotations.TestCaseID, t.Name, t.Status, t.Annotations.Purpose, security)
		}
		sb.WriteString("\n")
	}

	if summary.Failed > 0 {
		sb.WriteString("## Failure Details\n\n")
		for _, t := range summary.Results {
			if t.Status == "fail" {
				fmt.Fprintf(&sb, "### %s (%s)\n```\n%s\n```\n\n", t.Name, t.Package, t.Failure)
			}
		}
	}
	return []byte(sb.String())
}

func writeJSON(summary ReportSummary, path string) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
