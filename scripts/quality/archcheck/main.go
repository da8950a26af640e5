package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

const modulePrefix = "tgbotkit/"

type listedPackage struct {
	ImportPath   string
	Imports      []string
	TestImports  []string
	XTestImports []string
}

// Usage: archcheck [packages]. Patterns default to ./...
func main() {
	patterns := os.Args[1:]
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}

	output, err := goList(patterns)
	if err != nil {
		fmt.Fprintf(os.Stderr, "archcheck: %v\n", err)
		os.Exit(2)
	}
	packages, err := decodePackages(output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "archcheck: %v\n", err)
		os.Exit(2)
	}

	violations := collectViolations(packages)
	if len(violations) == 0 {
		_, _ = fmt.Fprintf(os.Stdout, "archcheck: %d packages ok\n", len(packages))
		return
	}

	_, _ = fmt.Fprintf(os.Stdout, "archcheck: %d layering violations\n", len(violations))
	for _, violation := range violations {
		_, _ = fmt.Fprintf(os.Stdout, "\t%s\n", violation)
	}
	os.Exit(1)
}

func goList(patterns []string) ([]byte, error) {
	args := append([]string{"list", "-json", "-test"}, patterns...)
	cmd := exec.Command("go", args...)
	cmd.Stderr = os.Stderr

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("go %s: %w", strings.Join(args, " "), err)
	}

	return output, nil
}

// decodePackages reads the concatenated JSON objects go list prints.
func decodePackages(output []byte) ([]listedPackage, error) {
	var packages []listedPackage
	decoder := json.NewDecoder(bytes.NewReader(output))
	for {
		var pkg listedPackage
		err := decoder.Decode(&pkg)
		if errors.Is(err, io.EOF) {
			return packages, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode go list output: %w", err)
		}
		if pkg.ImportPath != "" {
			packages = append(packages, pkg)
		}
	}
}

func collectViolations(packages []listedPackage) []string {
	found := make(map[string]struct{})

	for _, pkg := range packages {
		imports := append([]string{}, pkg.Imports...)
		imports = append(imports, pkg.TestImports...)
		imports = append(imports, pkg.XTestImports...)

		for _, imported := range imports {
			reason := violationReason(pkg.ImportPath, imported)
			if reason == "" {
				continue
			}
			entry := fmt.Sprintf("%s -> %s (%s)", pkg.ImportPath, imported, reason)
			found[entry] = struct{}{}
		}
	}

	violations := make([]string, 0, len(found))
	for violation := range found {
		violations = append(violations, violation)
	}
	sort.Strings(violations)

	return violations
}

// layerRule forbids packages under from importing packages under any of denied.
type layerRule struct {
	from   string
	denied []string
	reason string
}

var layerRules = []layerRule{
	{
		from:   "internal/",
		denied: []string{"pkg/", "modules/", "cmd/"},
		reason: "internal/* is the bottom layer",
	},
	{
		from:   "pkg/tgbot",
		denied: []string{"modules/", "cmd/"},
		reason: "pkg/tgbot must not depend on modules or binaries",
	},
	{
		from:   "modules/",
		denied: []string{"internal/", "cmd/"},
		reason: "modules/* may only use the public pkg/tgbot surface",
	},
}

func violationReason(importer, imported string) string {
	importer, ok := strings.CutPrefix(basePackage(importer), modulePrefix)
	if !ok {
		return ""
	}
	imported, ok = strings.CutPrefix(basePackage(imported), modulePrefix)
	if !ok {
		return ""
	}

	for _, rule := range layerRules {
		if !strings.HasPrefix(importer, rule.from) {
			continue
		}
		for _, denied := range rule.denied {
			if strings.HasPrefix(imported, denied) {
				return rule.reason
			}
		}
	}

	// Modules stay independent of each other.
	if strings.HasPrefix(importer, "modules/") && strings.HasPrefix(imported, "modules/") &&
		moduleRoot(importer) != moduleRoot(imported) {
		return "modules/* must not import other modules"
	}

	return ""
}

// basePackage strips the test variant decorations go list -test adds.
func basePackage(path string) string {
	path, _, _ = strings.Cut(path, " ")
	return strings.TrimSuffix(path, ".test")
}

func moduleRoot(path string) string {
	parts := strings.SplitN(path, "/", 3)
	if len(parts) < 2 {
		return path
	}

	return parts[0] + "/" + parts[1]
}
