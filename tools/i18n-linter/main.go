// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// i18n-linter checks that every translation key passed to i18n.T exists in
// every locale file, and that the locale files agree with each other.
//
// Usage:
//
//	go run ./tools/i18n-linter [root]
package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const localesDir = "internal/i18n/locales"

var keyCall = regexp.MustCompile(`i18n\.T\("([^"]+)"`)

// report is the outcome of one lint run. Missing and Divergent are errors,
// Orphaned is informational.
type report struct {
	Missing   map[string][]string // key -> locales lacking it
	Divergent map[string][]string // locale -> keys only other locales have
	Orphaned  []string
}

func (r report) failed() bool {
	return len(r.Missing) > 0 || len(r.Divergent) > 0
}

func main() {
	root := "."
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	r, err := lint(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "i18n-linter: %v\n", err)
		os.Exit(2)
	}
	printReport(os.Stdout, r)
	if r.failed() {
		os.Exit(1)
	}
}

func lint(root string) (report, error) {
	used, err := findUsedKeys(root)
	if err != nil {
		return report{}, err
	}
	files, err := filepath.Glob(filepath.Join(root, localesDir, "active.*.yaml"))
	if err != nil {
		return report{}, err
	}
	if len(files) == 0 {
		return report{}, fmt.Errorf("no locale files under %s", filepath.Join(root, localesDir))
	}

	locales := make(map[string]map[string]struct{}, len(files))
	union := make(map[string]struct{})
	for _, f := range files {
		keys, err := loadKeysFromLocale(f)
		if err != nil {
			return report{}, fmt.Errorf("%s: %w", f, err)
		}
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(f), "active."), ".yaml")
		locales[name] = keys
		for k := range keys {
			union[k] = struct{}{}
		}
	}

	r := report{Missing: map[string][]string{}, Divergent: map[string][]string{}}
	for k := range used {
		for name, keys := range locales {
			if _, ok := keys[k]; !ok {
				r.Missing[k] = append(r.Missing[k], name)
			}
		}
	}
	for name, keys := range locales {
		for k := range union {
			if _, ok := keys[k]; !ok {
				r.Divergent[name] = append(r.Divergent[name], k)
			}
		}
	}
	for k := range union {
		if _, ok := used[k]; !ok {
			r.Orphaned = append(r.Orphaned, k)
		}
	}

	for _, v := range r.Missing {
		sort.Strings(v)
	}
	for _, v := range r.Divergent {
		sort.Strings(v)
	}
	sort.Strings(r.Orphaned)
	return r, nil
}

// findUsedKeys collects the literal keys of i18n.T calls in non-test Go
// files. Directories starting with "." or "_" are skipped like the go tool
// skips them, and so is tools/.
func findUsedKeys(root string) (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "tools") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, m := range keyCall.FindAllStringSubmatch(string(content), -1) {
			keys[m[1]] = struct{}{}
		}
		return nil
	})
	return keys, err
}

// loadKeysFromLocale reads a nested YAML locale and returns its leaf keys
// in dotted form.
func loadKeysFromLocale(path string) (map[string]struct{}, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, err
	}
	keys := make(map[string]struct{})
	flatten("", data, keys)
	return keys, nil
}

func flatten(prefix string, node any, keys map[string]struct{}) {
	m, ok := node.(map[string]any)
	if !ok {
		if prefix != "" {
			keys[prefix] = struct{}{}
		}
		return
	}
	for k, v := range m {
		if prefix != "" {
			k = prefix + "." + k
		}
		flatten(k, v, keys)
	}
}

func printReport(w io.Writer, r report) {
	missing := make([]string, 0, len(r.Missing))
	for k := range r.Missing {
		missing = append(missing, k)
	}
	sort.Strings(missing)
	for _, k := range missing {
		fmt.Fprintf(w, "missing: %s (%s)\n", k, strings.Join(r.Missing[k], ", "))
	}

	names := make([]string, 0, len(r.Divergent))
	for name := range r.Divergent {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, k := range r.Divergent[name] {
			fmt.Fprintf(w, "locale %s lacks: %s\n", name, k)
		}
	}

	for _, k := range r.Orphaned {
		fmt.Fprintf(w, "orphaned: %s\n", k)
	}
	if !r.failed() {
		fmt.Fprintln(w, "ok")
	}
}
