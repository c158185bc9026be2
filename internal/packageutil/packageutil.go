// Package packageutil guesses which package a source path belongs to and
// whether that package is part of the profiled application.
package packageutil

import (
	"regexp"
	"strings"
)

type PackageInfo struct {
	Package string
	InApp   bool
}

var (
	nodePackageRegex = regexp.MustCompile(`[/\\]([^/\\].+?)[/\\]([^/\\].+?)[/\\].*`)

	// systemPathPrefixes are install locations of language runtimes and
	// shared libraries.
	systemPathPrefixes = []string{
		"/rustc/",
		"/usr/local/rustup/",
		"/usr/local/cargo/",
		"/usr/lib/system/",
		"/usr/lib/",
		"/usr/include/",
		"/System/Library/",
	}
	systemPathMarkers = []string{
		"/site-packages/",
		"/dist-packages/",
		"\\site-packages\\",
		"\\dist-packages\\",
		"/library/std/src/",
		"/vendor/",
		"/pkg/mod/",
	}
)

// Classify inspects a file path. Paths it knows nothing about are assumed to
// belong to the application.
func Classify(p string) PackageInfo {
	if isNodePath(p) {
		return parseNodePackage(p)
	}
	for _, prefix := range systemPathPrefixes {
		if strings.HasPrefix(p, prefix) {
			return PackageInfo{}
		}
	}
	for _, marker := range systemPathMarkers {
		if strings.Contains(p, marker) {
			return PackageInfo{}
		}
	}
	return PackageInfo{InApp: true}
}

func isNodePath(p string) bool {
	return strings.HasPrefix(p, "node:") || strings.Contains(p, "node_modules")
}

func parseNodePackage(p string) PackageInfo {
	// Node built-in modules.
	if strings.HasPrefix(p, "node:") {
		return PackageInfo{Package: strings.Split(p, "/")[0]}
	}

	splits := strings.Split(p, "node_modules")
	results := nodePackageRegex.FindStringSubmatch(splits[len(splits)-1])
	if len(results) > 2 {
		if results[1][0] == '@' {
			return PackageInfo{Package: results[1] + "/" + results[2]}
		}
		return PackageInfo{Package: results[1]}
	}
	return PackageInfo{}
}
