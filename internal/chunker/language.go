package chunker

import "path/filepath"

// extensionLanguage is the fixed extension→language table spec.md §3
// requires CodeChunk.Language to come from.
var extensionLanguage = map[string]string{
	".go":    "go",
	".py":    "python",
	".rb":    "ruby",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".cs":    "csharp",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".rs":    "rust",
	".php":   "php",
	".md":    "markdown",
	".mdx":   "markdown",
}

var braceLanguages = map[string]bool{
	"go": true, "javascript": true, "typescript": true, "java": true,
	"csharp": true, "c": true, "cpp": true, "rust": true, "php": true,
}

var indentLanguages = map[string]bool{
	"python": true, "ruby": true,
}

var markdownLanguages = map[string]bool{
	"markdown": true,
}

var excludedDirs = map[string]bool{
	"node_modules": true, "bin": true, "obj": true, ".git": true,
	"dist": true, "build": true, "target": true, "__pycache__": true,
	"venv": true, "vendor": true, ".idea": true, ".vscode": true,
}

var excludedFiles = map[string]bool{
	"package-lock.json": true, "yarn.lock": true, "pnpm-lock.yaml": true,
	"go.sum": true, ".gitignore": true, ".dockerignore": true,
	"composer.lock": true, "Gemfile.lock": true, "Cargo.lock": true,
}

// languageForPath returns the language for path's extension and whether
// the extension is recognised at all.
func languageForPath(path string) (string, bool) {
	lang, ok := extensionLanguage[filepath.Ext(path)]
	return lang, ok
}

// isExcludedFile reports whether a file should never be chunked: it's in
// the fixed lockfile/ignore-file set, or looks like a minified bundle.
func isExcludedFile(name string) bool {
	if excludedFiles[name] {
		return true
	}
	base := name
	for _, suffix := range []string{".min.js", ".min.css", ".bundle.js", ".map"} {
		if len(base) > len(suffix) && base[len(base)-len(suffix):] == suffix {
			return true
		}
	}
	return false
}
