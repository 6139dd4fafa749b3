// File Access tools - workspace-confined file operations.
//
// Information Hiding:
// - Path confinement and size limits hidden
// - Image detection and attachment encoding hidden
// - Search traversal details hidden

package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forshape/stepflow/llm"
)

const defaultMaxFileSize = 1024 * 1024 // 1MB

const imageResultPrefix = "\x00image-result\x00"

var imageMediaTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// FileAccess exposes read, list, edit, and search operations confined
// to a single root directory. Paths that resolve outside the root are
// rejected. Reading an image file attaches the image to the
// conversation so the model can see it.
type FileAccess struct {
	root         string
	maxSizeBytes int64
}

// NewFileAccess creates a file access provider rooted at dir.
func NewFileAccess(dir string) (*FileAccess, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving root directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("checking root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root '%s' is not a directory", dir)
	}
	return &FileAccess{root: abs, maxSizeBytes: defaultMaxFileSize}, nil
}

// WithMaxFileSize overrides the per-file size limit.
func (f *FileAccess) WithMaxFileSize(bytes int64) *FileAccess {
	f.maxSizeBytes = bytes
	return f
}

// Definitions returns the tool schemas.
func (f *FileAccess) Definitions() []llm.ToolDefinition {
	pathParam := func(desc string) map[string]interface{} {
		return map[string]interface{}{"type": "string", "description": desc}
	}
	return []llm.ToolDefinition{
		{
			Name:        "list_files",
			Description: "List files and directories under a path in the workspace.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathParam("Directory to list, relative to the workspace root. Defaults to the root."),
				},
			},
		},
		{
			Name:        "read_file",
			Description: "Read a file from the workspace. Image files are attached to the conversation.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathParam("File to read, relative to the workspace root."),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "edit_file",
			Description: "Edit a workspace file by replacing a search string with new content.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":    pathParam("File to edit, relative to the workspace root."),
					"search":  pathParam("Exact string to search for."),
					"replace": pathParam("Replacement string."),
					"replace_all": map[string]interface{}{
						"type":        "boolean",
						"description": "Replace every occurrence (default: false, which requires the search string to be unique).",
					},
				},
				"required": []string{"path", "search", "replace"},
			},
		},
		{
			Name:        "search_files",
			Description: "Search workspace files for a substring and return matching lines.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"pattern": pathParam("Substring to search for."),
					"path":    pathParam("Directory to search under, relative to the workspace root. Defaults to the root."),
				},
				"required": []string{"pattern"},
			},
		},
	}
}

// Functions returns the callable tools.
func (f *FileAccess) Functions() map[string]Func {
	return map[string]Func{
		"list_files":   f.listFiles,
		"read_file":    f.readFile,
		"edit_file":    f.editFile,
		"search_files": f.searchFiles,
	}
}

// ResultToMessages attaches image content read by read_file as an
// image message following the tool result, so a vision-capable model
// receives the pixels and not just a marker.
func (f *FileAccess) ResultToMessages(callID, name, result string) []llm.ChatMessage {
	if name == "read_file" && strings.HasPrefix(result, imageResultPrefix) {
		rest := strings.TrimPrefix(result, imageResultPrefix)
		path, dataURL, ok := strings.Cut(rest, "\x00")
		if ok {
			return []llm.ChatMessage{
				llm.ToolResultMessage(callID, name, fmt.Sprintf("Read image file %s; the image is attached below.", path)),
				llm.UserImageMessage(fmt.Sprintf("Image contents of %s:", path), dataURL),
			}
		}
	}
	return []llm.ChatMessage{llm.ToolResultMessage(callID, name, result)}
}

// resolve joins a relative path to the root and rejects escapes.
func (f *FileAccess) resolve(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	abs := filepath.Join(f.root, rel)
	if abs != f.root && !strings.HasPrefix(abs, f.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path '%s' is outside the workspace", rel)
	}
	return abs, nil
}

func stringArg(args map[string]interface{}, key string) string {
	value, _ := args[key].(string)
	return value
}

func (f *FileAccess) listFiles(_ context.Context, args map[string]interface{}) (string, error) {
	dir, err := f.resolve(stringArg(args, "path"))
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("listing directory: %w", err)
	}

	var lines []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		lines = append(lines, name)
	}
	sort.Strings(lines)
	if len(lines) == 0 {
		return "(empty directory)", nil
	}
	return strings.Join(lines, "\n"), nil
}

func (f *FileAccess) readFile(_ context.Context, args map[string]interface{}) (string, error) {
	rel := stringArg(args, "path")
	if rel == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	path, err := f.resolve(rel)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("file does not exist: %s", rel)
	}
	if err != nil {
		return "", fmt.Errorf("reading file metadata: %w", err)
	}
	if info.Size() > f.maxSizeBytes {
		return "", fmt.Errorf("file too large: %d bytes (max: %d bytes)", info.Size(), f.maxSizeBytes)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}

	if mediaType, ok := imageMediaTypes[strings.ToLower(filepath.Ext(path))]; ok {
		dataURL := fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(content))
		return imageResultPrefix + rel + "\x00" + dataURL, nil
	}
	return string(content), nil
}

func (f *FileAccess) editFile(_ context.Context, args map[string]interface{}) (string, error) {
	rel := stringArg(args, "path")
	search := stringArg(args, "search")
	replace := stringArg(args, "replace")
	replaceAll, _ := args["replace_all"].(bool)

	if rel == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if search == "" {
		return "", fmt.Errorf("search string cannot be empty")
	}
	path, err := f.resolve(rel)
	if err != nil {
		return "", err
	}

	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("file does not exist: %s", rel)
	}
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	if int64(len(content)) > f.maxSizeBytes {
		return "", fmt.Errorf("file too large: %d bytes (max: %d bytes)", len(content), f.maxSizeBytes)
	}

	text := string(content)
	occurrences := strings.Count(text, search)
	if occurrences == 0 {
		return "", fmt.Errorf("search string not found in %s", rel)
	}
	if !replaceAll && occurrences > 1 {
		return "", fmt.Errorf("search string occurs %d times; set replace_all=true to replace all", occurrences)
	}

	var updated string
	if replaceAll {
		updated = strings.ReplaceAll(text, search, replace)
	} else {
		updated = strings.Replace(text, search, replace, 1)
	}

	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}

	replaced := 1
	if replaceAll {
		replaced = occurrences
	}
	return fmt.Sprintf("Replaced %d occurrence(s) in %s", replaced, rel), nil
}

const maxSearchMatches = 100

func (f *FileAccess) searchFiles(_ context.Context, args map[string]interface{}) (string, error) {
	pattern := stringArg(args, "pattern")
	if pattern == "" {
		return "", fmt.Errorf("pattern cannot be empty")
	}
	dir, err := f.resolve(stringArg(args, "path"))
	if err != nil {
		return "", err
	}

	var matches []string
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > f.maxSizeBytes {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(f.root, path)
		if err != nil {
			rel = path
		}
		for i, line := range strings.Split(string(content), "\n") {
			if strings.Contains(line, pattern) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimSpace(line)))
				if len(matches) >= maxSearchMatches {
					return fs.SkipAll
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return "", fmt.Errorf("searching files: %w", walkErr)
	}

	if len(matches) == 0 {
		return fmt.Sprintf("No matches for '%s'", pattern), nil
	}
	header := fmt.Sprintf("%d match(es) for '%s':", len(matches), pattern)
	if len(matches) >= maxSearchMatches {
		header = fmt.Sprintf("First %d match(es) for '%s' (truncated):", len(matches), pattern)
	}
	return header + "\n" + strings.Join(matches, "\n"), nil
}
