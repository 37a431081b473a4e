package bundle

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"docforge/internal/domain/pipeline"
)

// FailureReport is the archive entry listing artifacts that failed.
const FailureReport = "FAILED.txt"

var (
	fencedBlock = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \t]*\r?\n(.*?)```")
	typeName    = regexp.MustCompile(`\b(?:class|interface|enum|record)\s+([A-Za-z_][A-Za-z0-9_]*)`)
)

// SourceFile is one file extracted from an artifact body.
type SourceFile struct {
	Name    string
	Content string
}

// ExtractFiles splits an artifact body into files, one per fenced code block,
// named after the first type declared in the block. A body without fences
// becomes a single file named after fallback.
func ExtractFiles(body, fallback string) []SourceFile {
	matches := fencedBlock.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		trimmed := strings.TrimSpace(body)
		if trimmed == "" {
			return nil
		}
		return []SourceFile{{Name: fallback + ".java", Content: trimmed + "\n"}}
	}

	files := make([]SourceFile, 0, len(matches))
	for i, m := range matches {
		code := strings.TrimSpace(m[1])
		if code == "" {
			continue
		}
		name := fmt.Sprintf("File_%d", i)
		if t := typeName.FindStringSubmatch(code); t != nil {
			name = t[1]
		}
		files = append(files, SourceFile{Name: name + ".java", Content: code + "\n"})
	}
	return files
}

// WriteZip writes the bundle as a zip archive. Successful artifacts are laid
// out as <kind>/<unit dir>/<unit stem>/<Type>.java; failed ones are listed in
// FAILED.txt with their error.
func WriteZip(w io.Writer, bundle pipeline.ResultBundle) error {
	zw := zip.NewWriter(w)
	used := make(map[string]int)
	var failures strings.Builder
	modified := time.Now()

	for _, artifact := range bundle.Artifacts {
		if !artifact.OK() {
			fmt.Fprintf(&failures, "%s\t%s\t%s\n", artifact.UnitName, artifact.Kind, oneLine(artifact.Error))
			continue
		}
		stem := unitStem(artifact.UnitName)
		dir := path.Join(kindDir(artifact.Kind), stem)
		for _, file := range ExtractFiles(artifact.Body, path.Base(stem)) {
			name := uniqueName(used, path.Join(dir, file.Name))
			if err := writeEntry(zw, name, file.Content, modified); err != nil {
				return err
			}
		}
	}

	if failures.Len() > 0 {
		if err := writeEntry(zw, FailureReport, failures.String(), modified); err != nil {
			return err
		}
	}
	return zw.Close()
}

func writeEntry(zw *zip.Writer, name, content string, modified time.Time) error {
	f, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.WriteString(f, content); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func kindDir(kind pipeline.ArtifactKind) string {
	if kind == pipeline.KindTest {
		return "tests"
	}
	return "boilerplate"
}

func unitStem(unit string) string {
	unit = strings.TrimSuffix(unit, path.Ext(unit))
	unit = strings.ReplaceAll(unit, " ", "_")
	unit = strings.TrimLeft(path.Clean("/"+unit), "/")
	if unit == "" {
		return "unit"
	}
	return unit
}

func uniqueName(used map[string]int, name string) string {
	n := used[name]
	used[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n+1, ext)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
