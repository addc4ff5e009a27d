package convert

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// ArchiveFilename は一括ダウンロードの ZIP ファイル名です。
const ArchiveFilename = "converted_files.zip"

// Archive は変換結果をまとめた ZIP を返します。
// 同名のファイルは "name (2).docx" のように番号を付けて格納します。
func Archive(results []*Result) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	used := make(map[string]int, len(results))

	for _, r := range results {
		content, err := r.Content()
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", r.Filename, err)
		}
		w, err := zw.Create(uniqueName(used, r.Filename))
		if err != nil {
			return nil, fmt.Errorf("failed to add %s to archive: %w", r.Filename, err)
		}
		if _, err := w.Write(content); err != nil {
			return nil, fmt.Errorf("failed to write %s to archive: %w", r.Filename, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

func uniqueName(used map[string]int, name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		name = "document" + targetExt
	}
	key := strings.ToLower(name)
	used[key]++
	if used[key] == 1 {
		return name
	}
	ext := filepath.Ext(name)
	candidate := fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), used[key], ext)
	// 連番を付けた名前が既存の名前と重なる場合も避ける
	for used[strings.ToLower(candidate)] > 0 {
		used[key]++
		candidate = fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), used[key], ext)
	}
	used[strings.ToLower(candidate)] = 1
	return candidate
}
