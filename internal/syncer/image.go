package syncer

import (
	"bytes"
	"net/http"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

var extRe = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

var sniffedExt = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/bmp":       ".bmp",
	"image/x-icon":    ".ico",
	"application/pdf": ".pdf",
}

// imageExt picks the mirror file extension from the content first, so the
// same bytes always map to the same name. The source extension is used only
// when the content is not recognised.
func imageExt(localPath string, data []byte) string {
	if ext, ok := sniffedExt[http.DetectContentType(data)]; ok {
		return ext
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if bytes.Contains(bytes.ToLower(head), []byte("<svg")) {
		return ".svg"
	}

	ext := strings.ToLower(filepath.Ext(localPath))
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	if extRe.MatchString(ext) {
		return ext
	}
	return ".bin"
}

// existingImage returns the mirrored file already stored for hash, if any.
func (f *Folder) existingImage(hash string) (string, bool, error) {
	files, err := f.fs.List(ImagesDir, "")
	if err != nil {
		return "", false, err
	}
	for _, file := range files {
		name := path.Base(file.Path)
		if strings.TrimSuffix(name, path.Ext(name)) == hash {
			return name, true, nil
		}
	}
	return "", false, nil
}
