// Package fileserver — локальное хранилище вложений. Файлы хранятся сжатыми (.gz) под случайными
// именами и раздаются по /api/files/{name}.
package fileserver

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/logger"
	"github.com/tavernlink/internal/model"
)

// URLPrefix — путь, под которым раздаются сохранённые файлы.
const URLPrefix = "/api/files/"

// AllowedExt — принимаемые расширения: изображения, pdf, текст и офисные документы.
var AllowedExt = map[string]model.MessageKind{
	".jpg": model.MessageImage, ".jpeg": model.MessageImage, ".png": model.MessageImage,
	".gif": model.MessageImage, ".webp": model.MessageImage,
	".pdf": model.MessageFile, ".txt": model.MessageFile, ".md": model.MessageFile,
	".doc": model.MessageFile, ".docx": model.MessageFile,
	".xls": model.MessageFile, ".xlsx": model.MessageFile,
	".ppt": model.MessageFile, ".pptx": model.MessageFile,
	".odt": model.MessageFile, ".ods": model.MessageFile,
}

// Blob — сохранённый файл.
type Blob struct {
	URL      string            `json:"url"`
	Name     string            `json:"-"`
	FileName string            `json:"file_name"`
	Size     int64             `json:"file_size"`
	Kind     model.MessageKind `json:"type"`
}

func (b *Blob) Attachment() model.Attachment {
	return model.Attachment{URL: b.URL, FileName: b.FileName, Size: b.Size, Kind: b.Kind}
}

// Service хранит файлы в каталоге UploadDir.
type Service struct {
	UploadDir string
}

func New(uploadDir string) *Service {
	return &Service{UploadDir: uploadDir}
}

// Save потоково сохраняет r. Размер считается по фактически прочитанным байтам:
// превышение limit — PayloadTooLarge, частично записанный файл удаляется.
func (s *Service) Save(ctx context.Context, originalName string, r io.Reader, limit int64) (*Blob, error) {
	// В ряде клиентов/прокси пробел в имени кодируется как "+"; нормализуем для отображения и расширения.
	rawFilename := strings.ReplaceAll(originalName, "+", " ")
	ext := strings.ToLower(filepath.Ext(rawFilename))
	kind, ok := AllowedExt[ext]
	if !ok {
		return nil, apperr.New(apperr.Invalid, "file type not allowed")
	}

	head := make([]byte, 512)
	n, err := io.ReadAtLeast(r, head, len(head))
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.New(apperr.PayloadTooLarge, "file exceeds upload limit")
		}
		return nil, apperr.Wrap(apperr.Invalid, "failed to read upload", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, apperr.New(apperr.Invalid, "file is empty")
	}
	if int64(n) > limit {
		return nil, apperr.New(apperr.PayloadTooLarge, "file exceeds upload limit")
	}
	if !matchMagic(ext, head) {
		return nil, apperr.New(apperr.Invalid, "file content does not match type")
	}

	newName := uuid.New().String() + ext
	if err := os.MkdirAll(s.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("fileserver.Save mkdir: %w", err)
	}

	// Сохраняем в сжатом виде (.gz) для экономии места
	dstPath := filepath.Join(s.UploadDir, newName+".gz")
	dst, err := os.Create(dstPath)
	if err != nil {
		return nil, fmt.Errorf("fileserver.Save create: %w", err)
	}
	fail := func(err error) (*Blob, error) {
		dst.Close()
		os.Remove(dstPath)
		return nil, err
	}
	gz := gzip.NewWriter(dst)
	if _, err := gz.Write(head); err != nil {
		gz.Close()
		return fail(fmt.Errorf("fileserver.Save write: %w", err))
	}
	// Читаем не больше limit+1 байт: лишний байт означает превышение лимита.
	copied, err := copyWithContext(ctx, gz, io.LimitReader(r, limit-int64(n)+1))
	size := int64(n) + copied
	if err != nil {
		gz.Close()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fail(apperr.New(apperr.PayloadTooLarge, "file exceeds upload limit"))
		}
		return fail(err)
	}
	if size > limit {
		gz.Close()
		logger.Infof("upload rejected: %s exceeds %d bytes", rawFilename, limit)
		return fail(apperr.New(apperr.PayloadTooLarge, "file exceeds upload limit"))
	}
	if err := gz.Close(); err != nil {
		return fail(fmt.Errorf("fileserver.Save gzip: %w", err))
	}
	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		return nil, fmt.Errorf("fileserver.Save close: %w", err)
	}

	// Имя для отображения: только базовая часть без пути, безопасные символы; иначе — сгенерированное
	displayName := safeFilename(filepath.Base(rawFilename))
	if displayName == "" {
		displayName = newName
	}
	return &Blob{URL: URLPrefix + newName, Name: newName, FileName: displayName, Size: size, Kind: kind}, nil
}

// Remove удаляет файл по URL вложения. Чужие URL и уже удалённые файлы пропускаются.
func (s *Service) Remove(fileURL string) error {
	if !strings.HasPrefix(fileURL, URLPrefix) {
		return nil
	}
	name := filepath.Base(strings.TrimPrefix(fileURL, URLPrefix))
	if name == "." || name == "/" || name == "" {
		return nil
	}
	for _, p := range []string{filepath.Join(s.UploadDir, name+".gz"), filepath.Join(s.UploadDir, name)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("fileserver.Remove %s: %w", name, err)
		}
	}
	return nil
}

func matchMagic(ext string, head []byte) bool {
	switch ext {
	case ".jpg", ".jpeg":
		return len(head) >= 3 && head[0] == 0xFF && head[1] == 0xD8 && head[2] == 0xFF
	case ".png":
		return len(head) >= 8 && bytes.Equal(head[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	case ".gif":
		return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
	case ".webp":
		return len(head) >= 12 && bytes.Equal(head[8:12], []byte("WEBP"))
	case ".pdf":
		return len(head) >= 5 && bytes.Equal(head[:5], []byte("%PDF-"))
	case ".doc", ".xls", ".ppt":
		return len(head) >= 4 && head[0] == 0xD0 && head[1] == 0xCF && head[2] == 0x11 && head[3] == 0xE0
	case ".docx", ".xlsx", ".pptx", ".odt", ".ods":
		return len(head) >= 4 && head[0] == 0x50 && head[1] == 0x4B && (head[2] == 0x03 || head[2] == 0x05) && head[3] == 0x04
	}
	return true
}

// Serve отдаёт файл по имени (разархивирует при отдаче); query name= — оригинальное имя для Content-Disposition.
func (s *Service) Serve(w http.ResponseWriter, r *http.Request, filename string) {
	filename = filepath.Base(filename)
	ext := filepath.Ext(filename)
	gzPath := filepath.Join(s.UploadDir, filename+".gz")

	f, err := os.Open(gzPath)
	if err != nil {
		http.Error(w, `{"error":"file not found"}`, http.StatusNotFound)
		return
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		http.Error(w, `{"error":"failed to read file"}`, http.StatusInternalServerError)
		return
	}
	defer gz.Close()

	if ct := contentTypeByExt(ext); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if origName := r.URL.Query().Get("name"); origName != "" {
		origName = strings.TrimSpace(strings.ReplaceAll(origName, "+", " "))
		if safe := safeFilename(origName); safe != "" {
			w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(safe))
		}
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, gz); err != nil {
		logger.Debugf("fileserver serve %s: %v", filename, err)
	}
}

func contentTypeByExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt", ".md":
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}

// safeFilename оставляет имя файла безопасным для Content-Disposition (без управляющих символов и кавычек).
func safeFilename(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "." {
		return ""
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\r', '\n', '"', '\\', '/', '\x00':
			continue
		}
		if unicode.IsPrint(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		select {
		case <-ctx.Done():
			return total, fmt.Errorf("upload cancelled: %w", ctx.Err())
		default:
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return total, fmt.Errorf("write: %w", err)
			}
			total += int64(n)
		}
		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, fmt.Errorf("read: %w", readErr)
		}
	}
}
