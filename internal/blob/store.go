package blob

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"messenger-service/internal/errs"
)

// MaxUploadSize bounds a single attachment.
const MaxUploadSize = 10 << 20

var allowedExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {},
	".pdf": {}, ".txt": {}, ".doc": {}, ".docx": {},
	".zip": {}, ".rar": {}, ".7z": {},
}

// Store saves uploaded attachments and hands back their public URL.
type Store interface {
	Save(file *multipart.FileHeader) (url string, err error)
}

// DiskStore writes attachments under a local directory served as
// static files.
type DiskStore struct {
	dir     string
	baseURL string
}

// NewDiskStore constructs a DiskStore, creating the directory if needed.
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, pkgerrors.Wrap(err, "create upload dir")
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Save validates size and extension, then writes the file under a
// random name that keeps the original extension.
func (s *DiskStore) Save(file *multipart.FileHeader) (string, error) {
	if file.Size > MaxUploadSize {
		return "", errs.Invalid("file exceeds the 10 MiB limit")
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", errs.Invalid(fmt.Sprintf("file type %q is not allowed", ext))
	}

	src, err := file.Open()
	if err != nil {
		return "", pkgerrors.Wrap(err, "open upload")
	}
	defer src.Close()

	name := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", pkgerrors.Wrap(err, "create upload file")
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(src, MaxUploadSize+1)); err != nil {
		return "", pkgerrors.Wrap(err, "write upload file")
	}
	return s.baseURL + "/" + name, nil
}
