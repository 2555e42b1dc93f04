package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
)

// MediaType is the declared content type of an EPUB container.
const MediaType = "application/epub+zip"

// PackageMediaType is the media type a container.xml rootfile must declare.
const PackageMediaType = "application/oebps-package+xml"

// Blob is a binary input together with its declared content type, as handed
// over by a file picker or an upload.
type Blob struct {
	Name        string
	ContentType string
	Data        []byte
}

// Reader opens EPUB blobs. The zero value decompresses with archive/zip.
type Reader struct {
	// Decompress turns the raw container bytes into a zip file table.
	Decompress func(data []byte) (*zip.Reader, error)
}

// Archive is an opened and structurally validated EPUB container.
type Archive struct {
	files    map[string]*zip.File // lower-cased normalized path -> file
	exact    map[string]*zip.File // normalized path -> file
	rootfile string

	mimetypes int // entries named "mimetype" in any case
}

// container.xml structure
type container struct {
	Rootfiles *struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

// Open opens an EPUB blob with the default Reader.
func Open(b Blob) (*Archive, error) {
	return Reader{}.Open(b)
}

// Open validates the blob's declared type, decompresses it and validates the
// container structure. The declared type is checked before any decompression.
func (r Reader) Open(b Blob) (*Archive, error) {
	if !isEPUBType(b.ContentType) {
		return nil, fmt.Errorf("%w (got %q)", ErrNotAnArchive, b.ContentType)
	}

	decompress := r.Decompress
	if decompress == nil {
		decompress = unzip
	}
	zr, err := decompress(b.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnArchive, err)
	}
	if len(zr.File) == 0 {
		return nil, ErrEmptyArchive
	}

	a := &Archive{
		files: make(map[string]*zip.File, len(zr.File)),
		exact: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := normalizePath(f.Name)
		a.exact[name] = f
		lower := strings.ToLower(name)
		if lower == "mimetype" {
			a.mimetypes++
		}
		if _, dup := a.files[lower]; !dup {
			a.files[lower] = f
		}
	}
	if len(a.exact) == 0 {
		return nil, ErrEmptyArchive
	}

	if err := a.validateMimetype(); err != nil {
		return nil, err
	}
	if err := a.parseContainer(); err != nil {
		return nil, err
	}
	return a, nil
}

// RootfilePath returns the archive path of the package document.
func (a *Archive) RootfilePath() string {
	return a.rootfile
}

// Len returns the number of files in the archive.
func (a *Archive) Len() int {
	return len(a.exact)
}

// FindFile looks a path up, first exactly and then case-insensitively.
// It returns nil when no file matches.
func (a *Archive) FindFile(name string) *zip.File {
	name = normalizePath(name)
	if f, ok := a.exact[name]; ok {
		return f
	}
	return a.files[strings.ToLower(name)]
}

// ReadFile reads the contents of a file from the archive.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	f := a.FindFile(name)
	if f == nil {
		return nil, fmt.Errorf("file not found: %s", name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", name, err)
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// validateMimetype checks that the mimetype file exists and is valid
func (a *Archive) validateMimetype() error {
	if a.FindFile("mimetype") == nil {
		return ErrMissingMimetype
	}
	if a.mimetypes > 1 {
		return fmt.Errorf("%w: %d mimetype entries", ErrUnsupportedMimeType, a.mimetypes)
	}

	content, err := a.ReadFile("mimetype")
	if err != nil {
		return fmt.Errorf("failed to read mimetype: %w", err)
	}

	if strings.ToLower(strings.TrimSpace(string(content))) != MediaType {
		return ErrUnsupportedMimeType
	}

	return nil
}

// parseContainer parses container.xml and resolves the package document path
func (a *Archive) parseContainer() error {
	if a.FindFile("META-INF/container.xml") == nil {
		return ErrMissingContainer
	}
	content, err := a.ReadFile("META-INF/container.xml")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingContainer, err)
	}

	rootfile, err := ParseContainer(content)
	if err != nil {
		return err
	}
	if a.FindFile(rootfile) == nil {
		return fmt.Errorf("%w: %s", ErrRootfileNotFound, rootfile)
	}
	a.rootfile = normalizePath(rootfile)
	return nil
}

// ParseContainer parses META-INF/container.xml and returns the full-path of
// the first rootfile declaring the OEBPS package media type.
func ParseContainer(content []byte) (string, error) {
	var c container
	if err := xml.Unmarshal(content, &c); err != nil {
		return "", fmt.Errorf("failed to parse container.xml: %w", err)
	}

	if c.Rootfiles == nil || len(c.Rootfiles.Rootfile) == 0 {
		return "", ErrMissingRootfiles
	}

	for _, rf := range c.Rootfiles.Rootfile {
		if strings.TrimSpace(rf.MediaType) != PackageMediaType {
			continue
		}
		fullPath := strings.TrimSpace(rf.FullPath)
		if fullPath == "" {
			return "", ErrEmptyRootfilePath
		}
		return fullPath, nil
	}

	return "", ErrUnsupportedRootfileType
}

func unzip(data []byte) (*zip.Reader, error) {
	return zip.NewReader(bytes.NewReader(data), int64(len(data)))
}

// isEPUBType reports whether a declared content type names an EPUB,
// ignoring parameters and case.
func isEPUBType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(contentType)
	}
	return strings.EqualFold(mediaType, MediaType)
}

// normalizePath normalizes archive paths (forward slashes, no ./ or leading /)
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean(p), "./")
}
