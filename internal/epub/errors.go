package epub

import "errors"

// Structural archive errors. None of them are retried: a malformed archive
// does not become valid on a second attempt.
var (
	ErrNotAnArchive            = errors.New("not an EPUB archive: declared type must be 'application/epub+zip'")
	ErrEmptyArchive            = errors.New("archive contains no files")
	ErrMissingMimetype         = errors.New("mimetype file not found")
	ErrUnsupportedMimeType     = errors.New("unsupported mimetype: must be 'application/epub+zip'")
	ErrMissingContainer        = errors.New("META-INF/container.xml not found")
	ErrMissingRootfiles        = errors.New("no rootfiles found in container.xml")
	ErrUnsupportedRootfileType = errors.New("rootfile is not an 'application/oebps-package+xml' document")
	ErrEmptyRootfilePath       = errors.New("rootfile has an empty full-path")
	ErrRootfileNotFound        = errors.New("rootfile not found in archive")
)

// ErrMissingUniqueIdentifier is returned when the package document does not
// declare an identifier that can serve as the book's primary key.
var ErrMissingUniqueIdentifier = errors.New("cannot determine book unique identifier")

// ErrMalformedDocument is returned for content documents that are not
// well-formed XHTML. Extraction treats it as an empty chapter.
var ErrMalformedDocument = errors.New("malformed XHTML document")

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrNotAnArchive, "NotAnArchive"},
	{ErrEmptyArchive, "EmptyArchive"},
	{ErrMissingMimetype, "MissingMimetype"},
	{ErrUnsupportedMimeType, "UnsupportedMimeType"},
	{ErrMissingContainer, "MissingContainer"},
	{ErrMissingRootfiles, "MissingRootfiles"},
	{ErrUnsupportedRootfileType, "UnsupportedRootfileType"},
	{ErrEmptyRootfilePath, "EmptyRootfilePath"},
	{ErrRootfileNotFound, "RootfileNotFound"},
	{ErrMissingUniqueIdentifier, "MissingUniqueIdentifier"},
	{ErrMalformedDocument, "MalformedDocument"},
}

// Kind returns the short name of a known EPUB error for logging, or
// "Unknown" when err does not wrap one of the package's sentinel errors.
func Kind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Unknown"
}
