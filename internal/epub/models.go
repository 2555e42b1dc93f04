package epub

import "time"

// XHTMLMediaType is the only manifest media type read for text content.
const XHTMLMediaType = "application/xhtml+xml"

// Package represents the parsed package document (the OPF rootfile)
type Package struct {
	Version       string
	Metadata      Metadata
	Manifest      map[string]ManifestItem // id -> item
	ManifestOrder []string                // manifest ids in declaration order
	Spine         Spine
	Guide         []GuideReference
	Dir           string // directory of the package document inside the archive
}

// Metadata represents the metadata section of the package document
type Metadata struct {
	Identifier  string // normalized unique identifier, the book's primary key
	Title       string
	Creators    []Creator
	Language    string
	Publisher   string
	Date        string    // raw dc:date value
	Published   time.Time // parsed dc:date, zero when unparsable
	Description string
	Subjects    []string
	CoverID     string // manifest item ID from meta name="cover"
}

// Creator represents a creator (author, editor, etc.) of the book
type Creator struct {
	Name string
	Role string // e.g., "aut" for author
}

// Creator returns the first creator's name, or an empty string.
func (m Metadata) Creator() string {
	if len(m.Creators) == 0 {
		return ""
	}
	return m.Creators[0].Name
}

// ManifestItem represents an item in the manifest
type ManifestItem struct {
	ID         string
	Href       string // href as declared, relative to the package document
	Path       string // archive path resolved against the package directory
	MediaType  string
	Properties []string
}

// HasProperty reports whether the item declares the given property.
func (m ManifestItem) HasProperty(p string) bool {
	for _, prop := range m.Properties {
		if prop == p {
			return true
		}
	}
	return false
}

// Spine is the ordered reading order of the package
type Spine struct {
	Toc       string
	Direction string // page-progression-direction
	Items     []SpineItem
}

// SpineItem represents an item reference in the spine
type SpineItem struct {
	IDRef  string
	Linear bool
}

// GuideReference represents a reference in the optional guide section
type GuideReference struct {
	Type  string
	Title string
	Href  string // as declared, may carry a fragment
	Path  string // archive path without fragment
}

// CoverReference returns the guide reference of type cover, if any.
func (p *Package) CoverReference() (GuideReference, bool) {
	for _, ref := range p.Guide {
		if ref.Type == "cover" {
			return ref, true
		}
	}
	return GuideReference{}, false
}
