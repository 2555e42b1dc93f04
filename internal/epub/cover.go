package epub

import (
	"bytes"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
)

// Cover is the cover image of a book.
type Cover struct {
	Href      string // archive path
	MediaType string // manifest media type, empty when undeclared
	Data      []byte
	Method    string // "guide", "properties", "meta" or "filename"
}

// coverCandidate is a resolved cover location before loading.
type coverCandidate struct {
	path   string
	method string
}

// coverCandidates lists cover locations in priority order:
//  1. guide type="cover" (an image, or the first image of a cover page)
//  2. properties="cover-image" (EPUB 3.0)
//  3. meta name="cover" (EPUB 2.0)
//  4. an image item whose id or href contains "cover"
func (p *Package) coverCandidates(a *Archive) []coverCandidate {
	var out []coverCandidate

	if ref, ok := p.CoverReference(); ok && ref.Path != "" {
		if isCoverPage(p, a, ref.Path) {
			if img := coverPageImage(a, ref.Path); img != "" {
				out = append(out, coverCandidate{img, "guide"})
			}
		} else {
			out = append(out, coverCandidate{ref.Path, "guide"})
		}
	}

	for _, id := range p.ManifestOrder {
		if item := p.Manifest[id]; item.HasProperty("cover-image") {
			out = append(out, coverCandidate{item.Path, "properties"})
			break
		}
	}

	if p.Metadata.CoverID != "" {
		if item, ok := p.Manifest[p.Metadata.CoverID]; ok {
			out = append(out, coverCandidate{item.Path, "meta"})
		}
	}

	for _, id := range p.ManifestOrder {
		item := p.Manifest[id]
		if !isImageMediaType(item.MediaType) {
			continue
		}
		if strings.Contains(strings.ToLower(item.ID), "cover") ||
			strings.Contains(strings.ToLower(path.Base(item.Href)), "cover") {
			out = append(out, coverCandidate{item.Path, "filename"})
			break
		}
	}

	return out
}

// LoadCover loads the first cover candidate present in the archive.
// It returns nil when the book has no loadable cover.
func (p *Package) LoadCover(a *Archive) *Cover {
	for _, c := range p.coverCandidates(a) {
		data, err := a.ReadFile(c.path)
		if err != nil || len(data) == 0 {
			continue
		}
		cover := &Cover{Href: c.path, Data: data, Method: c.method}
		if item, ok := p.itemByPath(c.path); ok {
			cover.MediaType = item.MediaType
		}
		return cover
	}
	return nil
}

// itemByPath finds a manifest item by resolved archive path, ignoring case.
func (p *Package) itemByPath(archivePath string) (ManifestItem, bool) {
	for _, id := range p.ManifestOrder {
		item := p.Manifest[id]
		if strings.EqualFold(item.Path, archivePath) {
			return item, true
		}
	}
	return ManifestItem{}, false
}

// isCoverPage reports whether a guide cover target is a page rather than an
// image: declared XHTML, or, when not in the manifest, an HTML extension or
// markup content.
func isCoverPage(p *Package, a *Archive, target string) bool {
	if item, ok := p.itemByPath(target); ok {
		return item.MediaType == XHTMLMediaType
	}
	switch strings.ToLower(path.Ext(target)) {
	case ".xhtml", ".html", ".htm":
		return true
	}
	data, err := a.ReadFile(target)
	if err != nil {
		return false
	}
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("text/html") || m.Is("application/xhtml+xml") || m.Is("text/xml") {
			return true
		}
	}
	return false
}

// coverPageImage returns the archive path of the first image referenced by
// an XHTML cover page.
func coverPageImage(a *Archive, pagePath string) string {
	data, err := a.ReadFile(pagePath)
	if err != nil {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return ""
	}

	var src string
	doc.Find("img, image").EachWithBreak(func(i int, s *goquery.Selection) bool {
		for _, attr := range []string{"src", "href", "xlink:href"} {
			if v, ok := s.Attr(attr); ok && v != "" {
				src = v
				return false
			}
		}
		return true
	})
	if src == "" {
		return ""
	}
	return resolveHref(path.Dir(pagePath), src)
}

// isImageMediaType checks if a media type is a raster image (SVG excluded).
func isImageMediaType(mediaType string) bool {
	if mediaType == "image/svg+xml" {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}
