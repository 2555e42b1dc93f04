package epub

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/araddon/dateparse"
)

// opfPackage represents the package document XML structure.
// Element names carry no namespace so dc:, opf: and unprefixed forms all match.
type opfPackage struct {
	XMLName  xml.Name     `xml:"package"`
	Version  string       `xml:"version,attr"`
	UniqueID string       `xml:"unique-identifier,attr"`
	Metadata *opfMetadata `xml:"metadata"`
	Manifest opfManifest  `xml:"manifest"`
	Spine    opfSpine     `xml:"spine"`
	Guide    *opfGuide    `xml:"guide"`
}

// opfMetadata represents the metadata section
type opfMetadata struct {
	Title       []string        `xml:"title"`
	Creator     []opfCreator    `xml:"creator"`
	Language    []string        `xml:"language"`
	Identifier  []opfIdentifier `xml:"identifier"`
	Publisher   []string        `xml:"publisher"`
	Date        []string        `xml:"date"`
	Description []string        `xml:"description"`
	Subject     []string        `xml:"subject"`
	Meta        []opfMeta       `xml:"meta"`
}

type opfCreator struct {
	Name string `xml:",chardata"`
	Role string `xml:"role,attr"`
	ID   string `xml:"id,attr"`
}

type opfIdentifier struct {
	Value string `xml:",chardata"`
	ID    string `xml:"id,attr"`
}

// opfMeta represents a meta element (EPUB 2.0 and 3.0)
type opfMeta struct {
	Name     string `xml:"name,attr"`
	Content  string `xml:"content,attr"`
	Value    string `xml:",chardata"`
	Property string `xml:"property,attr"`
	Refines  string `xml:"refines,attr"`
}

type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfSpine struct {
	Toc       string       `xml:"toc,attr"`
	Direction string       `xml:"page-progression-direction,attr"`
	ItemRefs  []opfItemRef `xml:"itemref"`
}

type opfItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

type opfGuide struct {
	References []opfReference `xml:"reference"`
}

type opfReference struct {
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
	Href  string `xml:"href,attr"`
}

// ParsePackage parses a package document.
// rootPath is the archive path of the document (e.g., "OEBPS/content.opf");
// manifest and guide hrefs are resolved against its directory.
func ParsePackage(content []byte, rootPath string) (*Package, error) {
	var doc opfPackage
	if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse package document: %w", err)
	}

	if doc.Metadata == nil {
		return nil, fmt.Errorf("%w: metadata block is absent", ErrMissingUniqueIdentifier)
	}
	id, err := resolveIdentifier(doc.Metadata.Identifier, doc.UniqueID)
	if err != nil {
		return nil, err
	}

	dir := path.Dir(normalizePath(rootPath))
	if dir == "." {
		dir = ""
	}

	pkg := &Package{
		Version:  doc.Version,
		Manifest: make(map[string]ManifestItem, len(doc.Manifest.Items)),
		Dir:      dir,
	}
	pkg.Metadata = parseMetadata(doc.Metadata)
	pkg.Metadata.Identifier = id

	for _, item := range doc.Manifest.Items {
		if item.ID == "" {
			continue
		}
		mi := ManifestItem{
			ID:         item.ID,
			Href:       item.Href,
			Path:       resolveHref(dir, item.Href),
			MediaType:  strings.ToLower(strings.TrimSpace(item.MediaType)),
			Properties: strings.Fields(item.Properties),
		}
		if _, dup := pkg.Manifest[item.ID]; !dup {
			pkg.ManifestOrder = append(pkg.ManifestOrder, item.ID)
		}
		pkg.Manifest[item.ID] = mi
	}

	pkg.Spine = Spine{
		Toc:       doc.Spine.Toc,
		Direction: doc.Spine.Direction,
	}
	for _, ref := range doc.Spine.ItemRefs {
		pkg.Spine.Items = append(pkg.Spine.Items, SpineItem{
			IDRef:  ref.IDRef,
			Linear: strings.TrimSpace(ref.Linear) != "no",
		})
	}

	// A guide with only text content has no references and counts as absent.
	if doc.Guide != nil {
		for _, ref := range doc.Guide.References {
			if ref.Href == "" {
				continue
			}
			pkg.Guide = append(pkg.Guide, GuideReference{
				Type:  strings.ToLower(strings.TrimSpace(ref.Type)),
				Title: ref.Title,
				Href:  ref.Href,
				Path:  resolveHref(dir, ref.Href),
			})
		}
	}

	return pkg, nil
}

// resolveIdentifier picks the authoritative dc:identifier. A single
// identifier is used as is; otherwise the one whose id matches the declared
// unique-identifier wins.
func resolveIdentifier(ids []opfIdentifier, uniqueID string) (string, error) {
	var value string
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: no dc:identifier element", ErrMissingUniqueIdentifier)
	case 1:
		value = ids[0].Value
	default:
		found := false
		for _, id := range ids {
			if uniqueID != "" && id.ID == uniqueID {
				value = id.Value
				found = true
				break
			}
		}
		if !found {
			return "", fmt.Errorf("%w: no dc:identifier with id %q", ErrMissingUniqueIdentifier, uniqueID)
		}
	}

	value = NormalizeIdentifier(value)
	if value == "" {
		return "", fmt.Errorf("%w: identifier is empty", ErrMissingUniqueIdentifier)
	}
	return value, nil
}

// NormalizeIdentifier strips a urn:uuid: prefix, upper-cases and trims.
func NormalizeIdentifier(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= len("urn:uuid:") && strings.EqualFold(s[:len("urn:uuid:")], "urn:uuid:") {
		s = s[len("urn:uuid:"):]
	}
	return strings.TrimSpace(strings.ToUpper(s))
}

func parseMetadata(meta *opfMetadata) Metadata {
	md := Metadata{
		Title:       first(meta.Title),
		Language:    first(meta.Language),
		Publisher:   first(meta.Publisher),
		Date:        first(meta.Date),
		Description: first(meta.Description),
	}

	for _, s := range meta.Subject {
		if s = strings.TrimSpace(s); s != "" {
			md.Subjects = append(md.Subjects, s)
		}
	}

	if md.Date != "" {
		if t, err := dateparse.ParseAny(md.Date); err == nil {
			md.Published = t
		}
	}

	roles := make(map[string]string)
	for _, m := range meta.Meta {
		if m.Name == "cover" && m.Content != "" && md.CoverID == "" {
			md.CoverID = m.Content
		}
		if m.Property == "role" && m.Refines != "" {
			role := strings.TrimSpace(m.Value)
			if role == "" {
				role = m.Content
			}
			roles[strings.TrimPrefix(m.Refines, "#")] = role
		}
	}

	for _, c := range meta.Creator {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		role := c.Role
		if r, ok := roles[c.ID]; ok && c.ID != "" {
			role = r
		}
		md.Creators = append(md.Creators, Creator{Name: name, Role: role})
	}

	return md
}

// resolveHref resolves an href against the package directory, dropping any
// fragment and percent-encoding.
func resolveHref(dir, href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	if href == "" {
		return ""
	}
	return normalizePath(path.Join(dir, href))
}

func first(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
