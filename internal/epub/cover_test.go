package epub

import "testing"

// coverBook builds an archive around the given package document and extra
// files, then parses the package.
func coverBook(t *testing.T, opf string, extra ...zipFile) (*Archive, *Package) {
	t.Helper()
	files := append([]zipFile{
		{"mimetype", MediaType},
		{"META-INF/container.xml", testContainer},
		{"OEBPS/content.opf", opf},
	}, extra...)
	a, err := Open(blob(buildZip(t, files...)))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	pkg, err := ParsePackage([]byte(opf), a.RootfilePath())
	if err != nil {
		t.Fatalf("ParsePackage() failed: %v", err)
	}
	return a, pkg
}

func coverOPF(manifest, metadata, guide string) string {
	return `<package version="2.0" unique-identifier="id">
<metadata><identifier id="id">book</identifier>` + metadata + `</metadata>
<manifest>` + manifest + `</manifest>
<spine/>` + guide + `</package>`
}

func TestLoadCover_GuideImage(t *testing.T) {
	a, pkg := coverBook(t,
		coverOPF(
			`<item id="img" href="images/front.jpg" media-type="image/jpeg"/>
<item id="cover-other" href="images/cover.png" media-type="image/png"/>`,
			"",
			`<guide><reference type="cover" href="images/front.jpg"/></guide>`),
		zipFile{"OEBPS/images/front.jpg", "JPEGDATA"},
		zipFile{"OEBPS/images/cover.png", "PNGDATA"},
	)

	cover := pkg.LoadCover(a)
	if cover == nil {
		t.Fatal("LoadCover() returned nil")
	}
	if cover.Method != "guide" || string(cover.Data) != "JPEGDATA" {
		t.Errorf("cover = %s %q, want guide JPEGDATA", cover.Method, cover.Data)
	}
	if cover.MediaType != "image/jpeg" {
		t.Errorf("MediaType = %q, want image/jpeg", cover.MediaType)
	}
}

func TestLoadCover_GuideCoverPage(t *testing.T) {
	a, pkg := coverBook(t,
		coverOPF(
			`<item id="cover-page" href="text/cover.xhtml" media-type="application/xhtml+xml"/>
<item id="img" href="images/art.jpg" media-type="image/jpeg"/>`,
			"",
			`<guide><reference type="cover" href="text/cover.xhtml"/></guide>`),
		zipFile{"OEBPS/text/cover.xhtml", `<html><body><img src="../images/art.jpg"/></body></html>`},
		zipFile{"OEBPS/images/art.jpg", "ART"},
	)

	cover := pkg.LoadCover(a)
	if cover == nil {
		t.Fatal("LoadCover() returned nil")
	}
	if cover.Href != "OEBPS/images/art.jpg" || cover.Method != "guide" {
		t.Errorf("cover = %+v", cover)
	}
}

func TestLoadCover_Fallbacks(t *testing.T) {
	tests := []struct {
		name       string
		manifest   string
		metadata   string
		wantMethod string
		wantType   string
	}{
		{
			name:       "properties",
			manifest:   `<item id="a" href="a.jpg" media-type="image/jpeg" properties="cover-image"/>`,
			wantMethod: "properties",
			wantType:   "image/jpeg",
		},
		{
			name:       "meta",
			manifest:   `<item id="a" href="a.jpg" media-type="image/jpeg"/>`,
			metadata:   `<meta name="cover" content="a"/>`,
			wantMethod: "meta",
			wantType:   "image/jpeg",
		},
		{
			name:       "filename",
			manifest:   `<item id="x" href="Cover.JPG" media-type="image/jpeg"/>`,
			wantMethod: "filename",
			wantType:   "image/jpeg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, pkg := coverBook(t, coverOPF(tt.manifest, tt.metadata, ""),
				zipFile{"OEBPS/a.jpg", "A"},
				zipFile{"OEBPS/Cover.JPG", "C"},
			)
			cover := pkg.LoadCover(a)
			if cover == nil {
				t.Fatal("LoadCover() returned nil")
			}
			if cover.Method != tt.wantMethod {
				t.Errorf("Method = %q, want %q", cover.Method, tt.wantMethod)
			}
			if cover.MediaType != tt.wantType {
				t.Errorf("MediaType = %q, want %q", cover.MediaType, tt.wantType)
			}
		})
	}
}

func TestLoadCover_UntypedGuideTarget(t *testing.T) {
	a, pkg := coverBook(t,
		coverOPF("", "", `<guide><reference type="cover" href="front.bin"/></guide>`),
		zipFile{"OEBPS/front.bin", "BIN"},
	)
	cover := pkg.LoadCover(a)
	if cover == nil {
		t.Fatal("LoadCover() returned nil")
	}
	if cover.MediaType != "" {
		t.Errorf("MediaType = %q, want untyped", cover.MediaType)
	}
}

func TestLoadCover_None(t *testing.T) {
	a, pkg := coverBook(t,
		coverOPF(`<item id="svg-cover" href="cover.svg" media-type="image/svg+xml"/>`, "", ""),
	)
	if cover := pkg.LoadCover(a); cover != nil {
		t.Errorf("LoadCover() = %+v, want nil", cover)
	}
}

func TestLoadCover_MissingGuideTargetFallsBack(t *testing.T) {
	a, pkg := coverBook(t,
		coverOPF(`<item id="cover" href="c.png" media-type="image/png"/>`, "",
			`<guide><reference type="cover" href="gone.jpg"/></guide>`),
		zipFile{"OEBPS/c.png", "PNG"},
	)
	cover := pkg.LoadCover(a)
	if cover == nil || cover.Method != "filename" {
		t.Fatalf("LoadCover() = %+v, want filename fallback", cover)
	}
}

func TestLoadCover_UnmanifestedGuidePage(t *testing.T) {
	page := `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><body><img src="../images/art.jpg"/></body></html>`

	for _, href := range []string{"text/cover.xhtml", "text/titlepage"} {
		t.Run(href, func(t *testing.T) {
			a, pkg := coverBook(t,
				coverOPF(`<item id="img" href="images/art.jpg" media-type="image/jpeg"/>`, "",
					`<guide><reference type="cover" href="`+href+`"/></guide>`),
				zipFile{"OEBPS/" + href, page},
				zipFile{"OEBPS/images/art.jpg", "JPEGDATA"},
			)
			cover := pkg.LoadCover(a)
			if cover == nil {
				t.Fatal("LoadCover() returned nil")
			}
			if string(cover.Data) != "JPEGDATA" || cover.Method != "guide" {
				t.Errorf("cover = %s %q, want the page's image via guide", cover.Method, cover.Data)
			}
		})
	}
}

func TestLoadCover_UnmanifestedPageWithoutImage(t *testing.T) {
	a, pkg := coverBook(t,
		coverOPF("", "", `<guide><reference type="cover" href="cover.html"/></guide>`),
		zipFile{"OEBPS/cover.html", "<html><body><p>Cover</p></body></html>"},
	)
	if cover := pkg.LoadCover(a); cover != nil {
		t.Errorf("LoadCover() = %s %q, want nil: a page is not an image", cover.Href, cover.Data)
	}
}
