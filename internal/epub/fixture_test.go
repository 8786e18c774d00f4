package epub

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testContainer = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

type testPoint struct {
	Title    string
	Src      string
	Children []testPoint
}

// bookFixture describes a synthetic EPUB. Chapter files live under OEBPS/Text/.
type bookFixture struct {
	Points   []testPoint       // NCX navMap; nil means no NCX
	Nav      string            // body of OEBPS/nav.xhtml; empty means none
	Files    map[string]string // Text/<name> -> xhtml
	NoNavTag bool              // omit the "nav" manifest property
}

func (b bookFixture) write(t *testing.T, name string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	out, err := os.Create(path)
	require.NoError(t, err)
	defer out.Close()

	zw := zip.NewWriter(out)
	add := func(name, content string) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}

	add("mimetype", "application/epub+zip")
	add("META-INF/container.xml", testContainer)

	var manifest strings.Builder
	spineToc := ""
	if b.Points != nil {
		manifest.WriteString(`<item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>`)
		spineToc = ` toc="ncx"`
		add("OEBPS/toc.ncx", ncxXML(b.Points))
	}
	if b.Nav != "" {
		props := ` properties="nav"`
		if b.NoNavTag {
			props = ""
		}
		manifest.WriteString(`<item id="nav" href="nav.xhtml" media-type="application/xhtml+xml"` + props + `/>`)
		add("OEBPS/nav.xhtml", xhtmlPage("Contents", b.Nav))
	}
	i := 0
	for name, content := range b.Files {
		i++
		manifest.WriteString(fmt.Sprintf(`<item id="f%d" href="Text/%s" media-type="application/xhtml+xml"/>`, i, name))
		add("OEBPS/Text/"+name, content)
	}

	add("OEBPS/content.opf", `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata/>
  <manifest>`+manifest.String()+`</manifest>
  <spine`+spineToc+`/>
</package>`)

	require.NoError(t, zw.Close())
	return path
}

func ncxXML(points []testPoint) string {
	var sb strings.Builder
	var write func([]testPoint)
	write = func(ps []testPoint) {
		for _, p := range ps {
			sb.WriteString(`<navPoint><navLabel><text>` + p.Title + `</text></navLabel>`)
			sb.WriteString(`<content src="` + p.Src + `"/>`)
			write(p.Children)
			sb.WriteString(`</navPoint>`)
		}
	}
	write(points)
	return `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1"><navMap>` + sb.String() + `</navMap></ncx>`
}

func xhtmlPage(title, body string) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>` + title + `</title></head>
<body>` + body + `</body></html>`
}

func chapterPage(heading string, paragraphs ...string) string {
	var sb strings.Builder
	sb.WriteString("<h1>" + heading + "</h1>")
	for _, p := range paragraphs {
		sb.WriteString("<p>" + p + "</p>")
	}
	return xhtmlPage(heading, sb.String())
}
