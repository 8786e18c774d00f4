package epub

import (
	"archive/zip"
	"bytes"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const ncxMediaType = "application/x-dtbncx+xml"

// tocStrategy is one way of resolving a table of contents. Resolve reports
// false when the archive does not carry the structure the strategy reads.
type tocStrategy struct {
	Name    string
	Resolve func(a *archive) ([]TOCEntry, bool)
}

// tocStrategies are tried in order; the first one yielding entries wins.
var tocStrategies = []tocStrategy{
	{Name: "ncx", Resolve: resolveNCX},
	{Name: "nav-toc", Resolve: resolveNavTOC},
	{Name: "nav-any", Resolve: resolveNavAny},
}

// resolveTOC runs the strategies in priority order.
func resolveTOC(a *archive) (string, []TOCEntry) {
	for _, s := range tocStrategies {
		if entries, ok := s.Resolve(a); ok && len(entries) > 0 {
			return s.Name, entries
		}
	}
	return "", nil
}

type xmlNCX struct {
	Points []navPoint `xml:"navMap>navPoint"`
}

type navPoint struct {
	Label   string `xml:"navLabel>text"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []navPoint `xml:"navPoint"`
}

// resolveNCX reads the embedded navigation map and flattens nested groups
// (e.g. Part -> Chapter) into document order.
func resolveNCX(a *archive) ([]TOCEntry, bool) {
	f := findNCX(a)
	if f == nil {
		return nil, false
	}
	var doc xmlNCX
	if err := decodeXML(f, &doc); err != nil {
		return nil, false
	}

	var entries []TOCEntry
	var walk func(points []navPoint)
	walk = func(points []navPoint) {
		for _, p := range points {
			title := strings.TrimSpace(p.Label)
			href := cleanHref(p.Content.Src)
			if title != "" && href != "" {
				entries = append(entries, TOCEntry{Title: title, Href: href})
			}
			walk(p.Children)
		}
	}
	walk(doc.Points)
	return entries, len(entries) > 0
}

func findNCX(a *archive) *zip.File {
	if a.spineToc != "" {
		files := a.manifestFiles(func(item manifestItem) bool { return item.ID == a.spineToc })
		if len(files) > 0 {
			return files[0]
		}
	}
	files := a.manifestFiles(func(item manifestItem) bool { return item.MediaType == ncxMediaType })
	if len(files) > 0 {
		return files[0]
	}
	for _, f := range a.files() {
		if strings.EqualFold(path.Ext(f.Name), ".ncx") {
			return f
		}
	}
	return nil
}

// resolveNavTOC reads anchors inside <nav epub:type="toc"> of the EPUB3
// navigation document.
func resolveNavTOC(a *archive) ([]TOCEntry, bool) {
	var entries []TOCEntry
	for _, doc := range navDocuments(a) {
		for _, nav := range findAll(doc, atom.Nav) {
			if !isTOCNav(nav) {
				continue
			}
			for _, anchor := range findAll(nav, atom.A) {
				href, ok := attr(anchor, "href")
				if !ok {
					continue
				}
				entries = append(entries, TOCEntry{
					Title: strings.TrimSpace(nodeText(anchor)),
					Href:  cleanHref(href),
				})
			}
		}
	}
	return entries, len(entries) > 0
}

// resolveNavAny takes any anchor inside a <nav> whose target is not itself a
// contents or navigation file.
func resolveNavAny(a *archive) ([]TOCEntry, bool) {
	var entries []TOCEntry
	for _, doc := range navDocuments(a) {
		for _, nav := range findAll(doc, atom.Nav) {
			for _, anchor := range findAll(nav, atom.A) {
				href, ok := attr(anchor, "href")
				if !ok {
					continue
				}
				if strings.Contains(href, "toc") || strings.Contains(href, "nav") {
					continue
				}
				entries = append(entries, TOCEntry{
					Title: strings.TrimSpace(nodeText(anchor)),
					Href:  cleanHref(href),
				})
			}
		}
	}
	return entries, len(entries) > 0
}

// navDocuments parses the navigation documents: manifest items flagged with
// the "nav" property, or, failing that, markup files named like one.
func navDocuments(a *archive) []*html.Node {
	files := a.manifestFiles(func(item manifestItem) bool {
		for _, p := range strings.Fields(item.Properties) {
			if p == "nav" {
				return true
			}
		}
		return false
	})
	if len(files) == 0 {
		for _, f := range a.files() {
			base := strings.ToLower(path.Base(f.Name))
			if !isMarkupName(base) {
				continue
			}
			if strings.Contains(base, "nav") || strings.Contains(base, "toc") {
				files = append(files, f)
			}
		}
	}

	var docs []*html.Node
	for _, f := range files {
		data, err := a.read(f)
		if err != nil {
			continue
		}
		doc, err := html.Parse(bytes.NewReader(data))
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}

func isMarkupName(name string) bool {
	switch path.Ext(name) {
	case ".xhtml", ".html", ".htm":
		return true
	}
	return false
}

func isTOCNav(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "epub:type" || (a.Key == "type" && a.Namespace != "") {
			for _, v := range strings.Fields(a.Val) {
				if v == "toc" {
					return true
				}
			}
		}
	}
	return false
}
