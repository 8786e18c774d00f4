package epub

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
)

const containerPath = "META-INF/container.xml"

type xmlContainer struct {
	Rootfiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

type xmlPackage struct {
	Manifest struct {
		Items []manifestItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Toc string `xml:"toc,attr"`
	} `xml:"spine"`
}

type manifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

// archive is an opened EPUB container with its package document resolved.
type archive struct {
	zr *zip.ReadCloser

	// byBase indexes entries by base filename; archives commonly nest content
	// under an internal directory that TOC hrefs do not repeat.
	byBase map[string]*zip.File
	byPath map[string]*zip.File

	opfDir   string
	manifest []manifestItem
	spineToc string
}

func openArchive(p string) (*archive, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	a := &archive{
		zr:     zr,
		byBase: make(map[string]*zip.File, len(zr.File)),
		byPath: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		a.byPath[f.Name] = f
		a.byBase[path.Base(f.Name)] = f
	}

	// A missing or broken package document is not fatal: the fallback
	// strategies can still locate navigation files by name.
	_ = a.loadPackage()
	return a, nil
}

func (a *archive) Close() error {
	return a.zr.Close()
}

func (a *archive) loadPackage() error {
	opfPath := ""
	if f, ok := a.byPath[containerPath]; ok {
		var c xmlContainer
		if err := decodeXML(f, &c); err == nil {
			for _, rf := range c.Rootfiles {
				if rf.FullPath != "" {
					opfPath = rf.FullPath
					break
				}
			}
		}
	}
	if opfPath == "" {
		for _, f := range a.files() {
			if strings.EqualFold(path.Ext(f.Name), ".opf") {
				opfPath = f.Name
				break
			}
		}
	}
	if opfPath == "" {
		return fmt.Errorf("package document not found")
	}

	f, ok := a.byPath[opfPath]
	if !ok {
		return fmt.Errorf("package document %s missing from archive", opfPath)
	}
	var pkg xmlPackage
	if err := decodeXML(f, &pkg); err != nil {
		return fmt.Errorf("parse package document: %w", err)
	}

	a.opfDir = path.Dir(opfPath)
	a.manifest = pkg.Manifest.Items
	a.spineToc = pkg.Spine.Toc
	return nil
}

// files returns the regular entries in archive order.
func (a *archive) files() []*zip.File {
	ret := make([]*zip.File, 0, len(a.zr.File))
	for _, f := range a.zr.File {
		if !f.FileInfo().IsDir() {
			ret = append(ret, f)
		}
	}
	return ret
}

// resolve maps a manifest href to an archive entry path.
func (a *archive) resolve(href string) string {
	if a.opfDir == "" || a.opfDir == "." {
		return path.Clean(href)
	}
	return path.Join(a.opfDir, href)
}

// lookup finds a content file by the base filename of ref.
func (a *archive) lookup(ref string) (*zip.File, bool) {
	f, ok := a.byBase[path.Base(ref)]
	return f, ok
}

func (a *archive) read(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// manifestFiles returns the archive entries of manifest items accepted by keep.
func (a *archive) manifestFiles(keep func(manifestItem) bool) []*zip.File {
	var ret []*zip.File
	for _, item := range a.manifest {
		if !keep(item) {
			continue
		}
		if f, ok := a.byPath[a.resolve(cleanHref(item.Href))]; ok {
			ret = append(ret, f)
		} else if f, ok := a.lookup(cleanHref(item.Href)); ok {
			ret = append(ret, f)
		}
	}
	return ret
}

func decodeXML(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	dec.Strict = false
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	return dec.Decode(v)
}

// cleanHref strips the in-file anchor and percent-encoding from a TOC target.
func cleanHref(href string) string {
	href = strings.TrimSpace(href)
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	return href
}
