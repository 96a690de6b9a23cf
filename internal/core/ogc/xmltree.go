package ogc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// Namespaces used by WCS 2.0 documents.
const (
	nsOWS    = "http://www.opengis.net/ows/2.0"
	nsWCS    = "http://www.opengis.net/wcs/2.0"
	nsCRS    = "http://www.opengis.net/wcs/crs/1.0"
	nsCRSExt = "http://www.opengis.net/wcs/service-extension/crs/1.0"
	nsXLink  = "http://www.w3.org/1999/xlink"
	nsGML    = "http://www.opengis.net/gml/3.2"
	nsGMLCov = "http://www.opengis.net/gmlcov/1.0"
	nsSWE    = "http://www.opengis.net/swe/2.0"
)

func ows(local string) xml.Name    { return xml.Name{Space: nsOWS, Local: local} }
func wcs(local string) xml.Name    { return xml.Name{Space: nsWCS, Local: local} }
func gml(local string) xml.Name    { return xml.Name{Space: nsGML, Local: local} }
func gmlcov(local string) xml.Name { return xml.Name{Space: nsGMLCov, Local: local} }
func swe(local string) xml.Name    { return xml.Name{Space: nsSWE, Local: local} }

// node is a namespace-resolved element. Only what the parsers need is kept.
type node struct {
	name     xml.Name
	attrs    []xml.Attr
	text     string
	children []*node
}

func parseTree(r io.Reader) (*node, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var (
		root  *node
		stack []*node
		text  []*bytes.Buffer
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name, attrs: append([]xml.Attr(nil), t.Attr...)}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
			text = append(text, &bytes.Buffer{})
		case xml.CharData:
			if len(text) > 0 {
				text[len(text)-1].Write(t)
			}
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, errors.New("decode xml: unbalanced end element")
			}
			stack[len(stack)-1].text = strings.TrimSpace(text[len(text)-1].String())
			stack = stack[:len(stack)-1]
			text = text[:len(text)-1]
		}
	}
	if root == nil {
		return nil, errors.New("decode xml: empty document")
	}
	return root, nil
}

func (n *node) attr(space, local string) (string, bool) {
	for _, a := range n.attrs {
		if a.Name.Local == local && a.Name.Space == space {
			return a.Value, true
		}
	}
	return "", false
}

// all follows child steps and returns every match in document order.
func (n *node) all(steps ...xml.Name) []*node {
	cur := []*node{n}
	for _, s := range steps {
		var next []*node
		for _, c := range cur {
			for _, ch := range c.children {
				if ch.name == s {
					next = append(next, ch)
				}
			}
		}
		if len(next) == 0 {
			return nil
		}
		cur = next
	}
	return cur
}

func (n *node) first(steps ...xml.Name) *node {
	if m := n.all(steps...); len(m) > 0 {
		return m[0]
	}
	return nil
}

// descendants returns every element below n (not n itself) called name, in document order.
func (n *node) descendants(name xml.Name) []*node {
	var out []*node
	var walk func(*node)
	walk = func(x *node) {
		for _, ch := range x.children {
			if ch.name == name {
				out = append(out, ch)
			}
			walk(ch)
		}
	}
	walk(n)
	return out
}

// findAll mirrors ".//first/rest..." lookups.
func (n *node) findAll(first xml.Name, rest ...xml.Name) []*node {
	var out []*node
	for _, d := range n.descendants(first) {
		if len(rest) == 0 {
			out = append(out, d)
			continue
		}
		out = append(out, d.all(rest...)...)
	}
	return out
}

func texts(nodes []*node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.text)
	}
	return out
}
