package rules

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// InlineSource is the ParseError.Source used for literal rule text.
const InlineSource = "<inline>"

// errNoElements is returned for input without a single element, which is not
// a rule database however lenient the reader is.
var errNoElements = errors.New("document contains no elements")

// element is a generic XML element: grouping blocks are read as trees and
// interpreted by tag name, so unknown attributes and children never fail.
type element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []element  `xml:",any"`
}

func (e *element) attr(name string) string {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

// Load reads a rule database from source, which is either the path of an
// existing regular file or the document text itself.
func Load(source string) (*RuleSet, error) {
	if info, err := os.Stat(source); err == nil && info.Mode().IsRegular() {
		return LoadFile(source)
	}
	return ParseString(source)
}

// LoadFile reads and parses a rule database file.
func LoadFile(path string) (*RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rule database: %w", err)
	}
	defer func() { _ = f.Close() }()

	return parse(f, path)
}

// ParseString parses rule database text.
func ParseString(text string) (*RuleSet, error) {
	return parse(strings.NewReader(text), InlineSource)
}

// Parse parses a rule database read from r.
//
// Grouping elements are found by tag name anywhere in the document, so a bare
// list of <zoned>/<parent> elements and one wrapped in a root element such as
// <romsets> read the same way. Unrecognized elements are ignored.
func Parse(r io.Reader) (*RuleSet, error) {
	return parse(r, InlineSource)
}

func parse(r io.Reader, source string) (*RuleSet, error) {
	d := xml.NewDecoder(r)
	d.CharsetReader = charsetReader

	p := &parser{source: source, decoder: d, rs: &RuleSet{}}
	if err := p.run(); err != nil {
		return nil, err
	}
	return p.rs, nil
}

// charsetReader decodes legacy encodings such as ISO-8859-1, which older rule
// databases declare in their XML header.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

type parser struct {
	source   string
	decoder  *xml.Decoder
	rs       *RuleSet
	elements int
}

func (p *parser) run() error {
	for {
		tok, err := p.decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return p.syntaxError(err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		p.elements++

		switch start.Name.Local {
		case "zoned", "parent":
			var block element
			if err := p.decoder.DecodeElement(&block, &start); err != nil {
				return p.syntaxError(err)
			}
			if err := p.addSettings(block.Children); err != nil {
				return err
			}
			if err := p.addBlock(&block); err != nil {
				return err
			}
		case "ext", "flag":
			if err := p.addSetting(start.Name.Local, start.Attr); err != nil {
				return err
			}
		default:
			slog.Debug("ignoring rule database element", "element", start.Name.Local)
		}
	}

	if p.elements == 0 {
		return &ParseError{Source: p.source, Err: errNoElements}
	}
	return nil
}

// addSetting applies an <ext> or <flag> element.
func (p *parser) addSetting(tag string, attrs []xml.Attr) error {
	if tag == "ext" {
		if ext := attrValue(attrs, "text"); ext != "" {
			p.rs.Extensions = append(p.rs.Extensions, strings.TrimPrefix(ext, "."))
		}
		return nil
	}
	pattern := attrValue(attrs, "reg")
	if pattern == "" {
		pattern = attrValue(attrs, "text")
	}
	if pattern == "" {
		return nil
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return p.errorf("flag pattern %q: %w", pattern, err)
	}
	p.rs.FlagPattern = pattern
	return nil
}

// addSettings finds <ext> and <flag> elements at any depth inside a grouping
// block, which DecodeElement has already consumed.
func (p *parser) addSettings(children []element) error {
	for i := range children {
		child := &children[i]
		switch child.XMLName.Local {
		case "ext", "flag":
			if err := p.addSetting(child.XMLName.Local, child.Attrs); err != nil {
				return err
			}
		default:
			if err := p.addSettings(child.Children); err != nil {
				return err
			}
		}
	}
	return nil
}

// addBlock turns a <zoned> or <parent> element into a Rule.
func (p *parser) addBlock(block *element) error {
	var children []element
	for _, child := range block.Children {
		if tag := child.XMLName.Local; tag != "ext" && tag != "flag" {
			children = append(children, child)
		}
	}
	if len(children) == 0 {
		return nil
	}

	rule := Rule{Kind: Kind(block.XMLName.Local)}
	if rule.Kind == KindZoned {
		rule.Parent = children[0].attr("name")
		children = children[1:]
	} else {
		rule.Parent = block.attr("name")
	}
	if rule.Parent == "" {
		slog.Warn("skipping rule without a parent name", "kind", rule.Kind)
		return nil
	}

	for i := range children {
		child := &children[i]
		switch child.XMLName.Local {
		case "bias", "clone":
			if rule.Kind != KindZoned {
				continue
			}
			if name := child.attr("name"); name != "" {
				rule.Clones = append(rule.Clones, name)
			}
		case "group":
			if reg := child.attr("reg"); reg != "" {
				// Key patterns are anchored: a match must start at the key's start.
				re, err := regexp.Compile("(?i)^(?:" + reg + ")")
				if err != nil {
					return p.errorf("group pattern %q for %q: %w", reg, rule.Parent, err)
				}
				rule.KeyPatterns = append(rule.KeyPatterns, re)
			}
			if file := child.attr("file"); file != "" {
				re, err := regexp.Compile("(?i)" + file)
				if err != nil {
					return p.errorf("file pattern %q for %q: %w", file, rule.Parent, err)
				}
				rule.FilenamePatterns = append(rule.FilenamePatterns, re)
			}
		}
	}

	if rule.Kind == KindZoned {
		p.rs.Zoned = append(p.rs.Zoned, rule)
	} else {
		p.rs.Parents = append(p.rs.Parents, rule)
	}
	return nil
}

func (p *parser) syntaxError(err error) error {
	var syntax *xml.SyntaxError
	if errors.As(err, &syntax) {
		return &ParseError{Source: p.source, Line: syntax.Line, Err: errors.New(syntax.Msg)}
	}
	line, _ := p.decoder.InputPos()
	return &ParseError{Source: p.source, Line: line, Err: err}
}

func (p *parser) errorf(format string, args ...any) error {
	line, _ := p.decoder.InputPos()
	return &ParseError{Source: p.source, Line: line, Err: fmt.Errorf(format, args...)}
}

func attrValue(attrs []xml.Attr, name string) string {
	for _, a := range attrs {
		if a.Name.Local == name {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}
