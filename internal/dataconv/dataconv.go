// Package dataconv converts structured text between JSON, CSV, TSV, YAML, TOML and XML.
package dataconv

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format names a supported data format.
type Format string

const (
	JSON Format = "json"
	CSV  Format = "csv"
	TSV  Format = "tsv"
	YAML Format = "yaml"
	TOML Format = "toml"
	XML  Format = "xml"
)

// Formats lists every supported format.
func Formats() []Format {
	return []Format{JSON, CSV, TSV, YAML, TOML, XML}
}

// ParseFormat resolves a format name.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return JSON, nil
	case "csv":
		return CSV, nil
	case "tsv", "tab":
		return TSV, nil
	case "yaml", "yml":
		return YAML, nil
	case "toml":
		return TOML, nil
	case "xml":
		return XML, nil
	}
	return "", fmt.Errorf("unknown format %q", name)
}

// Options tunes a conversion.
type Options struct {
	// AutoFix repairs common JSON mistakes when the input does not parse.
	AutoFix bool
	// XMLRoot names the root element when emitting XML. Defaults to "root".
	XMLRoot string
}

// Result carries the converted text.
type Result struct {
	Output     string `json:"output"`
	FixApplied bool   `json:"fixApplied"`
}

var (
	// ErrInvalidJSON reports JSON that does not parse.
	ErrInvalidJSON = errors.New("invalid JSON")
	// ErrUnfixableJSON reports JSON that auto-fix could not repair.
	ErrUnfixableJSON = errors.New("invalid JSON - auto-fix could not repair")
)

// Convert parses input as from and renders it as to.
func Convert(input string, from, to Format, opts Options) (Result, error) {
	if strings.TrimSpace(input) == "" {
		return Result{}, nil
	}
	data, fixed, err := Parse(input, from, opts)
	if err != nil {
		return Result{}, err
	}
	out, err := Render(data, to, opts)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: out, FixApplied: fixed}, nil
}

// Parse decodes input into ordered values. The bool reports whether auto-fix was applied.
func Parse(input string, format Format, opts Options) (any, bool, error) {
	switch format {
	case JSON:
		return parseJSON(input, opts.AutoFix)
	case CSV:
		v, err := parseDelimited(input, ',')
		return v, false, err
	case TSV:
		v, err := parseDelimited(input, '\t')
		return v, false, err
	case YAML:
		v, err := parseYAML(input)
		return v, false, err
	case TOML:
		v, err := parseTOML(input)
		return v, false, err
	case XML:
		v, err := parseXML(input)
		return v, false, err
	}
	return nil, false, fmt.Errorf("unknown format %q", format)
}

// Render encodes ordered values as format.
func Render(data any, format Format, opts Options) (string, error) {
	switch format {
	case JSON:
		return marshalIndent(data)
	case CSV:
		return renderDelimited(data, ',')
	case TSV:
		return renderDelimited(data, '\t')
	case YAML:
		return renderYAML(data)
	case TOML:
		return renderTOML(data)
	case XML:
		root := opts.XMLRoot
		if root == "" {
			root = "root"
		}
		return renderXML(data, root), nil
	}
	return "", fmt.Errorf("unknown format %q", format)
}

var (
	unquotedKey   = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	adjacentObj   = regexp.MustCompile(`}(\s*){`)
	adjacentArr   = regexp.MustCompile(`](\s*)\[`)
)

// AutoFixJSON applies best-effort repairs: quotes bare keys, swaps single
// quotes, drops trailing commas, separates adjacent values and closes brackets.
func AutoFixJSON(input string) string {
	fixed := strings.TrimSpace(input)
	fixed = unquotedKey.ReplaceAllString(fixed, `${1}"${2}":`)
	fixed = strings.ReplaceAll(fixed, "'", `"`)
	fixed = trailingComma.ReplaceAllString(fixed, "${1}")
	fixed = adjacentObj.ReplaceAllString(fixed, "},${1}{")
	fixed = adjacentArr.ReplaceAllString(fixed, "],${1}[")
	if n := strings.Count(fixed, "{") - strings.Count(fixed, "}"); n > 0 {
		fixed += strings.Repeat("}", n)
	}
	if n := strings.Count(fixed, "[") - strings.Count(fixed, "]"); n > 0 {
		fixed += strings.Repeat("]", n)
	}
	return fixed
}

func parseJSON(input string, autoFix bool) (any, bool, error) {
	v, err := decodeJSON(input)
	if err == nil {
		return v, false, nil
	}
	if !autoFix {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	v, err = decodeJSON(AutoFixJSON(input))
	if err != nil {
		return nil, false, ErrUnfixableJSON
	}
	return v, true, nil
}

func parseDelimited(input string, delim rune) (any, error) {
	r := csv.NewReader(strings.NewReader(strings.TrimSpace(input)))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = delim != '\t'
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", delimName(delim), err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty %s", delimName(delim))
	}
	headers := trimAll(records[0])
	rows := make([]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := NewObject()
		for i, h := range headers {
			value := ""
			if i < len(rec) {
				value = rec[i]
			}
			row.Set(h, value)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func trimAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

func delimName(delim rune) string {
	if delim == '\t' {
		return "TSV"
	}
	return "CSV"
}

func renderDelimited(data any, delim rune) (string, error) {
	rows, ok := data.([]any)
	if !ok {
		rows = []any{data}
	}
	if len(rows) == 0 {
		return "", nil
	}
	var headers []string
	seen := map[string]bool{}
	flat := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		fields := NewObject()
		if obj, ok := row.(*Object); ok {
			flatten(obj, "", fields)
		} else {
			fields.Set("value", scalarOrJSON(row))
		}
		m := make(map[string]string, fields.Len())
		for _, key := range fields.keys {
			m[key] = fields.values[key].(string)
			if !seen[key] {
				seen[key] = true
				headers = append(headers, key)
			}
		}
		flat = append(flat, m)
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = delim
	if err := w.Write(headers); err != nil {
		return "", err
	}
	for _, m := range flat {
		rec := make([]string, len(headers))
		for i, h := range headers {
			rec[i] = m[h]
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// flatten writes nested object fields as dot paths; arrays become JSON text.
func flatten(obj *Object, prefix string, out *Object) {
	for _, key := range obj.keys {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		switch v := obj.values[key].(type) {
		case *Object:
			flatten(v, full, out)
		default:
			out.Set(full, scalarOrJSON(v))
		}
	}
}

func scalarOrJSON(v any) string {
	switch v.(type) {
	case []any, *Object, map[string]any:
		data, err := marshalRaw(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
	return scalarString(v)
}

func parseYAML(input string) (any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(input), &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return fromYAMLNode(&doc)
}

func fromYAMLNode(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return fromYAMLNode(n.Content[0])
	case yaml.MappingNode:
		obj := NewObject()
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := fromYAMLNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			obj.Set(n.Content[i].Value, v)
		}
		return obj, nil
	case yaml.SequenceNode:
		arr := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := fromYAMLNode(item)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	case yaml.AliasNode:
		return fromYAMLNode(n.Alias)
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!str", "!!timestamp", "!!binary":
			return n.Value, nil
		case "!!null":
			return nil, nil
		case "!!int", "!!float":
			return json.Number(n.Value), nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("unsupported YAML node kind %v", n.Kind)
}

func renderYAML(data any) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(toYAMLNode(data)); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func toYAMLNode(v any) *yaml.Node {
	switch t := v.(type) {
	case *Object:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, key := range t.keys {
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
				toYAMLNode(t.values[key]))
		}
		return n
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range t {
			n.Content = append(n.Content, toYAMLNode(item))
		}
		return n
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: scalarString(t)}
	case json.Number:
		tag := "!!int"
		if strings.ContainsAny(t.String(), ".eE") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: t.String()}
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t}
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: fmt.Sprint(t)}
	}
}

func parseTOML(input string) (any, error) {
	var m map[string]any
	if err := toml.Unmarshal([]byte(input), &m); err != nil {
		return nil, fmt.Errorf("invalid TOML: %w", err)
	}
	return fromPlain(m), nil
}

// fromPlain orders map keys alphabetically; TOML decoding does not keep source order.
func fromPlain(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			obj.Set(k, fromPlain(t[k]))
		}
		return obj
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = fromPlain(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = fromPlain(item)
		}
		return out
	case int64:
		return json.Number(fmt.Sprint(t))
	case float64:
		return json.Number(fmt.Sprint(t))
	default:
		return v
	}
}

func renderTOML(data any) (string, error) {
	root, ok := plainForTOML(data).(map[string]any)
	if !ok {
		root = map[string]any{"items": plainForTOML(data)}
	}
	out, err := toml.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("render TOML: %w", err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// plainForTOML drops nulls, which TOML cannot represent.
func plainForTOML(v any) any {
	switch t := plain(v).(type) {
	case map[string]any:
		return stripNil(t)
	case []any:
		return stripNilSlice(t)
	default:
		return t
	}
}

func stripNil(m map[string]any) map[string]any {
	for k, v := range m {
		switch t := v.(type) {
		case nil:
			delete(m, k)
		case map[string]any:
			m[k] = stripNil(t)
		case []any:
			m[k] = stripNilSlice(t)
		}
	}
	return m
}

func stripNilSlice(in []any) []any {
	out := make([]any, 0, len(in))
	for _, v := range in {
		switch t := v.(type) {
		case nil:
			continue
		case map[string]any:
			out = append(out, stripNil(t))
		case []any:
			out = append(out, stripNilSlice(t))
		default:
			out = append(out, t)
		}
	}
	return out
}

type xmlElement struct {
	name     string
	attrs    *Object
	children *Object
	hasChild bool
	text     strings.Builder
}

func parseXML(input string) (any, error) {
	dec := xml.NewDecoder(strings.NewReader(input))
	var stack []*xmlElement
	var root any
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid XML: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &xmlElement{name: t.Name.Local, attrs: NewObject(), children: NewObject()}
			for _, attr := range t.Attr {
				el.attrs.Set("@"+attr.Name.Local, attr.Value)
			}
			if len(stack) > 0 {
				stack[len(stack)-1].hasChild = true
			}
			stack = append(stack, el)
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, errors.New("invalid XML: unbalanced end element")
			}
			el := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			value := el.value()
			if len(stack) == 0 {
				root = value
				continue
			}
			parent := stack[len(stack)-1]
			if existing, ok := parent.children.Get(el.name); ok {
				if arr, isArr := existing.([]any); isArr {
					parent.children.Set(el.name, append(arr, value))
				} else {
					parent.children.Set(el.name, []any{existing, value})
				}
			} else {
				parent.children.Set(el.name, value)
			}
		}
	}
	if root == nil {
		return nil, errors.New("invalid XML: no root element")
	}
	return root, nil
}

func (el *xmlElement) value() any {
	if !el.hasChild {
		if text := strings.TrimSpace(el.text.String()); text != "" {
			return text
		}
		return el.attrs
	}
	out := NewObject()
	for _, key := range el.attrs.keys {
		out.Set(key, el.attrs.values[key])
	}
	for _, key := range el.children.keys {
		out.Set(key, el.children.values[key])
	}
	return out
}

func renderXML(data any, root string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	buildXML(&b, data, root, "")
	return strings.TrimRight(b.String(), "\n")
}

func buildXML(b *strings.Builder, v any, name, indent string) {
	switch t := v.(type) {
	case nil:
		fmt.Fprintf(b, "%s<%s/>\n", indent, name)
	case []any:
		for _, item := range t {
			buildXML(b, item, name, indent)
		}
	case *Object:
		var attrs strings.Builder
		var children strings.Builder
		for _, key := range t.keys {
			if strings.HasPrefix(key, "@") {
				fmt.Fprintf(&attrs, ` %s="%s"`, key[1:], escapeXML(scalarOrJSON(t.values[key])))
				continue
			}
			buildXML(&children, t.values[key], key, indent+"  ")
		}
		if children.Len() > 0 {
			fmt.Fprintf(b, "%s<%s%s>\n%s%s</%s>\n", indent, name, attrs.String(), children.String(), indent, name)
			return
		}
		fmt.Fprintf(b, "%s<%s%s/>\n", indent, name, attrs.String())
	default:
		fmt.Fprintf(b, "%s<%s>%s</%s>\n", indent, name, escapeXML(scalarString(t)), name)
	}
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}
