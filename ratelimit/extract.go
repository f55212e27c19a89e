package ratelimit

import (
	"encoding/xml"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// extractBodyField pulls the value at field out of data, parsed according
// to format. field is a dot-path for JSON ("user.id"); a plain key for
// form and multipart bodies; and an element name for XML, where the first
// matching element's character data is returned. It returns "" with no
// error if the path is well-formed but the value is absent, matching the
// resolver's silent-fallback contract; parse failures return
// ErrMalformedPayload.
func extractBodyField(data []byte, format BodyFormat, field string) (string, error) {
	switch format {
	case BodyFormatJSON:
		return extractJSONField(data, field)
	case BodyFormatForm:
		return extractFormField(data, field)
	case BodyFormatXML:
		return extractXMLField(data, field)
	case BodyFormatMultipart:
		return "", fmt.Errorf("ratelimit: multipart field extraction requires the request's Content-Type boundary; use extractMultipartField")
	default:
		return "", fmt.Errorf("ratelimit: unknown body format %q", format)
	}
}

func extractJSONField(data []byte, dotPath string) (string, error) {
	var root interface{}
	if err := json.Unmarshal(data, &root); err != nil {
		return "", ErrMalformedPayload
	}

	cur := root
	for _, part := range strings.Split(dotPath, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return "", nil
		}
		cur, ok = m[part]
		if !ok {
			return "", nil
		}
	}

	return jsonScalarToString(cur), nil
}

func jsonScalarToString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func extractFormField(data []byte, field string) (string, error) {
	values, err := url.ParseQuery(string(data))
	if err != nil {
		return "", ErrMalformedPayload
	}
	return values.Get(field), nil
}

// xmlNode is a generic XML tree used only to search for a named element's
// text content; the identifier extraction use case does not need a full
// XPath engine, just first-match-by-name lookup.
type xmlNode struct {
	XMLName  xml.Name
	Content  string    `xml:",chardata"`
	Children []xmlNode `xml:",any"`
}

func extractXMLField(data []byte, elementName string) (string, error) {
	var root xmlNode
	if err := xml.Unmarshal(data, &root); err != nil {
		return "", ErrMalformedPayload
	}
	if v, ok := findXMLElement(root, elementName); ok {
		return strings.TrimSpace(v), nil
	}
	return "", nil
}

func findXMLElement(n xmlNode, name string) (string, bool) {
	if n.XMLName.Local == name {
		return n.Content, true
	}
	for _, c := range n.Children {
		if v, ok := findXMLElement(c, name); ok {
			return v, true
		}
	}
	return "", false
}

// extractMultipartField pulls one form field's value from a multipart
// body. contentType must be the request's original Content-Type header so
// the boundary can be recovered.
func extractMultipartField(data []byte, contentType, field string) (string, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", ErrMalformedPayload
	}
	boundary, ok := params["boundary"]
	if !ok {
		return "", ErrMalformedPayload
	}

	reader := multipart.NewReader(strings.NewReader(string(data)), boundary)
	for {
		part, err := reader.NextPart()
		if err != nil {
			return "", nil
		}
		if part.FormName() == field {
			buf, err := io.ReadAll(part)
			if err != nil {
				return "", ErrMalformedPayload
			}
			return strings.TrimSpace(string(buf)), nil
		}
	}
}
