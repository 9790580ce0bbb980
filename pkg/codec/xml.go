package codec

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// xmlElement — узел разобранного XML дерева.
type xmlElement struct {
	name     string
	text     string
	children []*xmlElement
}

// parseXML разбирает фид вида <records><record>...</record></records>.
// Вложенные элементы рекурсивно сворачиваются в ключи "parent_child".
func parseXML(data []byte) ([]Record, error) {
	root, err := decodeXMLTree(data)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("%w: empty XML document", ErrMalformed)
	}
	if root.name != "records" {
		return nil, fmt.Errorf("%w: root element must be <records>, got <%s>", ErrMalformed, root.name)
	}

	var records []Record
	for _, child := range root.children {
		if child.name != "record" {
			continue
		}
		record := make(Record)
		for _, field := range child.children {
			flattenXMLElement(field, "", record)
		}
		records = append(records, record)
	}

	return records, nil
}

// flattenXMLElement сворачивает элемент в record.
// Листовой элемент дает ключ prefix+name; вложенные — prefix+name+"_"+child.
func flattenXMLElement(el *xmlElement, prefix string, record Record) {
	key := prefix + el.name
	if len(el.children) == 0 {
		record[key] = el.text
		return
	}
	for _, child := range el.children {
		flattenXMLElement(child, key+"_", record)
	}
}

// decodeXMLTree читает документ в дерево xmlElement.
func decodeXMLTree(data []byte) (*xmlElement, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	var root *xmlElement
	var stack []*xmlElement

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: invalid XML: %v", ErrMalformed, err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			el := &xmlElement{name: t.Name.Local}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("%w: multiple root elements", ErrMalformed)
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			}
			stack = append(stack, el)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: unbalanced closing tag </%s>", ErrMalformed, t.Name.Local)
			}
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text += strings.TrimSpace(string(t))
			}
		}
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("%w: unclosed element <%s>", ErrMalformed, stack[len(stack)-1].name)
	}

	return root, nil
}

// serializeXML сериализует записи в <records><record>...</record></records>.
// Имена колонок санитизируются до валидных имен XML элементов.
func serializeXML(records []Record, columns []string) []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString("<records>\n")

	for _, record := range records {
		buf.WriteString("  <record>\n")
		for _, col := range columns {
			name := sanitizeXMLName(col)
			buf.WriteString("    <")
			buf.WriteString(name)
			buf.WriteString(">")
			xml.EscapeText(&buf, []byte(record[col]))
			buf.WriteString("</")
			buf.WriteString(name)
			buf.WriteString(">\n")
		}
		buf.WriteString("  </record>\n")
	}

	buf.WriteString("</records>\n")
	return buf.Bytes()
}

// sanitizeXMLName заменяет недопустимые для имени элемента символы на '_'.
func sanitizeXMLName(name string) string {
	if name == "" {
		return "field"
	}
	var sb strings.Builder
	for i, r := range name {
		valid := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(i > 0 && (r >= '0' && r <= '9' || r == '-' || r == '.'))
		if valid {
			sb.WriteRune(r)
		} else {
			sb.WriteRune('_')
		}
	}
	return sb.String()
}
