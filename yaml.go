package logconf

import (
	"io"

	"github.com/ansel1/merry/v2"
	"gopkg.in/yaml.v3"
)

// ReadYAML reads a document in YAML format.
func ReadYAML(r io.Reader) (*Document, error) {
	doc := &Document{}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(doc); err != nil && err != io.EOF { //nolint:errorlint
		return nil, merry.Errorf("%w: %w", ErrSyntax, err)
	}

	return doc, nil
}

// WriteYAML writes doc in the format read by ReadYAML.
func WriteYAML(w io.Writer, doc *Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(doc); err != nil {
		return merry.Prepend(err, "writing yaml")
	}

	return merry.Wrap(enc.Close())
}

// MarshalYAML writes the properties as a mapping, in order.
func (l PropertyList) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}

	for _, p := range l {
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.Value},
		)
	}

	return n, nil
}

// UnmarshalYAML reads a mapping, keeping the order of the keys.  Values
// are taken as text, so "true" and "10" stay strings.
func (l *PropertyList) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return merry.Errorf("%w: line %d: properties must be a mapping", ErrSyntax, n.Line)
	}

	*l = nil

	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return merry.Errorf("%w: line %d: property %q must be a scalar", ErrSyntax, v.Line, k.Value)
		}

		*l = append(*l, PropertyEntry{Name: k.Value, Value: v.Value})
	}

	return nil
}
