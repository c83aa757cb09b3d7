package param

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a parameter tree from path. The format is chosen by
// extension: .yaml/.yml (YAML), .json (JSON) or .cue (CUE).
// The top level must be a mapping.
func LoadFile(path string) (Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read parameters: %w", err)
	}

	var v Value
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		v, err = DecodeYAML(data)
	case ".json":
		v, err = UnmarshalJSONValue(data)
	case ".cue":
		v, err = DecodeCUE(path, data)
	default:
		return nil, fmt.Errorf("unsupported parameter file extension %q (want .yaml, .yml, .json or .cue)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("decode %s: top level must be a mapping, got %s", path, TypeName(v))
	}
	return obj, nil
}

// DecodeYAML decodes a YAML document into a Value.
// Works on yaml.Node so that integer and float scalars keep their tags.
func DecodeYAML(data []byte) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 {
		return Object{}, nil
	}
	return fromYAMLNode(&doc)
}

func fromYAMLNode(n *yaml.Node) (Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Object{}, nil
		}
		return fromYAMLNode(n.Content[0])
	case yaml.AliasNode:
		return fromYAMLNode(n.Alias)
	case yaml.MappingNode:
		obj := make(Object, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if _, dup := obj[key]; dup {
				return nil, fmt.Errorf("line %d: duplicate key %q", n.Content[i].Line, key)
			}
			v, err := fromYAMLNode(n.Content[i+1])
			if err != nil {
				return nil, fmt.Errorf("%q: %w", key, err)
			}
			obj[key] = v
		}
		return obj, nil
	case yaml.SequenceNode:
		arr := make(Array, len(n.Content))
		for i, c := range n.Content {
			v, err := fromYAMLNode(c)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = v
		}
		return arr, nil
	case yaml.ScalarNode:
		return fromYAMLScalar(n)
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node kind %d", n.Line, n.Kind)
	}
}

func fromYAMLScalar(n *yaml.Node) (Value, error) {
	switch n.ShortTag() {
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return Int(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return Float(f), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return Bool(b), nil
	case "!!null":
		return nil, fmt.Errorf("line %d: null is not a parameter value", n.Line)
	default:
		return String(n.Value), nil
	}
}

// DecodeCUE evaluates a CUE source and converts the concrete result to a Value.
func DecodeCUE(filename string, data []byte) (Value, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, err
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, err
	}
	return fromCUEValue(v)
}

func fromCUEValue(v cue.Value) (Value, error) {
	switch v.Kind() {
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, err
		}
		obj := Object{}
		for iter.Next() {
			elem, err := fromCUEValue(iter.Value())
			if err != nil {
				return nil, fmt.Errorf("%q: %w", iter.Label(), err)
			}
			obj[iter.Label()] = elem
		}
		return obj, nil
	case cue.ListKind:
		list, err := v.List()
		if err != nil {
			return nil, err
		}
		arr := Array{}
		for i := 0; list.Next(); i++ {
			elem, err := fromCUEValue(list.Value())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return nil, err
		}
		return Int(i), nil
	case cue.FloatKind:
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return Float(f), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, err
		}
		return Bool(b), nil
	case cue.NullKind:
		return nil, fmt.Errorf("null is not a parameter value")
	default:
		return nil, fmt.Errorf("unsupported CUE kind %v", v.Kind())
	}
}
