package rpcserializer

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
	"gopkg.in/yaml.v3"
)

// yamlCodec implements the YAML serializer from spec §6.2, with tag syntax
// !uint, !date, !bin, !error, !shmem for kinds YAML has no native scalar
// mapping for. Grounded on yaml.v3's Node tree (the teacher's own direct
// dependency) rather than its reflection-based Marshal/Unmarshal: Node
// exposes an ordered MappingNode.Content slice, which is what lets
// Dictionary insertion order survive the round trip.
type yamlCodec struct{}

// NewYAMLCodec returns the yaml Codec.
func NewYAMLCodec() Codec { return yamlCodec{} }

func (yamlCodec) Name() string { return "yaml" }

func (yamlCodec) Serialize(v *rpcvalue.Value) ([]byte, error) {
	node := toYAMLNode(v)
	b, err := yaml.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("rpcserializer(yaml): marshal: %w", err)
	}
	return b, nil
}

func (yamlCodec) Deserialize(b []byte) (*rpcvalue.Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("rpcserializer(yaml): unmarshal: %w", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		root = root.Content[0]
	}
	return fromYAMLNode(root)
}

func toYAMLNode(v *rpcvalue.Value) *yaml.Node {
	switch v.Kind() {
	case rpcvalue.KindNull:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case rpcvalue.KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v.BoolValue())}
	case rpcvalue.KindInt64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(v.Int64Value(), 10)}
	case rpcvalue.KindUInt64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!uint", Value: strconv.FormatUint(v.UInt64Value(), 10)}
	case rpcvalue.KindDouble:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: strconv.FormatFloat(v.DoubleValue(), 'g', -1, 64)}
	case rpcvalue.KindDate:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!date", Value: strconv.FormatInt(v.DateValue(), 10)}
	case rpcvalue.KindString:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.StringValue()}
	case rpcvalue.KindBinary:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!bin", Value: base64.StdEncoding.EncodeToString(v.BinaryValue())}
	case rpcvalue.KindFd:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!fd", Value: strconv.Itoa(v.FdValue())}
	case rpcvalue.KindShmem:
		m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!shmem"}
		appendPair(m, "fd", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v.ShmemFd())})
		appendPair(m, "offset", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatUint(v.ShmemOffset(), 10)})
		appendPair(m, "size", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatUint(v.ShmemSize(), 10)})
		return m
	case rpcvalue.KindError:
		m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!error"}
		appendPair(m, "code", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(int(v.ErrorCode()))})
		appendPair(m, "message", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.ErrorMessage()})
		if extra := v.ErrorExtra(); extra != nil {
			appendPair(m, "extra", toYAMLNode(extra))
		}
		if stack := v.ErrorStack(); stack != nil {
			appendPair(m, "stack", toYAMLNode(stack))
		}
		return m
	case rpcvalue.KindArray:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		v.ArrayEach(func(_ int, e *rpcvalue.Value) bool {
			n.Content = append(n.Content, toYAMLNode(e))
			return true
		})
		return n
	case rpcvalue.KindDictionary:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		v.DictEach(func(key string, val *rpcvalue.Value) bool {
			appendPair(n, key, toYAMLNode(val))
			return true
		})
		return n
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
}

func appendPair(m *yaml.Node, key string, val *yaml.Node) {
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, val)
}

func fromYAMLNode(n *yaml.Node) (*rpcvalue.Value, error) {
	switch n.Tag {
	case "!uint":
		u, err := strconv.ParseUint(n.Value, 10, 64)
		if err != nil {
			return nil, err
		}
		return rpcvalue.UInt64(u), nil
	case "!date":
		d, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return nil, err
		}
		return rpcvalue.Date(d), nil
	case "!bin":
		raw, err := base64.StdEncoding.DecodeString(n.Value)
		if err != nil {
			return nil, err
		}
		return rpcvalue.Binary(raw, nil), nil
	case "!fd":
		fd, err := strconv.Atoi(n.Value)
		if err != nil {
			return nil, err
		}
		return rpcvalue.BorrowFd(fd), nil
	case "!shmem":
		return yamlShmem(n)
	case "!error":
		return yamlError(n)
	}

	switch n.Kind {
	case yaml.ScalarNode:
		return yamlScalar(n)
	case yaml.SequenceNode:
		out := rpcvalue.Array()
		for _, c := range n.Content {
			cv, err := fromYAMLNode(c)
			if err != nil {
				out.Release()
				return nil, err
			}
			out.ArrayAppend(cv)
		}
		return out, nil
	case yaml.MappingNode:
		out := rpcvalue.Dictionary()
		for i := 0; i+1 < len(n.Content); i += 2 {
			val, err := fromYAMLNode(n.Content[i+1])
			if err != nil {
				out.Release()
				return nil, err
			}
			out.DictSet(n.Content[i].Value, val)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("rpcserializer(yaml): unsupported node kind %v", n.Kind)
	}
}

func yamlScalar(n *yaml.Node) (*rpcvalue.Value, error) {
	switch n.Tag {
	case "!!null":
		return rpcvalue.Null(), nil
	case "!!bool":
		b, err := strconv.ParseBool(n.Value)
		if err != nil {
			return nil, err
		}
		return rpcvalue.Bool(b), nil
	case "!!int":
		i, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return nil, err
		}
		return rpcvalue.Int64(i), nil
	case "!!float":
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, err
		}
		return rpcvalue.Double(f), nil
	case "!!str", "":
		return rpcvalue.String(n.Value), nil
	default:
		return rpcvalue.String(n.Value), nil
	}
}

func yamlShmem(n *yaml.Node) (*rpcvalue.Value, error) {
	var fd int
	var offset, size uint64
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i].Value, n.Content[i+1].Value
		switch key {
		case "fd":
			fd, _ = strconv.Atoi(val)
		case "offset":
			offset, _ = strconv.ParseUint(val, 10, 64)
		case "size":
			size, _ = strconv.ParseUint(val, 10, 64)
		}
	}
	return rpcvalue.BorrowedShmem(fd, offset, size), nil
}

func yamlError(n *yaml.Node) (*rpcvalue.Value, error) {
	var code int
	var message string
	var extra, stack *rpcvalue.Value
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i].Value, n.Content[i+1]
		switch key {
		case "code":
			code, _ = strconv.Atoi(val.Value)
		case "message":
			message = val.Value
		case "extra":
			v, err := fromYAMLNode(val)
			if err != nil {
				return nil, err
			}
			extra = v
		case "stack":
			v, err := fromYAMLNode(val)
			if err != nil {
				return nil, err
			}
			stack = v
		}
	}
	return rpcvalue.NewError(int32(code), message, extra, stack), nil
}
