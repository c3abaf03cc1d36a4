package graph

// NormalizeRawOp lifts a raw wire op to its canonical internal form. A raw
// PropSet whose Node field is \x01-prefixed is split into an EdgePropSet;
// an unprefixed PropSet becomes a NodePropSet; every other op kind passes
// through unchanged (field-for-field).
func NormalizeRawOp(op RawOp) (CanonicalOp, error) {
	if op.Kind != OpPropSet {
		return CanonicalOp{
			Kind:         op.Kind,
			Node:         op.Node,
			Dot:          op.Dot,
			ObservedDots: op.ObservedDots,
			From:         op.From,
			To:           op.To,
			Label:        op.Label,
			Key:          op.Key,
			Value:        op.Value,
			OID:          op.OID,
		}, nil
	}

	if IsEdgePropKey(op.Node) {
		from, to, label, err := DecodeEdgePropNodeField(op.Node)
		if err != nil {
			return CanonicalOp{}, err
		}
		return CanonicalOp{
			Kind:  OpEdgePropSet,
			From:  from,
			To:    to,
			Label: label,
			Key:   op.Key,
			Value: op.Value,
		}, nil
	}

	return CanonicalOp{
		Kind:  OpNodePropSet,
		Node:  op.Node,
		Key:   op.Key,
		Value: op.Value,
	}, nil
}

// LowerCanonicalOp inverts NormalizeRawOp: NodePropSet becomes a raw
// PropSet(node,key,value); EdgePropSet becomes a raw
// PropSet(\x01from\0to\0label, key, value). Every other kind passes
// through unchanged.
func LowerCanonicalOp(op CanonicalOp) RawOp {
	switch op.Kind {
	case OpNodePropSet:
		return RawOp{
			Kind:  OpPropSet,
			Node:  op.Node,
			Key:   op.Key,
			Value: op.Value,
		}
	case OpEdgePropSet:
		return RawOp{
			Kind:  OpPropSet,
			Node:  EncodeEdgePropNodeField(op.From, op.To, op.Label),
			Key:   op.Key,
			Value: op.Value,
		}
	default:
		return RawOp{
			Kind:         op.Kind,
			Node:         op.Node,
			Dot:          op.Dot,
			ObservedDots: op.ObservedDots,
			From:         op.From,
			To:           op.To,
			Label:        op.Label,
			Key:          op.Key,
			Value:        op.Value,
			OID:          op.OID,
		}
	}
}
