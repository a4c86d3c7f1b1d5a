package queryir

import (
	"bytes"

	"github.com/roach88/querykit/internal/ir"
)

// EncodePredicate converts a predicate tree to an ir value suitable for
// canonical encoding. The encoding is injective: different trees never
// encode to the same value.
func EncodePredicate(p Predicate) ir.IRValue {
	switch pred := p.(type) {
	case Comparison:
		obj := ir.IRObject{
			"field": ir.IRString(pred.Field),
			"op":    ir.IRString(pred.Op.String()),
		}
		if pred.Value != nil {
			obj["value"] = pred.Value
		}
		if pred.Options != 0 {
			obj["options"] = ir.IRString(pred.Options.String())
		}
		return obj
	case And:
		return ir.IRObject{"and": encodeList(pred.Predicates)}
	case Or:
		return ir.IRObject{"or": encodeList(pred.Predicates)}
	case Not:
		return ir.IRObject{"not": EncodePredicate(pred.Predicate)}
	}
	return ir.IRNull{}
}

func encodeList(preds []Predicate) ir.IRArray {
	out := make(ir.IRArray, len(preds))
	for i, p := range preds {
		out[i] = EncodePredicate(p)
	}
	return out
}

// EncodeFetch converts a fetch to an ir value. See EncodePredicate.
func EncodeFetch(f Fetch) ir.IRValue {
	sort := make(ir.IRArray, len(f.Sort))
	for i, s := range f.Sort {
		sort[i] = ir.IRArray{ir.IRString(s.Field), ir.IRString(s.Direction.String())}
	}
	rng := ir.IRObject{"offset": ir.IRInt(f.Range.Offset)}
	if f.Range.HasLimit {
		rng["limit"] = ir.IRInt(f.Range.Limit)
	}
	out := ir.IRObject{
		"entity":    ir.IRString(f.Entity),
		"predicate": EncodePredicate(f.Predicate),
		"sort":      sort,
		"range":     rng,
	}
	if f.TieBreak == Descending {
		out["tie_break"] = ir.IRString(f.TieBreak.String())
	}
	return out
}

// PredicatesEqual reports structural equality of two predicate trees.
// Numeric values compare by kind: IRInt(1) and IRFloat(1) differ.
func PredicatesEqual(a, b Predicate) bool {
	ca, errA := ir.MarshalCanonical(EncodePredicate(a))
	cb, errB := ir.MarshalCanonical(EncodePredicate(b))
	if errA != nil || errB != nil {
		// Non-finite floats never compare equal.
		return false
	}
	return bytes.Equal(ca, cb)
}

// PredicateFingerprint hashes a predicate tree.
func PredicateFingerprint(p Predicate) (string, error) {
	return ir.Fingerprint(ir.DomainPredicate, EncodePredicate(p))
}

// Fingerprint hashes the whole fetch. Equal fetches share a fingerprint.
func (f Fetch) Fingerprint() (string, error) {
	return ir.Fingerprint(ir.DomainFetch, EncodeFetch(f))
}
