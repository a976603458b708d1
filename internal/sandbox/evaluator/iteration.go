package evaluator

import (
	"github.com/grafana/jsvm/internal/sandbox/errmodel"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

// newArray builds a dense Array object from items.
func (ev *Evaluator) newArray(items []value.Value) value.Value {
	o := value.NewArray(ev.realm.arrayProto, uint32(len(items)))
	for i, v := range items {
		o.DefineOwn(itoa(i), &value.Property{Value: v, Writable: true, Enumerable: true, Configurable: true})
	}
	return value.ObjectValue(o)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	p := len(buf)
	for i > 0 {
		p--
		buf[p] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		p--
		buf[p] = '-'
	}
	return string(buf[p:])
}

// iterateToSlice materializes an iterable value into a Go slice, the
// form destructuring, spread, and for-of all consume (spec §4.E
// "Iteration protocol"): arrays iterate their dense indices, strings
// iterate by Unicode code point, and generator objects are driven to
// completion via their next() method.
func (ev *Evaluator) iterateToSlice(fr *frame, v value.Value) ([]value.Value, error) {
	switch {
	case v.IsObject() && v.Object().Class == value.ClassArray:
		o := v.Object()
		out := make([]value.Value, o.ArrayLength)
		for i := range out {
			p := o.GetOwn(itoa(i))
			if p != nil {
				out[i] = p.Value
			} else {
				out[i] = value.Undefined
			}
		}
		return out, nil
	case v.IsString():
		runes := []rune(v.Str())
		out := make([]value.Value, len(runes))
		for i, r := range runes {
			out[i] = value.String(string(r))
		}
		return out, nil
	case v.IsObject() && v.Object().ClassName == "Generator":
		return ev.drainGenerator(fr, v.Object())
	case v.IsObject() && v.Object().Host != nil:
		var out []value.Value
		for _, k := range v.Object().Host.OwnKeys() {
			pv, err := v.Object().Host.Get(k)
			if err != nil {
				return nil, err
			}
			out = append(out, pv)
		}
		return out, nil
	default:
		return nil, throwErr(errmodel.TypeError, "value is not iterable")
	}
}
