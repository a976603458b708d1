package evaluator

import (
	"math"
	"math/big"

	sbast "github.com/grafana/jsvm/internal/sandbox/ast"
	"github.com/grafana/jsvm/internal/sandbox/environment"
	"github.com/grafana/jsvm/internal/sandbox/errmodel"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

func (ev *Evaluator) evalUnary(fr *frame, env *environment.Environment, u *sbast.UnaryExpression) (value.Value, error) {
	switch u.Operator {
	case sbast.OpTypeof:
		if id, ok := u.Argument.(*sbast.Identifier); ok {
			b, _ := env.Lookup(id.Name)
			if b == nil {
				return value.String("undefined"), nil
			}
		}
		v, err := ev.evalExpr(fr, env, u.Argument)
		if err != nil {
			return value.Undefined, err
		}
		return value.String(v.TypeOf()), nil
	case sbast.OpDelete:
		if m, ok := u.Argument.(*sbast.MemberExpression); ok {
			obj, err := ev.evalExpr(fr, env, m.Object)
			if err != nil {
				return value.Undefined, err
			}
			key, err := ev.memberKey(fr, env, m)
			if err != nil {
				return value.Undefined, err
			}
			ok, err := ev.deleteProp(obj, key)
			return value.Bool(ok), err
		}
		return value.Bool(true), nil
	case sbast.OpVoid:
		if _, err := ev.evalExpr(fr, env, u.Argument); err != nil {
			return value.Undefined, err
		}
		return value.Undefined, nil
	case sbast.OpAwait:
		v, err := ev.evalExpr(fr, env, u.Argument)
		if err != nil {
			return value.Undefined, err
		}
		if fr == nil || fr.suspend == nil {
			return value.Undefined, throwErr(errmodel.SyntaxError, "await is only valid inside an async function")
		}
		resumed := fr.suspend(v)
		return settleResume(resumed)
	case sbast.OpYield:
		var v value.Value = value.Undefined
		var err error
		if u.Argument != nil {
			v, err = ev.evalExpr(fr, env, u.Argument)
			if err != nil {
				return value.Undefined, err
			}
		}
		if fr == nil || fr.suspend == nil {
			return value.Undefined, throwErr(errmodel.SyntaxError, "yield is only valid inside a generator")
		}
		resumed := fr.suspend(v)
		return settleResume(resumed)
	case sbast.OpYieldStar:
		iv, err := ev.evalExpr(fr, env, u.Argument)
		if err != nil {
			return value.Undefined, err
		}
		items, err := ev.iterateToSlice(fr, iv)
		if err != nil {
			return value.Undefined, err
		}
		var last value.Value = value.Undefined
		for _, item := range items {
			if fr == nil || fr.suspend == nil {
				return value.Undefined, throwErr(errmodel.SyntaxError, "yield is only valid inside a generator")
			}
			resumed := fr.suspend(item)
			last, err = settleResume(resumed)
			if err != nil {
				return value.Undefined, err
			}
		}
		return last, nil
	case sbast.OpPreIncr, sbast.OpPreDecr, sbast.OpPostIncr, sbast.OpPostDecr:
		return ev.evalIncrDecr(fr, env, u)
	}

	v, err := ev.evalExpr(fr, env, u.Argument)
	if err != nil {
		return value.Undefined, err
	}
	switch u.Operator {
	case sbast.OpNot:
		return value.Bool(!v.Truthy()), nil
	case sbast.OpNeg:
		if v.IsBigInt() {
			return value.BigInt(new(big.Int).Neg(v.Big())), nil
		}
		return value.Number(-value.ToNumber(v)), nil
	case sbast.OpPos:
		return value.Number(value.ToNumber(v)), nil
	case sbast.OpBitNot:
		if v.IsBigInt() {
			return value.BigInt(new(big.Int).Not(v.Big())), nil
		}
		return value.Number(float64(^toInt32(value.ToNumber(v)))), nil
	}
	return value.Undefined, throwErr(errmodel.SyntaxError, "unsupported unary operator %s", u.Operator)
}

// settleResume turns a fiber resumption back into a normal expression
// result, or re-raises it as a throw/return if the driver resumed with
// resumeThrow/resumeReturn (generator.throw()/generator.return()).
func settleResume(msg resumeMsg) (value.Value, error) {
	switch msg.kind {
	case resumeThrow:
		return value.Undefined, &ThrowSignal{Value: msg.val}
	case resumeReturn:
		panic(fiberCompletion{val: msg.val})
	default:
		return msg.val, nil
	}
}

func (ev *Evaluator) evalIncrDecr(fr *frame, env *environment.Environment, u *sbast.UnaryExpression) (value.Value, error) {
	old, err := ev.evalExpr(fr, env, u.Argument)
	if err != nil {
		return value.Undefined, err
	}
	delta := 1.0
	if u.Operator == sbast.OpPreDecr || u.Operator == sbast.OpPostDecr {
		delta = -1.0
	}
	var nv value.Value
	if old.IsBigInt() {
		d := big.NewInt(int64(delta))
		nv = value.BigInt(new(big.Int).Add(old.Big(), d))
	} else {
		nv = value.Number(value.ToNumber(old) + delta)
	}
	if err := ev.assignTarget(fr, env, u.Argument, nv); err != nil {
		return value.Undefined, err
	}
	if u.Operator == sbast.OpPostIncr || u.Operator == sbast.OpPostDecr {
		if old.IsBigInt() {
			return old, nil
		}
		return value.Number(value.ToNumber(old)), nil
	}
	return nv, nil
}

func toInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int32(int64(f))
}

func (ev *Evaluator) evalBinary(fr *frame, env *environment.Environment, b *sbast.BinaryExpression) (value.Value, error) {
	switch b.Operator {
	case sbast.OpAnd:
		l, err := ev.evalExpr(fr, env, b.Left)
		if err != nil {
			return value.Undefined, err
		}
		if !l.Truthy() {
			return l, nil
		}
		return ev.evalExpr(fr, env, b.Right)
	case sbast.OpOr:
		l, err := ev.evalExpr(fr, env, b.Left)
		if err != nil {
			return value.Undefined, err
		}
		if l.Truthy() {
			return l, nil
		}
		return ev.evalExpr(fr, env, b.Right)
	case sbast.OpNullish:
		l, err := ev.evalExpr(fr, env, b.Left)
		if err != nil {
			return value.Undefined, err
		}
		if !l.IsNullish() {
			return l, nil
		}
		return ev.evalExpr(fr, env, b.Right)
	case sbast.OpComma:
		if _, err := ev.evalExpr(fr, env, b.Left); err != nil {
			return value.Undefined, err
		}
		return ev.evalExpr(fr, env, b.Right)
	}

	l, err := ev.evalExpr(fr, env, b.Left)
	if err != nil {
		return value.Undefined, err
	}
	if b.Operator == sbast.OpIn {
		r, err := ev.evalExpr(fr, env, b.Right)
		if err != nil {
			return value.Undefined, err
		}
		return value.Bool(ev.hasProp(r, value.ToString(l))), nil
	}
	if b.Operator == sbast.OpInstanceof {
		r, err := ev.evalExpr(fr, env, b.Right)
		if err != nil {
			return value.Undefined, err
		}
		return value.Bool(ev.instanceOf(l, r)), nil
	}
	r, err := ev.evalExpr(fr, env, b.Right)
	if err != nil {
		return value.Undefined, err
	}
	return ev.applyBinary(b.Operator, l, r)
}

func (ev *Evaluator) instanceOf(l, r value.Value) bool {
	if !r.IsFunction() || r.Function().Proto == nil || !l.IsObject() {
		return false
	}
	proto := r.Function().Proto
	for cur := l.Object().Proto; cur != nil; cur = cur.Proto {
		if cur == proto {
			return true
		}
	}
	return false
}

func (ev *Evaluator) applyBinary(op sbast.BinaryOperator, l, r value.Value) (value.Value, error) {
	switch op {
	case sbast.OpEq:
		return value.Bool(looseEquals(l, r)), nil
	case sbast.OpNe:
		return value.Bool(!looseEquals(l, r)), nil
	case sbast.OpStrictEq:
		return value.Bool(value.StrictEquals(l, r)), nil
	case sbast.OpStrictNe:
		return value.Bool(!value.StrictEquals(l, r)), nil
	}
	if op == sbast.OpAdd && (l.IsString() || r.IsString()) {
		return value.String(value.ToString(l) + value.ToString(r)), nil
	}
	if l.IsBigInt() || r.IsBigInt() {
		if !l.IsBigInt() || !r.IsBigInt() {
			return value.Undefined, throwErr(errmodel.TypeError, "cannot mix BigInt and other types")
		}
		return ev.bigintBinary(op, l.Big(), r.Big())
	}
	switch op {
	case sbast.OpLt:
		return value.Bool(compareNumOrStr(l, r) < 0), nil
	case sbast.OpGt:
		return value.Bool(compareNumOrStr(l, r) == 1), nil
	case sbast.OpLe:
		return value.Bool(compareNumOrStr(l, r) <= 0), nil
	case sbast.OpGe:
		c := compareNumOrStr(l, r)
		return value.Bool(c == 0 || c == 1), nil
	}
	ln, rn := value.ToNumber(l), value.ToNumber(r)
	switch op {
	case sbast.OpAdd:
		return value.Number(ln + rn), nil
	case sbast.OpSub:
		return value.Number(ln - rn), nil
	case sbast.OpMul:
		return value.Number(ln * rn), nil
	case sbast.OpDiv:
		return value.Number(ln / rn), nil
	case sbast.OpMod:
		return value.Number(math.Mod(ln, rn)), nil
	case sbast.OpExp:
		return value.Number(math.Pow(ln, rn)), nil
	case sbast.OpBitAnd:
		return value.Number(float64(toInt32(ln) & toInt32(rn))), nil
	case sbast.OpBitOr:
		return value.Number(float64(toInt32(ln) | toInt32(rn))), nil
	case sbast.OpBitXor:
		return value.Number(float64(toInt32(ln) ^ toInt32(rn))), nil
	case sbast.OpShl:
		return value.Number(float64(toInt32(ln) << (uint32(toInt32(rn)) & 31))), nil
	case sbast.OpShr:
		return value.Number(float64(toInt32(ln) >> (uint32(toInt32(rn)) & 31))), nil
	case sbast.OpUShr:
		return value.Number(float64(uint32(toInt32(ln)) >> (uint32(toInt32(rn)) & 31))), nil
	}
	return value.Undefined, throwErr(errmodel.SyntaxError, "unsupported binary operator %s", op)
}

func (ev *Evaluator) bigintBinary(op sbast.BinaryOperator, a, b *big.Int) (value.Value, error) {
	switch op {
	case sbast.OpAdd, sbast.OpSub, sbast.OpMul, sbast.OpDiv, sbast.OpMod, sbast.OpExp,
		sbast.OpBitAnd, sbast.OpBitOr, sbast.OpBitXor, sbast.OpShl, sbast.OpShr:
		n, err := value.BigIntArith(string(op), a, b)
		if err != nil {
			return value.Undefined, throwErr(errmodel.RangeError, "%s", err.Error())
		}
		return value.BigInt(n), nil
	case sbast.OpLt:
		return value.Bool(a.Cmp(b) < 0), nil
	case sbast.OpGt:
		return value.Bool(a.Cmp(b) > 0), nil
	case sbast.OpLe:
		return value.Bool(a.Cmp(b) <= 0), nil
	case sbast.OpGe:
		return value.Bool(a.Cmp(b) >= 0), nil
	}
	return value.Undefined, throwErr(errmodel.TypeError, "unsupported BigInt operator %s", op)
}

func compareNumOrStr(l, r value.Value) int {
	if l.IsString() && r.IsString() {
		a, b := l.Str(), r.Str()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
	a, b := value.ToNumber(l), value.ToNumber(r)
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return 2 // neither < nor > nor == holds; callers treat as false
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// looseEquals implements `==`, restricted to the coercions the sandbox
// actually needs: null/undefined are mutually loosely equal and equal to
// nothing else; Number/String/Boolean coerce to Number; everything else
// falls back to strict equality (objects are never coerced to
// primitives here since the sandbox has no user-defined valueOf/toString
// hook into this path).
func looseEquals(l, r value.Value) bool {
	if l.IsNullish() && r.IsNullish() {
		return true
	}
	if l.IsNullish() != r.IsNullish() {
		return false
	}
	if l.Tag() == r.Tag() {
		return value.StrictEquals(l, r)
	}
	if l.IsBigInt() || r.IsBigInt() {
		if l.IsBigInt() && r.IsNumber() {
			bf := new(big.Float).SetInt(l.Big())
			f, _ := bf.Float64()
			return f == r.Float()
		}
		if r.IsBigInt() && l.IsNumber() {
			bf := new(big.Float).SetInt(r.Big())
			f, _ := bf.Float64()
			return f == l.Float()
		}
		return false
	}
	return value.ToNumber(l) == value.ToNumber(r)
}
