package compiler

import (
	gojaast "github.com/dop251/goja/ast"

	sbast "github.com/grafana/jsvm/internal/sandbox/ast"
)

// statement converts one goja statement node. Constructs with no sandbox
// equivalent (e.g. debugger statements, with-statements, generator
// delegation edge cases goja itself doesn't model separately) fall through
// to unsupported.
func (a *adapter) statement(s gojaast.Statement) sbast.Statement {
	switch n := s.(type) {
	case *gojaast.BlockStatement:
		return a.block(n)
	case *gojaast.ExpressionStatement:
		return &sbast.ExpressionStatement{Expression: a.expression(n.Expression)}
	case *gojaast.VariableStatement:
		return a.variableStatement(n, sbast.KindVar)
	case *gojaast.LexicalDeclaration:
		kind := sbast.KindLet
		if n.Token.String() == "const" {
			kind = sbast.KindConst
		}
		decls := make([]*sbast.VariableDeclarator, 0, len(n.List))
		for _, b := range n.List {
			decls = append(decls, &sbast.VariableDeclarator{
				Target:      a.pattern(b.Target),
				Initializer: a.maybeExpr(b.Initializer),
			})
		}
		return &sbast.VariableDeclaration{DeclKind: kind, Declarations: decls}
	case *gojaast.FunctionDeclaration:
		return &sbast.FunctionDeclaration{Function: a.functionLiteral(n.Function)}
	case *gojaast.ClassDeclaration:
		return &sbast.ClassDeclaration{Class: a.classLiteral(n.Class)}
	case *gojaast.IfStatement:
		return &sbast.IfStatement{
			Test:       a.expression(n.Test),
			Consequent: a.statement(n.Consequent),
			Alternate:  a.maybeStatement(n.Alternate),
		}
	case *gojaast.ForStatement:
		var init sbast.Node
		if n.Initializer != nil {
			init = a.forHead(n.Initializer)
		}
		return &sbast.ForStatement{
			Init:   init,
			Test:   a.maybeExpr(n.Test),
			Update: a.maybeExpr(n.Update),
			Body:   a.statement(n.Body),
		}
	case *gojaast.ForInStatement:
		return &sbast.ForInStatement{
			Target: a.pattern(n.Into),
			Right:  a.expression(n.Source),
			Body:   a.statement(n.Body),
		}
	case *gojaast.ForOfStatement:
		return &sbast.ForOfStatement{
			Target: a.pattern(n.Into),
			Right:  a.expression(n.Source),
			Body:   a.statement(n.Body),
		}
	case *gojaast.WhileStatement:
		return &sbast.WhileStatement{Test: a.expression(n.Test), Body: a.statement(n.Body)}
	case *gojaast.DoWhileStatement:
		return &sbast.DoWhileStatement{Test: a.expression(n.Test), Body: a.statement(n.Body)}
	case *gojaast.SwitchStatement:
		cases := make([]*sbast.SwitchCase, 0, len(n.Body))
		for _, c := range n.Body {
			body := make([]sbast.Statement, 0, len(c.Consequent))
			for _, cs := range c.Consequent {
				body = append(body, a.statement(cs))
			}
			cases = append(cases, &sbast.SwitchCase{Test: a.maybeExpr(c.Test), Body: body})
		}
		return &sbast.SwitchStatement{Discriminant: a.expression(n.Discriminant), Cases: cases}
	case *gojaast.BranchStatement:
		label := ""
		if n.Label != nil {
			label = string(n.Label.Name)
		}
		if n.Token.String() == "continue" {
			return &sbast.ContinueStatement{Label: label}
		}
		return &sbast.BreakStatement{Label: label}
	case *gojaast.ReturnStatement:
		return &sbast.ReturnStatement{Argument: a.maybeExpr(n.Argument)}
	case *gojaast.ThrowStatement:
		return &sbast.ThrowStatement{Argument: a.expression(n.Argument)}
	case *gojaast.TryStatement:
		t := &sbast.TryStatement{Block: a.block(n.Body)}
		if n.Catch != nil {
			var param sbast.Pattern
			if n.Catch.Parameter != nil {
				param = a.pattern(n.Catch.Parameter)
			}
			t.Catch = &sbast.CatchClause{Param: param, Body: a.block(n.Catch.Body)}
		}
		if n.Finally != nil {
			t.Finally = a.block(n.Finally)
		}
		return t
	case *gojaast.LabelledStatement:
		return &sbast.LabeledStatement{Label: string(n.Label.Name), Body: a.statement(n.Statement)}
	case *gojaast.EmptyStatement:
		return &sbast.EmptyStatement{}
	default:
		unsupported("statement")
		return nil
	}
}

func (a *adapter) forHead(n gojaast.ForLoopInitializer) sbast.Node {
	switch h := n.(type) {
	case *gojaast.ForLoopInitializerExpression:
		return &sbast.ExpressionStatement{Expression: a.expression(h.Expression)}
	case *gojaast.ForLoopInitializerVarDeclList:
		return a.variableStatement(&gojaast.VariableStatement{List: h.List}, sbast.KindVar)
	case *gojaast.ForLoopInitializerLexicalDecl:
		return a.statement(&h.LexicalDeclaration)
	default:
		unsupported("for-init")
		return nil
	}
}

func (a *adapter) variableStatement(n *gojaast.VariableStatement, kind sbast.DeclarationKind) *sbast.VariableDeclaration {
	decls := make([]*sbast.VariableDeclarator, 0, len(n.List))
	for _, b := range n.List {
		decls = append(decls, &sbast.VariableDeclarator{
			Target:      a.pattern(b.Target),
			Initializer: a.maybeExpr(b.Initializer),
		})
	}
	return &sbast.VariableDeclaration{DeclKind: kind, Declarations: decls}
}

func (a *adapter) block(n *gojaast.BlockStatement) *sbast.BlockStatement {
	if n == nil {
		return &sbast.BlockStatement{}
	}
	body := make([]sbast.Statement, 0, len(n.List))
	for _, s := range n.List {
		body = append(body, a.statement(s))
	}
	return &sbast.BlockStatement{Body: body}
}

func (a *adapter) maybeStatement(n gojaast.Statement) sbast.Statement {
	if n == nil {
		return nil
	}
	return a.statement(n)
}

func (a *adapter) maybeExpr(n gojaast.Expression) sbast.Expression {
	if n == nil {
		return nil
	}
	return a.expression(n)
}

func (a *adapter) pattern(n gojaast.BindingTarget) sbast.Pattern {
	switch t := n.(type) {
	case *gojaast.Identifier:
		return &sbast.Identifier{Name: string(t.Name)}
	case *gojaast.ArrayPattern:
		elems := make([]sbast.ArrayPatternElement, 0, len(t.Elements))
		for _, e := range t.Elements {
			if e == nil {
				elems = append(elems, sbast.ArrayPatternElement{})
				continue
			}
			elems = append(elems, sbast.ArrayPatternElement{Target: a.pattern(e)})
		}
		var rest sbast.Pattern
		if t.Rest != nil {
			rest = a.pattern(t.Rest)
		}
		return &sbast.ArrayPattern{Elements: elems, Rest: rest}
	case *gojaast.ObjectPattern:
		props := make([]sbast.PatternProperty, 0, len(t.Properties))
		for _, p := range t.Properties {
			pp, ok := p.(*gojaast.PropertyShort)
			if ok {
				props = append(props, sbast.PatternProperty{
					Key:       string(pp.Name.Name),
					Value:     &sbast.Identifier{Name: string(pp.Name.Name)},
					Default:   a.maybeExpr(pp.Initializer),
					Shorthand: true,
				})
				continue
			}
			unsupported("object-pattern-property")
		}
		var rest sbast.Pattern
		if t.Rest != nil {
			rest = a.pattern(t.Rest)
		}
		return &sbast.ObjectPattern{Properties: props, Rest: rest}
	default:
		unsupported("binding-pattern")
		return nil
	}
}

func (a *adapter) functionLiteral(n *gojaast.FunctionLiteral) *sbast.FunctionLiteral {
	name := ""
	if n.Name != nil {
		name = string(n.Name.Name)
	}
	params := make([]sbast.Param, 0)
	var rest sbast.Pattern
	if n.ParameterList != nil {
		for _, p := range n.ParameterList.List {
			params = append(params, sbast.Param{Target: a.pattern(p.Target)})
		}
		if n.ParameterList.Rest != nil {
			rest = a.pattern(n.ParameterList.Rest)
		}
	}
	kind := sbast.FuncNormal
	switch {
	case n.Async && n.Generator:
		kind = sbast.FuncAsyncGenerator
	case n.Async:
		kind = sbast.FuncAsync
	case n.Generator:
		kind = sbast.FuncGenerator
	}
	return &sbast.FunctionLiteral{
		Name:   name,
		Params: params,
		Rest:   rest,
		Body:   a.block(n.Body),
		Kind:   sbast.FuncKindAndForm{Func: kind},
	}
}

func (a *adapter) classLiteral(n *gojaast.ClassLiteral) *sbast.ClassLiteral {
	name := ""
	if n.Name != nil {
		name = string(n.Name.Name)
	}
	cl := &sbast.ClassLiteral{Name: name}
	if n.SuperClass != nil {
		cl.SuperClass = a.expression(n.SuperClass)
	}
	for _, el := range n.Body {
		m, ok := el.(*gojaast.MethodDefinition)
		if !ok {
			unsupported("class-member")
			continue
		}
		k := sbast.MemberMethod
		switch m.Kind {
		case gojaast.PropertyKindGet:
			k = sbast.MemberGetter
		case gojaast.PropertyKindSet:
			k = sbast.MemberSetter
		}
		key := ""
		if id, ok := m.Key.(*gojaast.Identifier); ok {
			key = string(id.Name)
		}
		cl.Members = append(cl.Members, sbast.ClassMember{
			Kind:   k,
			Key:    key,
			Static: m.Static,
			Value:  a.functionLiteral(m.Body),
		})
	}
	return cl
}

func (a *adapter) expression(e gojaast.Expression) sbast.Expression {
	switch n := e.(type) {
	case *gojaast.Identifier:
		return &sbast.Identifier{Name: string(n.Name)}
	case *gojaast.NumberLiteral:
		return &sbast.NumberLiteral{Value: n.Value.(float64)}
	case *gojaast.StringLiteral:
		return &sbast.StringLiteral{Value: string(n.Value)}
	case *gojaast.BooleanLiteral:
		return &sbast.BooleanLiteral{Value: n.Value}
	case *gojaast.NullLiteral:
		return &sbast.NullLiteral{}
	case *gojaast.BigIntLiteral:
		return &sbast.BigIntLiteral{Raw: n.Value.String()}
	case *gojaast.ThisExpression:
		return &sbast.ThisExpression{}
	case *gojaast.SuperExpression:
		return &sbast.SuperExpression{}
	case *gojaast.SequenceExpression:
		parts := make([]sbast.Expression, 0, len(n.Sequence))
		for _, s := range n.Sequence {
			parts = append(parts, a.expression(s))
		}
		return &sbast.SequenceExpression{Expressions: parts}
	case *gojaast.ArrayLiteral:
		elems := make([]sbast.Expression, 0, len(n.Value))
		for _, v := range n.Value {
			if v == nil {
				elems = append(elems, nil)
				continue
			}
			if sp, ok := v.(*gojaast.SpreadElement); ok {
				elems = append(elems, &sbast.SpreadElement{Argument: a.expression(sp.Expression)})
				continue
			}
			elems = append(elems, a.expression(v))
		}
		return &sbast.ArrayLiteral{Elements: elems}
	case *gojaast.ObjectLiteral:
		props := make([]sbast.Property, 0, len(n.Value))
		for _, p := range n.Value {
			switch pv := p.(type) {
			case *gojaast.PropertyKeyed:
				key := ""
				if id, ok := pv.Key.(*gojaast.Identifier); ok {
					key = string(id.Name)
				} else if s, ok := pv.Key.(*gojaast.StringLiteral); ok {
					key = string(s.Value)
				}
				k := sbast.PropertyInit
				switch pv.Kind {
				case gojaast.PropertyKindGet:
					k = sbast.PropertyGetter
				case gojaast.PropertyKindSet:
					k = sbast.PropertySetter
				}
				props = append(props, sbast.Property{Kind: k, Key: key, Value: a.expression(pv.Value)})
			case *gojaast.SpreadElement:
				props = append(props, sbast.Property{Kind: sbast.PropertySpread, Value: a.expression(pv.Expression)})
			default:
				unsupported("object-literal-property")
			}
		}
		return &sbast.ObjectLiteral{Properties: props}
	case *gojaast.FunctionLiteral:
		return a.functionLiteral(n)
	case *gojaast.ClassLiteral:
		return a.classLiteral(n)
	case *gojaast.UnaryExpression:
		return &sbast.UnaryExpression{Operator: sbast.UnaryOperator(n.Operator.String()), Argument: a.expression(n.Operand)}
	case *gojaast.BinaryExpression:
		return &sbast.BinaryExpression{Operator: sbast.BinaryOperator(n.Operator.String()), Left: a.expression(n.Left), Right: a.expression(n.Right)}
	case *gojaast.AssignExpression:
		return &sbast.AssignmentExpression{Operator: n.Operator.String(), Target: a.expression(n.Left), Value: a.expression(n.Right)}
	case *gojaast.ConditionalExpression:
		return &sbast.ConditionalExpression{
			Test:       a.expression(n.Test),
			Consequent: a.expression(n.Consequent),
			Alternate:  a.expression(n.Alternate),
		}
	case *gojaast.CallExpression:
		args := make([]sbast.Expression, 0, len(n.ArgumentList))
		for _, arg := range n.ArgumentList {
			if sp, ok := arg.(*gojaast.SpreadElement); ok {
				args = append(args, &sbast.SpreadElement{Argument: a.expression(sp.Expression)})
				continue
			}
			args = append(args, a.expression(arg))
		}
		return &sbast.CallExpression{Callee: a.expression(n.Callee), Args: args}
	case *gojaast.NewExpression:
		args := make([]sbast.Expression, 0, len(n.ArgumentList))
		for _, arg := range n.ArgumentList {
			args = append(args, a.expression(arg))
		}
		return &sbast.NewExpression{Callee: a.expression(n.Callee), Args: args}
	case *gojaast.DotExpression:
		return &sbast.MemberExpression{
			Object:   a.expression(n.Left),
			Property: &sbast.Identifier{Name: string(n.Identifier.Name)},
		}
	case *gojaast.BracketExpression:
		return &sbast.MemberExpression{
			Object:   a.expression(n.Left),
			Property: a.expression(n.Member),
			Computed: true,
		}
	case *gojaast.TemplateLiteral:
		quasis := make([]string, 0, len(n.Elements))
		for _, q := range n.Elements {
			quasis = append(quasis, q.Parsed)
		}
		exprs := make([]sbast.Expression, 0, len(n.Expressions))
		for _, ex := range n.Expressions {
			exprs = append(exprs, a.expression(ex))
		}
		t := &sbast.TemplateLiteral{Quasis: quasis, Expressions: exprs}
		if n.Tag != nil {
			t.Tag = a.expression(n.Tag)
		}
		return t
	default:
		unsupported("expression")
		return nil
	}
}
