package featuregate

// presets maps a preset name to a fixed (features, mode) pair. Modeled on
// k6's js/compiler enhanced-compatibility passes, which likewise gate a
// fixed list of constructs behind a named compatibility level.
var presets = map[string]struct {
	features []string
	mode     Mode
}{
	// "2019" excludes BigInt and optional chaining / nullish coalescing,
	// which post-date ES2019.
	"2019": {
		features: []string{
			"BigIntLiteral",
			"OptionalChaining",
			"NullishCoalescing",
		},
		mode: Blacklist,
	},
	// "2020" excludes nothing this interpreter implements beyond ES2020.
	"2020": {
		features: []string{},
		mode:     Blacklist,
	},
	// "strict-data" is a whitelist suited to configuration-DSL embeddings:
	// no functions, classes, or control-flow surprises, only literals,
	// plain expressions, and variable declarations.
	"strict-data": {
		features: []string{
			"Program",
			"ExpressionStatement",
			"VariableDeclaration",
			"Identifier",
			"NumberLiteral",
			"StringLiteral",
			"BooleanLiteral",
			"NullLiteral",
			"ArrayLiteral",
			"ObjectLiteral",
			"BinaryExpression",
			"UnaryExpression",
			"ConditionalExpression",
			"MemberExpression",
			"TemplateLiteral",
		},
		mode: Whitelist,
	},
}
