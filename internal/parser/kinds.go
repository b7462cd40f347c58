package parser

// Node kinds of the Python grammar the engine models. The symbol builder
// and transforms switch over these; a kind outside this set is surfaced
// as an unsupported construct instead of being guessed at.
const (
	KindModule              = "module"
	KindClassDef            = "class_definition"
	KindFunctionDef         = "function_definition"
	KindDecoratedDef        = "decorated_definition"
	KindDecorator           = "decorator"
	KindBlock               = "block"
	KindParameters          = "parameters"
	KindDefaultParameter    = "default_parameter"
	KindTypedParameter      = "typed_parameter"
	KindTypedDefaultParam   = "typed_default_parameter"
	KindIdentifier          = "identifier"
	KindAttribute           = "attribute"
	KindCall                = "call"
	KindArgumentList        = "argument_list"
	KindKeywordArgument     = "keyword_argument"
	KindAssignment          = "assignment"
	KindAugmentedAssignment = "augmented_assignment"
	KindExpressionStatement = "expression_statement"
	KindReturnStatement     = "return_statement"
	KindIfStatement         = "if_statement"
	KindElifClause          = "elif_clause"
	KindElseClause          = "else_clause"
	KindWhileStatement      = "while_statement"
	KindForStatement        = "for_statement"
	KindBreakStatement      = "break_statement"
	KindImportStatement     = "import_statement"
	KindImportFromStatement = "import_from_statement"
	KindRelativeImport      = "relative_import"
	KindAliasedImport       = "aliased_import"
	KindDottedName          = "dotted_name"
	KindGlobalStatement     = "global_statement"
	KindNonlocalStatement   = "nonlocal_statement"
	KindComparisonOperator  = "comparison_operator"
	KindBooleanOperator     = "boolean_operator"
	KindNotOperator         = "not_operator"
	KindString              = "string"
	KindComment             = "comment"
	KindPassStatement       = "pass_statement"
	KindRaiseStatement      = "raise_statement"
	KindLambda              = "lambda"
	KindTrue                = "true"
	KindFalse               = "false"
	KindNone                = "none"
)


// scopeOpeners lists the kinds that introduce a new lexical scope.
func IsScopeOpener(kind string) bool {
	switch kind {
	case KindModule, KindClassDef, KindFunctionDef, KindLambda:
		return true
	}
	return false
}
