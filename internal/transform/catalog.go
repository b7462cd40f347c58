package transform

import (
	"sort"
	"strconv"
	"strings"

	"reshape/internal/core/errors"
)

// Args carries an operation's parameters as parsed from the command
// line or an API request.
type Args map[string]string

func (a Args) need(key string) (string, error) {
	v, ok := a[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", errors.Newf(errors.CodeValidationError, "missing required parameter %q", key)
	}
	return v, nil
}

func (a Args) needInt(key string) (int, error) {
	v, err := a.need(key)
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(v)
	if convErr != nil {
		return 0, errors.Newf(errors.CodeValidationError, "parameter %q must be an integer, got %q", key, v)
	}
	return n, nil
}

func (a Args) needList(key string) ([]string, error) {
	v, err := a.need(key)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}

// needMap parses "key=value,key=value" parameters such as variant
// tables.
func (a Args) needMap(key string) (map[string]string, error) {
	v, err := a.need(key)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		k, val, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, errors.Newf(errors.CodeValidationError,
				"parameter %q must be key=value pairs, got %q", key, pair)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(val)
	}
	return out, nil
}

func (a Args) flag(key string) bool {
	v := strings.ToLower(strings.TrimSpace(a[key]))
	return v == "true" || v == "1" || v == "yes"
}

type builder func(Args) (Operation, error)

var catalog = map[string]builder{
	"rename": func(a Args) (Operation, error) {
		target, err := a.need("target")
		if err != nil {
			return nil, err
		}
		name, err := a.need("name")
		if err != nil {
			return nil, err
		}
		return &Rename{Target: target, NewName: name}, nil
	},
	"extract-function": func(a Args) (Operation, error) {
		return buildExtract(a, func(path string, start, end int, name string) Operation {
			return &ExtractFunction{Path: path, StartLine: start, EndLine: end, Name: name}
		})
	},
	"extract-method": func(a Args) (Operation, error) {
		return buildExtract(a, func(path string, start, end int, name string) Operation {
			return &ExtractMethod{Path: path, StartLine: start, EndLine: end, Name: name}
		})
	},
	"extract-variable": func(a Args) (Operation, error) {
		path, err := a.need("path")
		if err != nil {
			return nil, err
		}
		line, err := a.needInt("line")
		if err != nil {
			return nil, err
		}
		expr, err := a.need("expression")
		if err != nil {
			return nil, err
		}
		name, err := a.need("name")
		if err != nil {
			return nil, err
		}
		return &ExtractVariable{Path: path, Line: line, Expression: expr, Name: name}, nil
	},
	"inline-function": func(a Args) (Operation, error) {
		target, err := a.need("target")
		if err != nil {
			return nil, err
		}
		return &InlineFunction{Target: target}, nil
	},
	"inline-method": func(a Args) (Operation, error) {
		target, err := a.need("target")
		if err != nil {
			return nil, err
		}
		return &InlineMethod{Target: target}, nil
	},
	"inline-variable": func(a Args) (Operation, error) {
		target, err := a.need("target")
		if err != nil {
			return nil, err
		}
		return &InlineVariable{Target: target}, nil
	},
	"move-method": func(a Args) (Operation, error) {
		target, to, via, err := needMove(a)
		if err != nil {
			return nil, err
		}
		return &MoveMethod{Target: target, To: to, Via: via, KeepStub: a.flag("keep-stub")}, nil
	},
	"move-field": func(a Args) (Operation, error) {
		target, to, via, err := needMove(a)
		if err != nil {
			return nil, err
		}
		return &MoveField{Target: target, To: to, Via: via}, nil
	},
	"pull-up-method": func(a Args) (Operation, error) {
		target, err := a.need("target")
		if err != nil {
			return nil, err
		}
		return &PullUpMethod{Target: target}, nil
	},
	"pull-up-field": func(a Args) (Operation, error) {
		target, err := a.need("target")
		if err != nil {
			return nil, err
		}
		return &PullUpField{Target: target}, nil
	},
	"push-down-method": func(a Args) (Operation, error) {
		target, to, err := needPushDown(a)
		if err != nil {
			return nil, err
		}
		return &PushDownMethod{Target: target, To: to}, nil
	},
	"push-down-field": func(a Args) (Operation, error) {
		target, to, err := needPushDown(a)
		if err != nil {
			return nil, err
		}
		return &PushDownField{Target: target, To: to}, nil
	},
	"pull-up-constructor-body": func(a Args) (Operation, error) {
		target, err := a.need("target")
		if err != nil {
			return nil, err
		}
		return &PullUpConstructorBody{Target: target}, nil
	},
	"replace-conditional-with-polymorphism": func(a Args) (Operation, error) {
		target, err := a.need("target")
		if err != nil {
			return nil, err
		}
		variants, err := a.needMap("variants")
		if err != nil {
			return nil, err
		}
		return &ReplaceConditionalWithPolymorphism{Target: target, Variants: variants}, nil
	},
	"replace-type-code-with-subclasses": func(a Args) (Operation, error) {
		target, err := a.need("target")
		if err != nil {
			return nil, err
		}
		accessor, err := a.need("accessor")
		if err != nil {
			return nil, err
		}
		variants, err := a.needMap("variants")
		if err != nil {
			return nil, err
		}
		return &ReplaceTypeCodeWithSubclasses{Target: target, Accessor: accessor, Variants: variants}, nil
	},
	"encapsulate-field": func(a Args) (Operation, error) {
		target, err := a.need("target")
		if err != nil {
			return nil, err
		}
		return &EncapsulateField{Target: target}, nil
	},
	"self-encapsulate-field": func(a Args) (Operation, error) {
		target, err := a.need("target")
		if err != nil {
			return nil, err
		}
		return &SelfEncapsulateField{Target: target}, nil
	},
	"remove-middle-man": func(a Args) (Operation, error) {
		target, err := a.need("target")
		if err != nil {
			return nil, err
		}
		return &RemoveMiddleMan{Target: target}, nil
	},
	"replace-parameter-with-method-call": func(a Args) (Operation, error) {
		target, err := a.need("target")
		if err != nil {
			return nil, err
		}
		param, err := a.need("parameter")
		if err != nil {
			return nil, err
		}
		replacement, err := a.need("replacement")
		if err != nil {
			return nil, err
		}
		return &ReplaceParameterWithMethodCall{Target: target, Parameter: param, Replacement: replacement}, nil
	},
	"introduce-guard-clauses": func(a Args) (Operation, error) {
		target, err := a.need("target")
		if err != nil {
			return nil, err
		}
		return &IntroduceGuardClauses{Target: target}, nil
	},
	"consolidate-conditional": func(a Args) (Operation, error) {
		path, err := a.need("path")
		if err != nil {
			return nil, err
		}
		start, err := a.needInt("start")
		if err != nil {
			return nil, err
		}
		end, err := a.needInt("end")
		if err != nil {
			return nil, err
		}
		return &ConsolidateConditional{Path: path, StartLine: start, EndLine: end}, nil
	},
}

func buildExtract(a Args, mk func(string, int, int, string) Operation) (Operation, error) {
	path, err := a.need("path")
	if err != nil {
		return nil, err
	}
	start, err := a.needInt("start")
	if err != nil {
		return nil, err
	}
	end, err := a.needInt("end")
	if err != nil {
		return nil, err
	}
	name, err := a.need("name")
	if err != nil {
		return nil, err
	}
	return mk(path, start, end, name), nil
}

func needMove(a Args) (target, to, via string, err error) {
	if target, err = a.need("target"); err != nil {
		return
	}
	if to, err = a.need("to"); err != nil {
		return
	}
	via, err = a.need("via")
	return
}

func needPushDown(a Args) (string, []string, error) {
	target, err := a.need("target")
	if err != nil {
		return "", nil, err
	}
	to, err := a.needList("to")
	if err != nil {
		return "", nil, err
	}
	return target, to, nil
}

// Kinds lists every refactoring the catalog can build, sorted.
func Kinds() []string {
	out := make([]string, 0, len(catalog))
	for kind := range catalog {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}

// Build constructs the operation for a kind from its parameters.
func Build(kind string, args Args) (Operation, error) {
	b, ok := catalog[kind]
	if !ok {
		return nil, errors.Newf(errors.CodeNotFound, "unknown refactoring kind %q", kind)
	}
	return b(args)
}
