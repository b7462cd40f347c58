package transform

import (
	"testing"

	"reshape/internal/core/errors"
)

const payTypeSource = "class Employee:\n" +
	"    def __init__(self, type):\n" +
	"        self.type = type\n" +
	"\n" +
	"    def pay_amount(self):\n" +
	"        if self.type == \"engineer\":\n" +
	"            return self.monthly_salary\n" +
	"        elif self.type == \"salesman\":\n" +
	"            return self.monthly_salary + self.commission\n" +
	"        else:\n" +
	"            return self.monthly_salary + self.bonus\n"

func TestReplaceConditionalWithPolymorphism(t *testing.T) {
	ctx := buildCtx(t, map[string]string{"payroll": payTypeSource})

	p := runOp(t, ctx, &ReplaceConditionalWithPolymorphism{
		Target: "payroll.Employee.pay_amount",
		Variants: map[string]string{
			"engineer": "Engineer",
			"salesman": "Salesman",
		},
	})
	out := applied(t, ctx, p, "payroll.py")

	mustContain(t, out,
		"class Engineer(Employee):\n"+
			"    def pay_amount(self):\n"+
			"        return self.monthly_salary\n",
		"class Salesman(Employee):\n"+
			"    def pay_amount(self):\n"+
			"        return self.monthly_salary + self.commission\n",
		// The else branch becomes the base implementation.
		"    def pay_amount(self):\n"+
			"        return self.monthly_salary + self.bonus\n",
	)
	mustNotContain(t, out, "elif", "self.type ==")
}

func TestReplaceConditionalWithPolymorphism_NoElse(t *testing.T) {
	ctx := buildCtx(t, map[string]string{
		"birds": "class Bird:\n" +
			"    def speed(self):\n" +
			"        if self.kind == \"european\":\n" +
			"            return 35\n" +
			"        elif self.kind == \"african\":\n" +
			"            return 40\n",
	})

	p := runOp(t, ctx, &ReplaceConditionalWithPolymorphism{
		Target: "birds.Bird.speed",
		Variants: map[string]string{
			"european": "European",
			"african":  "African",
		},
	})
	out := applied(t, ctx, p, "birds.py")

	mustContain(t, out,
		"        raise NotImplementedError(\"speed\")\n",
		"class European(Bird):\n    def speed(self):\n        return 35\n",
		"class African(Bird):\n    def speed(self):\n        return 40\n",
	)
}

func TestReplaceConditionalWithPolymorphism_Rejections(t *testing.T) {
	ctx := buildCtx(t, map[string]string{
		"mixed": "class Engineer:\n" +
			"    pass\n" +
			"\n" +
			"class Worker:\n" +
			"    def tagged(self):\n" +
			"        if self.kind == \"a\":\n" +
			"            return 1\n" +
			"        elif self.other == \"b\":\n" +
			"            return 2\n" +
			"\n" +
			"    def guarded(self):\n" +
			"        if self.kind > 3:\n" +
			"            return 1\n" +
			"\n" +
			"    def plain(self):\n" +
			"        x = 1\n" +
			"        return x\n" +
			"\n" +
			"    def coded(self):\n" +
			"        if self.kind == \"a\":\n" +
			"            return 1\n",
	})

	// Branches test different discriminants.
	expectRejection(t, ctx,
		&ReplaceConditionalWithPolymorphism{
			Target:   "mixed.Worker.tagged",
			Variants: map[string]string{"a": "A", "b": "B"},
		},
		errors.CodeUnsupportedConstruct)
	// Condition is not an equality against a literal.
	expectRejection(t, ctx,
		&ReplaceConditionalWithPolymorphism{
			Target:   "mixed.Worker.guarded",
			Variants: map[string]string{"3": "Three"},
		},
		errors.CodeUnsupportedConstruct)
	// Body is not a single conditional.
	expectRejection(t, ctx,
		&ReplaceConditionalWithPolymorphism{
			Target:   "mixed.Worker.plain",
			Variants: map[string]string{"a": "A"},
		},
		errors.CodeUnsupportedConstruct)
	// No subclass name for a case.
	expectRejection(t, ctx,
		&ReplaceConditionalWithPolymorphism{
			Target:   "mixed.Worker.coded",
			Variants: map[string]string{},
		},
		errors.CodeValidationError)
	// The subclass name is already taken at module level.
	expectRejection(t, ctx,
		&ReplaceConditionalWithPolymorphism{
			Target:   "mixed.Worker.coded",
			Variants: map[string]string{"a": "Engineer"},
		},
		errors.CodeNameConflict)
}

func TestReplaceTypeCodeWithSubclasses(t *testing.T) {
	ctx := buildCtx(t, map[string]string{
		"staff": "class Employee:\n" +
			"    def __init__(self, type):\n" +
			"        self.type = type\n" +
			"\n" +
			"def describe(e: Employee):\n" +
			"    if e.type == \"engineer\":\n" +
			"        return \"eng\"\n" +
			"    return \"other\"\n",
	})

	p := runOp(t, ctx, &ReplaceTypeCodeWithSubclasses{
		Target:   "staff.Employee.type",
		Accessor: "get_type",
		Variants: map[string]string{
			"engineer": "Engineer",
			"clerk":    "Clerk",
		},
	})
	out := applied(t, ctx, p, "staff.py")

	mustContain(t, out,
		// The declaring assignment is gone; the constructor keeps a body.
		"    def __init__(self, type):\n        pass\n",
		"    def get_type(self):\n        raise NotImplementedError(\"get_type\")\n",
		"class Engineer(Employee):\n    def get_type(self):\n        return \"engineer\"\n",
		"class Clerk(Employee):\n    def get_type(self):\n        return \"clerk\"\n",
		"    if e.get_type() == \"engineer\":\n",
	)
	mustNotContain(t, out, "self.type")
}

func TestReplaceTypeCodeWithSubclasses_Rejections(t *testing.T) {
	ctx := buildCtx(t, map[string]string{
		"staff": "class Employee:\n" +
			"    def __init__(self, type):\n" +
			"        self.type = type\n" +
			"        self.level = 1\n" +
			"\n" +
			"    def promote(self, e: Employee):\n" +
			"        e.level = e.level + 1\n",
	})

	// The code field is reassigned after construction.
	expectRejection(t, ctx,
		&ReplaceTypeCodeWithSubclasses{
			Target:   "staff.Employee.level",
			Accessor: "get_level",
			Variants: map[string]string{"1": "One"},
		},
		errors.CodeUnsupportedConstruct)
	// Accessor name collides with an existing member.
	expectRejection(t, ctx,
		&ReplaceTypeCodeWithSubclasses{
			Target:   "staff.Employee.type",
			Accessor: "promote",
			Variants: map[string]string{"a": "A"},
		},
		errors.CodeNameConflict)
	// No code values given.
	expectRejection(t, ctx,
		&ReplaceTypeCodeWithSubclasses{
			Target:   "staff.Employee.type",
			Accessor: "get_type",
			Variants: nil,
		},
		errors.CodeValidationError)
}
