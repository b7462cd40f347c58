package transform

import (
	"testing"

	"reshape/internal/core/errors"
)

const accountSource = "class Account:\n" +
	"    def __init__(self, balance):\n" +
	"        self.balance = balance\n" +
	"\n" +
	"    def drain(self):\n" +
	"        self.balance = 0\n" +
	"\n" +
	"def audit(a: Account):\n" +
	"    a.balance = a.balance + 10\n" +
	"    return a.balance\n"

func TestEncapsulateField(t *testing.T) {
	ctx := buildCtx(t, map[string]string{"bank": accountSource})

	p := runOp(t, ctx, &EncapsulateField{Target: "bank.Account.balance"})
	out := applied(t, ctx, p, "bank.py")

	mustContain(t, out,
		"        self._balance = balance\n",
		"    def get_balance(self):\n        return self._balance\n",
		"    def set_balance(self, value):\n        self._balance = value\n",
		// The class's own method keeps direct access to the private name.
		"        self._balance = 0\n",
		"    a.set_balance(a.get_balance() + 10)\n",
		"    return a.get_balance()\n",
	)
	mustNotContain(t, out, "a.balance")
}

func TestSelfEncapsulateField(t *testing.T) {
	ctx := buildCtx(t, map[string]string{"bank": accountSource})

	p := runOp(t, ctx, &SelfEncapsulateField{Target: "bank.Account.balance"})
	out := applied(t, ctx, p, "bank.py")

	mustContain(t, out,
		// Declaring assignment stays direct, other own accesses do not.
		"        self._balance = balance\n",
		"        self.set_balance(0)\n",
		"    a.set_balance(a.get_balance() + 10)\n",
	)
	mustNotContain(t, out, "self.balance = 0")
}

func TestEncapsulateField_Rejections(t *testing.T) {
	ctx := buildCtx(t, map[string]string{
		"bank": "class Account:\n" +
			"    def __init__(self, balance):\n" +
			"        self.balance = balance\n" +
			"        self._secret = 1\n" +
			"        self.count = 0\n" +
			"\n" +
			"    def get_balance(self):\n" +
			"        return 0\n" +
			"\n" +
			"def bump(a: Account):\n" +
			"    a.count += 1\n",
	})

	// Already private.
	expectRejection(t, ctx,
		&EncapsulateField{Target: "bank.Account._secret"}, errors.CodeValidationError)
	// Augmented write cannot route through a setter.
	expectRejection(t, ctx,
		&EncapsulateField{Target: "bank.Account.count"}, errors.CodeUnsupportedConstruct)
	// Accessor name already taken on the class.
	expectRejection(t, ctx,
		&EncapsulateField{Target: "bank.Account.balance"}, errors.CodeNameConflict)
}

func TestRemoveMiddleMan(t *testing.T) {
	ctx := buildCtx(t, map[string]string{
		"org": "class Person:\n" +
			"    def __init__(self, department):\n" +
			"        self.department = department\n" +
			"\n" +
			"    def manager(self):\n" +
			"        return self.department.lookup_manager()\n" +
			"\n" +
			"def who(p: Person):\n" +
			"    return p.manager()\n",
	})

	p := runOp(t, ctx, &RemoveMiddleMan{Target: "org.Person.manager"})
	out := applied(t, ctx, p, "org.py")

	mustContain(t, out, "    return p.department.lookup_manager()\n")
	mustNotContain(t, out, "def manager")
}

func TestRemoveMiddleMan_Rejections(t *testing.T) {
	ctx := buildCtx(t, map[string]string{
		"org": "class Person:\n" +
			"    def __init__(self, department):\n" +
			"        self.department = department\n" +
			"\n" +
			"    def find(self, name):\n" +
			"        return self.department.find(name + \"!\")\n" +
			"\n" +
			"    def head(self):\n" +
			"        return self.department.head()\n" +
			"\n" +
			"class Contractor(Person):\n" +
			"    def head(self):\n" +
			"        return None\n",
	})

	// Arguments are transformed, not passed through.
	expectRejection(t, ctx,
		&RemoveMiddleMan{Target: "org.Person.find"}, errors.CodeUnsupportedConstruct)
	// Overridden in a subclass.
	expectRejection(t, ctx,
		&RemoveMiddleMan{Target: "org.Person.head"}, errors.CodeUnsupportedConstruct)
}
