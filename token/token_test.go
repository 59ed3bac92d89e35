package token

import "testing"

func TestDefaultOperatorTable(t *testing.T) {
	tbl := DefaultOperatorTable()
	if err := tbl.Validate(); err != nil {
		t.Fatalf("DefaultOperatorTable() failed Validate(): %v", err)
	}
	if prec := tbl.BinaryPrecedence["*"]; prec != PrecMultiplicative {
		t.Errorf("'*' precedence = %d, want %d", prec, PrecMultiplicative)
	}
	if prec := tbl.BinaryPrecedence["+"]; prec <= tbl.BinaryPrecedence["=="] {
		t.Errorf("'+' should bind tighter than '==': got %d vs %d", prec, tbl.BinaryPrecedence["=="])
	}
	if tbl.AlphaBinaryAliases["and"] != "&&" {
		t.Errorf(`alias "and" = %q, want "&&"`, tbl.AlphaBinaryAliases["and"])
	}
	if tbl.AlphaUnaryAliases["not"] != "!" {
		t.Errorf(`alias "not" = %q, want "!"`, tbl.AlphaUnaryAliases["not"])
	}
}

func TestValidateRejectsDanglingAlias(t *testing.T) {
	tbl := DefaultOperatorTable()
	tbl.AlphaBinaryAliases["xor"] = "^^"
	if err := tbl.Validate(); err == nil {
		t.Fatal("Validate() should reject an alias targeting an unregistered operator")
	}
}

func TestAliasEqualsWithAssign(t *testing.T) {
	tbl := DefaultOperatorTable()
	if err := tbl.AliasEqualsWithAssign(); err != nil {
		t.Fatalf("AliasEqualsWithAssign() = %v, want nil", err)
	}
	if _, ok := tbl.BinaryPrecedence["="]; ok {
		t.Error(`"=" should no longer be a registered binary operator after aliasing`)
	}
	if tbl.AlphaBinaryAliases["="] != "==" {
		t.Errorf(`alias "=" = %q, want "=="`, tbl.AlphaBinaryAliases["="])
	}
}

func TestAliasEqualsWithAssignRequiresEqualsOperator(t *testing.T) {
	tbl := &OperatorTable{BinaryPrecedence: map[string]int{}}
	if err := tbl.AliasEqualsWithAssign(); err == nil {
		t.Fatal("AliasEqualsWithAssign() should fail when \"==\" isn't registered")
	}
}

func TestKindString(t *testing.T) {
	if Identifier.String() != "Identifier" {
		t.Errorf("Identifier.String() = %q", Identifier.String())
	}
	if got := Kind(99).String(); got == "" {
		t.Errorf("Kind(99).String() returned empty string")
	}
}
