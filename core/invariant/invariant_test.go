package invariant

import (
	"strings"
	"testing"
)

// expectPanic runs fn and verifies it panics with a message containing want.
func expectPanic(t *testing.T, want string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic containing %q, got none", want)
		}
		msg, ok := r.(string)
		if !ok {
			t.Fatalf("expected string panic, got %T", r)
		}
		if !strings.Contains(msg, want) {
			t.Errorf("panic message %q does not contain %q", msg, want)
		}
	}()
	fn()
}

func TestPrecondition(t *testing.T) {
	// Passing condition must not panic
	Precondition(true, "should not fire")

	expectPanic(t, "PRECONDITION VIOLATION: clauses must not be empty", func() {
		Precondition(false, "clauses must not be empty")
	})
}

func TestPostcondition(t *testing.T) {
	Postcondition(true, "should not fire")

	expectPanic(t, "POSTCONDITION VIOLATION", func() {
		Postcondition(false, "tree root must be set")
	})
}

func TestInvariant(t *testing.T) {
	Invariant(true, "should not fire")

	expectPanic(t, "INVARIANT VIOLATION: position must advance", func() {
		Invariant(false, "position must advance")
	})
}

func TestNotNil(t *testing.T) {
	NotNil("value", "arg")
	NotNil(42, "arg")

	expectPanic(t, "arg must not be nil", func() {
		NotNil(nil, "arg")
	})

	// Typed nil pointer must also be caught
	var p *int
	expectPanic(t, "arg must not be nil", func() {
		NotNil(p, "arg")
	})

	// Typed nil slice
	var s []byte
	expectPanic(t, "arg must not be nil", func() {
		NotNil(s, "arg")
	})
}

func TestInRange(t *testing.T) {
	InRange(0, 0, 10, "index")
	InRange(10, 0, 10, "index")

	expectPanic(t, "index must be in range [0, 10], got 11", func() {
		InRange(11, 0, 10, "index")
	})
	expectPanic(t, "index must be in range [0, 10], got -1", func() {
		InRange(-1, 0, 10, "index")
	})
}

func TestExpectNoError(t *testing.T) {
	ExpectNoError(nil, "hashing")

	expectPanic(t, "hashing must not fail", func() {
		ExpectNoError(errTest, "hashing")
	})
}

type testError struct{}

func (testError) Error() string { return "boom" }

var errTest = testError{}

func TestViolationIncludesCallSite(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		msg := r.(string)
		if !strings.Contains(msg, "invariant_test.go") {
			t.Errorf("panic message should include call site, got %q", msg)
		}
	}()
	Invariant(false, "fails here")
}
