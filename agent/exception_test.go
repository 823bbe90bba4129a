package agent

import (
	"errors"
	"regexp"
	"testing"
)

var hex16Pattern = regexp.MustCompile(`^[0-9a-f]{16}$`)

// TestFingerprintIsSixteenLowercaseHex covers S1/S2's "fingerprint is 16
// lowercase hex chars" expectation.
func TestFingerprintIsSixteenLowercaseHex(t *testing.T) {
	s := newSerializer(testConfig())
	ec := buildExceptionCapture(s, errors.New("boom"), nil, methodDescriptor{DeclaringType: "T", MethodName: "M"}, nil, 1)

	if !hex16Pattern.MatchString(ec.Fingerprint) {
		t.Fatalf("Fingerprint = %q, want 16 lowercase hex chars", ec.Fingerprint)
	}
}

// TestFingerprintStabilityAcrossInstances covers I10: two distinct
// exception instances of the same type, raised from the same declaring
// method with the same call stack shape, must share a fingerprint.
func TestFingerprintStabilityAcrossInstances(t *testing.T) {
	s := newSerializer(testConfig())
	desc := methodDescriptor{DeclaringType: "billing.Invoice", MethodName: "Charge"}

	a := buildExceptionCapture(s, errors.New("first failure"), nil, desc, nil, 1)
	b := buildExceptionCapture(s, errors.New("second failure"), nil, desc, nil, 1)

	if a.Fingerprint != b.Fingerprint {
		t.Fatalf("fingerprints differ for same type/method/stack shape: %q vs %q", a.Fingerprint, b.Fingerprint)
	}
}

// TestFingerprintDiffersByDeclaringMethod ensures the fingerprint is not a
// constant — distinct declaring methods must diverge.
func TestFingerprintDiffersByDeclaringMethod(t *testing.T) {
	s := newSerializer(testConfig())
	a := buildExceptionCapture(s, errors.New("boom"), nil, methodDescriptor{DeclaringType: "A", MethodName: "Foo"}, nil, 1)
	b := buildExceptionCapture(s, errors.New("boom"), nil, methodDescriptor{DeclaringType: "B", MethodName: "Bar"}, nil, 1)

	if a.Fingerprint == b.Fingerprint {
		t.Fatal("expected distinct declaring methods to produce distinct fingerprints")
	}
}

// TestMethodArgumentsCaptureValueAndType covers S2's argument-capture
// expectation: a captured integer argument's value is its string form.
func TestMethodArgumentsCaptureValueAndType(t *testing.T) {
	s := newSerializer(testConfig())
	desc := methodDescriptor{DeclaringType: "T", MethodName: "Iterate", ParamNames: []string{"iteration"}}
	err := errors.New("Invalid argument: testVar=test-value-1")

	ec := buildExceptionCapture(s, err, nil, desc, []interface{}{1}, 1)

	arg, ok := ec.MethodArguments["iteration"]
	if !ok {
		t.Fatal("expected method_arguments to contain iteration")
	}
	if arg.Value != "1" {
		t.Fatalf("iteration.Value = %q, want 1", arg.Value)
	}
	if ec.Message != "Invalid argument: testVar=test-value-1" {
		t.Fatalf("Message = %q", ec.Message)
	}
}

// TestExceptionTypeNameFromPanicValue covers the Go analogue of a
// non-error panic: panic(someValue) must report someValue's dynamic type,
// not a generic "error" placeholder.
func TestExceptionTypeNameFromPanicValue(t *testing.T) {
	pv := &panicValue{value: 42}
	if got := exceptionTypeName(pv); got != "int" {
		t.Fatalf("exceptionTypeName(panicValue{42}) = %q, want int", got)
	}
}

// TestExceptionTypeNameFromRegularError covers the ordinary error path.
func TestExceptionTypeNameFromRegularError(t *testing.T) {
	got := exceptionTypeName(errors.New("plain"))
	if got != "*errors.errorString" {
		t.Fatalf("exceptionTypeName(errors.New(...)) = %q, want *errors.errorString", got)
	}
}
