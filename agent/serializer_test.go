package agent

import (
	"strings"
	"testing"
	"time"
)

type testReceiver struct {
	InstanceName    string
	InstanceCounter int
	InstanceList    []string
}

type cyclicNode struct {
	Label string
	Next  *cyclicNode
}

func newTestSerializer(depth, str, collection int) *serializer {
	return &serializer{maxDepth: depth, maxString: str, maxCollection: collection}
}

// TestCaptureBoundedTree covers I1: every CapturedValue respects its
// configured depth/breadth/string limits.
func TestCaptureBoundedTree(t *testing.T) {
	s := newTestSerializer(10, 10, 3)

	cv := s.capture("items", []string{"a", "bbbbbbbbbbbbbbbb", "c", "d", "e"}, 0)
	if cv.ArrayLength != 5 {
		t.Fatalf("ArrayLength = %d, want 5", cv.ArrayLength)
	}
	if len(cv.ArrayElements) != 3 {
		t.Fatalf("len(ArrayElements) = %d, want 3 (max_collection_size)", len(cv.ArrayElements))
	}
	if !cv.IsTruncated {
		t.Fatal("expected IsTruncated=true when collection exceeds max_collection_size")
	}

	for _, el := range cv.ArrayElements {
		if len(el.Value) > s.maxString {
			t.Fatalf("element value %q exceeds max_string_length=%d", el.Value, s.maxString)
		}
	}
}

// TestTruncationHonesty covers I2: is_truncated is false when nothing was
// actually clipped.
func TestTruncationHonesty(t *testing.T) {
	s := newTestSerializer(10, 1000, 100)

	cv := s.capture("items", []string{"a", "b", "c"}, 0)
	if cv.IsTruncated {
		t.Fatal("expected IsTruncated=false when nothing was clipped")
	}
}

// TestCaptureCycleTolerance covers I3: a self-referential object graph
// must terminate and stay within the depth bound.
func TestCaptureCycleTolerance(t *testing.T) {
	s := newTestSerializer(5, 1000, 100)

	root := &cyclicNode{Label: "root"}
	root.Next = root // self-cycle

	done := make(chan *CapturedValue, 1)
	go func() { done <- s.capture("root", root, 0) }()

	select {
	case cv := <-done:
		if cv == nil {
			t.Fatal("capture returned nil on cyclic input")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not terminate on a cyclic object graph")
	}
}

// TestCaptureReceiverFields covers S1's receiver-field shape: a struct with
// a string, an int, and a three-element string slice.
func TestCaptureReceiverFields(t *testing.T) {
	s := newTestSerializer(10, 1000, 100)
	receiver := &testReceiver{
		InstanceName:    "TestAppInstance",
		InstanceCounter: 42,
		InstanceList:    []string{"field1", "field2", "field3"},
	}

	flat := captureReceiverFields(s, receiver)

	name, ok := flat["this.InstanceName"]
	if !ok || name.Value != "TestAppInstance" {
		t.Fatalf("this.InstanceName = %#v, want value TestAppInstance", name)
	}
	counter, ok := flat["this.InstanceCounter"]
	if !ok || counter.Value != "42" {
		t.Fatalf("this.InstanceCounter = %#v, want value 42", counter)
	}
	list, ok := flat["this.InstanceList"]
	if !ok {
		t.Fatal("this.InstanceList missing")
	}
	if list.ArrayLength != 3 {
		t.Fatalf("this.InstanceList.ArrayLength = %d, want 3", list.ArrayLength)
	}
	if len(list.ArrayElements) == 0 || list.ArrayElements[0].Value != "field1" {
		t.Fatalf("this.InstanceList.ArrayElements[0] = %#v, want value field1", list.ArrayElements[0])
	}
}

// TestDeepStructureTruncation covers S3: a 500-element, 5000-char-string
// collection under max_collection_size=100, max_string_length=1000.
func TestDeepStructureTruncation(t *testing.T) {
	s := newTestSerializer(10, 1000, 100)

	strs := make([]string, 500)
	for i := range strs {
		strs[i] = strings.Repeat("x", 5000)
	}

	cv := s.capture("items", strs, 0)
	if cv.ArrayLength != 500 {
		t.Fatalf("ArrayLength = %d, want 500", cv.ArrayLength)
	}
	if len(cv.ArrayElements) != 100 {
		t.Fatalf("len(ArrayElements) = %d, want 100", len(cv.ArrayElements))
	}
	if !cv.IsTruncated {
		t.Fatal("expected IsTruncated=true")
	}
	for _, el := range cv.ArrayElements {
		if len(el.Value) != 1000 {
			t.Fatalf("element value length = %d, want 1000", len(el.Value))
		}
		if !el.IsTruncated {
			t.Fatal("expected each clipped string element to be marked IsTruncated")
		}
	}
}
