package agent

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/modern-go/reflect2"
)

const maxFieldsPerObject = 20

// serializer implements component B (spec.md §4.B): a pure, side-effect-free
// walk of one Go value into a bounded CapturedValue tree under the limits
// carried by Config.
type serializer struct {
	maxDepth      int
	maxString     int
	maxCollection int
}

func newSerializer(cfg *Config) *serializer {
	return &serializer{
		maxDepth:      cfg.MaxCaptureDepth,
		maxString:     cfg.MaxStringLength,
		maxCollection: cfg.MaxCollectionSize,
	}
}

// capture is the single exported entry point for component B:
// capture(name, value, depth) -> CapturedValue. It never panics outward —
// any reflective failure is caught per-field by the caller in capture loops
// below, matching spec.md §7's "capture-internal failure" disposition.
func (s *serializer) capture(name string, value interface{}, depth int) (result *CapturedValue) {
	defer func() {
		if r := recover(); r != nil {
			result = &CapturedValue{Name: name, Type: "unknown", Value: "<unreadable>", IsTruncated: true}
		}
	}()

	if value == nil {
		return &CapturedValue{Name: name, Type: "null", Value: "null", IsNull: true}
	}
	return s.captureValue(name, reflect.ValueOf(value), depth)
}

func (s *serializer) captureValue(name string, v reflect.Value, depth int) *CapturedValue {
	// Step 1: absent.
	if !v.IsValid() {
		return &CapturedValue{Name: name, Type: "null", Value: "null", IsNull: true}
	}

	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return &CapturedValue{Name: name, Type: typeName(v.Type()), Value: "null", IsNull: true}
		}
		v = v.Elem()
	}

	t := v.Type()

	// Step 2: scalars and strings.
	if isScalarKind(v.Kind()) {
		return s.captureScalar(name, v, t)
	}

	// Step 3: depth fence (cycle/recursion guard).
	if depth >= s.maxDepth {
		return s.captureOpaqueLeaf(name, v, t, true)
	}

	switch v.Kind() {
	case reflect.Array, reflect.Slice:
		return s.captureArray(name, v, t, depth)
	case reflect.Map:
		return s.captureMap(name, v, t, depth)
	case reflect.Struct:
		return s.captureStruct(name, v, t, depth)
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		// No ecosystem-meaningful descent target; treated as an opaque leaf
		// without marking is_truncated (nothing was discarded — see
		// DESIGN.md's open-question record).
		return s.captureOpaqueLeaf(name, v, t, false)
	default:
		return s.captureOpaqueLeaf(name, v, t, false)
	}
}

func isScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String:
		return true
	}
	return false
}

func (s *serializer) captureScalar(name string, v reflect.Value, t reflect.Type) *CapturedValue {
	str := fmt.Sprintf("%v", v.Interface())
	truncated := false
	if len(str) > s.maxString {
		str = str[:s.maxString]
		truncated = true
	}
	return &CapturedValue{
		Name:        name,
		Type:        typeName(t),
		Value:       str,
		IsTruncated: truncated,
	}
}

func (s *serializer) captureArray(name string, v reflect.Value, t reflect.Type, depth int) *CapturedValue {
	length := v.Len()
	limit := length
	if limit > s.maxCollection {
		limit = s.maxCollection
	}

	elements := make([]*CapturedValue, 0, limit)
	for i := 0; i < limit; i++ {
		elements = append(elements, s.captureValue(fmt.Sprintf("[%d]", i), v.Index(i), depth+1))
	}

	truncated := length > limit
	for _, e := range elements {
		if e.IsTruncated {
			truncated = true
		}
	}

	return &CapturedValue{
		Name:          name,
		Type:          typeName(t),
		Value:         arrayTypeLabel(t, length),
		ArrayElements: elements,
		ArrayLength:   length,
		IsTruncated:   truncated,
	}
}

func (s *serializer) captureMap(name string, v reflect.Value, t reflect.Type, depth int) *CapturedValue {
	keys := v.MapKeys()
	length := len(keys)
	limit := length
	if limit > s.maxCollection {
		limit = s.maxCollection
	}

	children := make(map[string]*CapturedValue, limit)
	truncated := length > limit
	for i := 0; i < limit; i++ {
		key := keys[i]
		keyStr := fmt.Sprintf("%v", key.Interface())
		if len(keyStr) > 50 {
			keyStr = keyStr[:50] + "..."
			truncated = true
		}
		child := s.captureValue(keyStr, v.MapIndex(key), depth+1)
		if child.IsTruncated {
			truncated = true
		}
		children[keyStr] = child
	}

	return &CapturedValue{
		Name:        name,
		Type:        typeName(t),
		Value:       fmt.Sprintf("%s<%d entries>", simpleTypeName(t), length),
		Children:    children,
		ArrayLength: length,
		IsTruncated: truncated,
	}
}

// structFieldCache caches readable (exported) field names per struct type,
// backed by modern-go/reflect2 so repeated 20-field-cap enumeration on the
// capture hot path does not re-walk reflect.Type metadata on every call —
// see DESIGN.md's Component B entry.
var structFieldCache sync.Map // map[reflect.Type][]string

func readableFieldNames(t reflect.Type) []string {
	if cached, ok := structFieldCache.Load(t); ok {
		return cached.([]string)
	}

	var names []string
	if st, ok := reflect2.Type2(t).(reflect2.StructType); ok {
		for i := 0; i < st.NumField(); i++ {
			f := st.Field(i)
			if f.PkgPath() != "" {
				continue // unexported: unreadable without unsafe, skipped like a field-read failure
			}
			names = append(names, f.Name())
		}
	} else {
		// Fallback for the rare type reflect2 can't describe as a struct.
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" {
				continue
			}
			names = append(names, f.Name)
		}
	}

	structFieldCache.Store(t, names)
	return names
}

func (s *serializer) captureStruct(name string, v reflect.Value, t reflect.Type, depth int) *CapturedValue {
	names := readableFieldNames(t)

	limit := len(names)
	// Unexported fields were skipped by readableFieldNames; like a failed
	// field read, their omission marks the parent truncated.
	fieldReadFailed := len(names) < t.NumField()
	if limit > maxFieldsPerObject {
		limit = maxFieldsPerObject
		fieldReadFailed = true
	}

	children := make(map[string]*CapturedValue, limit)
	for i := 0; i < limit; i++ {
		fieldName := names[i]
		child := s.captureFieldSafely(fieldName, v, depth)
		if child == nil {
			fieldReadFailed = true
			continue
		}
		if child.IsTruncated {
			fieldReadFailed = true
		}
		children[fieldName] = child
	}

	return &CapturedValue{
		Name:        name,
		Type:        typeName(t),
		Value:       fmt.Sprintf("%s@%s", simpleTypeName(t), identityHex(v)),
		Children:    children,
		HashCode:    identityHex(v),
		IsTruncated: fieldReadFailed,
	}
}

// captureFieldSafely reads one struct field, swallowing any panic from an
// unreadable field per spec.md §4.B step 7 ("field read failures are
// silently skipped; unreadable fields do not appear in output").
func (s *serializer) captureFieldSafely(fieldName string, v reflect.Value, depth int) (result *CapturedValue) {
	defer func() {
		if recover() != nil {
			result = nil
		}
	}()
	fv := v.FieldByName(fieldName)
	if !fv.CanInterface() {
		return nil
	}
	return s.captureValue(fieldName, fv, depth+1)
}

func (s *serializer) captureOpaqueLeaf(name string, v reflect.Value, t reflect.Type, truncated bool) *CapturedValue {
	return &CapturedValue{
		Name:        name,
		Type:        typeName(t),
		Value:       fmt.Sprintf("%s@%s", simpleTypeName(t), identityHex(v)),
		HashCode:    identityHex(v),
		IsTruncated: truncated,
	}
}

// identityHex is the Go analogue of spec.md §4.B's "runtime's identity
// hash in lowercase hexadecimal". Go has no universal per-value identity;
// for pointer-shaped kinds the pointer value stands in for identity. Any
// other value uses its own address when it is addressable (e.g. a struct
// reached through a pointer dereferenced above); otherwise hash_code is
// left empty — see DESIGN.md's open-question record.
func identityHex(v reflect.Value) string {
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Slice:
		return fmt.Sprintf("%x", v.Pointer())
	}
	if v.CanAddr() {
		return fmt.Sprintf("%x", v.Addr().Pointer())
	}
	return ""
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "null"
	}
	return t.String()
}

func simpleTypeName(t reflect.Type) string {
	name := t.Name()
	if name == "" {
		name = t.String()
	}
	return name
}

// arrayTypeLabel renders the declared type with [len] substituted for [],
// per spec.md §4.B step 4.
func arrayTypeLabel(t reflect.Type, length int) string {
	elem := t.Elem()
	return fmt.Sprintf("[%d]%s", length, typeName(elem))
}
