package value

import "testing"

func TestTruthy(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Null(), false},
		{Bool(false), false},
		{Bool(true), true},
		{Int(0), false},
		{Int(1), true},
		{String(""), false},
		{String("x"), true},
		{Array(nil), false},
		{Array([]Value{Int(1)}), true},
	}
	for _, c := range cases {
		if got := c.v.Truthy(); got != c.want {
			t.Errorf("Truthy(%v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestGetDottedPath(t *testing.T) {
	v := Object(map[string]Value{
		"user": Object(map[string]Value{
			"tags": Array([]Value{String("a"), String("b")}),
		}),
	})

	got, ok := v.Get("user.tags.1")
	if !ok || got.AsString() != "b" {
		t.Fatalf("Get(user.tags.1) = %v, %v", got, ok)
	}

	if _, ok := v.Get("user.missing"); ok {
		t.Fatalf("expected missing path to fail")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	v := Object(map[string]Value{
		"n": Int(3),
		"f": Float(1.5),
		"s": String("hi"),
		"b": Bool(true),
		"a": Array([]Value{Null(), Int(1)}),
	})

	data, err := v.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var round Value
	if err := round.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got, _ := round.Get("n"); got.AsInt() != 3 {
		t.Errorf("n = %v", got)
	}
	if got, _ := round.Get("s"); got.AsString() != "hi" {
		t.Errorf("s = %v", got)
	}
}

func TestClonedArrayIsIndependent(t *testing.T) {
	original := Array([]Value{Int(1), Int(2)})
	cloned := original.Clone()

	clonedArr := cloned.AsArray()
	clonedArr[0] = Int(99)

	if original.AsArray()[0].AsInt() != 1 {
		t.Fatalf("mutating clone affected original")
	}
}
