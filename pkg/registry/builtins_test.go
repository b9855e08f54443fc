package registry

import (
	"context"
	"testing"
)

func TestRegisterOperatorModule_Arithmetic(t *testing.T) {
	r := New("")
	RegisterOperatorModule(r)

	tests := []struct {
		name string
		args []interface{}
		want float64
	}{
		{"operator.add", []interface{}{float64(1), float64(2)}, 3},
		{"operator.sub", []interface{}{float64(5), float64(2)}, 3},
		{"operator.mul", []interface{}{float64(3), float64(4)}, 12},
		{"operator.truediv", []interface{}{float64(10), float64(4)}, 2.5},
		{"operator.pow", []interface{}{float64(3), float64(2)}, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := r.Resolve(tt.name)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, err := fn(context.Background(), "n", tt.args, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("%s(%v) = %v, want %v", tt.name, tt.args, got, tt.want)
			}
		})
	}
}

func TestRegisterOperatorModule_Comparisons(t *testing.T) {
	r := New("")
	RegisterOperatorModule(r)

	fn, err := r.Resolve("operator.gt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := fn(context.Background(), "n", []interface{}{float64(5), float64(3)}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != true {
		t.Fatalf("got %v, want true", got)
	}
}

func TestRegisterOperatorModule_RequiresTwoArgs(t *testing.T) {
	r := New("")
	RegisterOperatorModule(r)

	fn, _ := r.Resolve("operator.add")
	if _, err := fn(context.Background(), "n", []interface{}{float64(1)}, nil); err == nil {
		t.Fatal("expected error when only one argument is supplied")
	}
}
