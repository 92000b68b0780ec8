package display

import (
	"reflect"
	"testing"
)

func TestNarrative(t *testing.T) {
	tests := []struct {
		name string
		size int
		push []string
		want []string
	}{
		{"empty", 3, nil, []string{}},
		{"partial", 3, []string{"a", "b"}, []string{"a", "b"}},
		{"exact", 3, []string{"a", "b", "c"}, []string{"a", "b", "c"}},
		{"wraps", 3, []string{"a", "b", "c", "d", "e"}, []string{"c", "d", "e"}},
		{"zero size", 0, []string{"a"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNarrative(tt.size)
			for _, l := range tt.push {
				n.Push(l)
			}
			if got := n.Lines(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Lines() = %v, want %v", got, tt.want)
			}
			if n.Len() != len(tt.want) {
				t.Errorf("Len() = %d, want %d", n.Len(), len(tt.want))
			}
		})
	}
}
