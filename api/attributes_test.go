package api

import "testing"

func TestAttributesAlgebra(t *testing.T) {
	if !Content.Has(Content) {
		t.Fatal("Content.Has(Content) should hold")
	}
	if Content.Has(AuxData) {
		t.Fatal("Content should not satisfy AuxData alone")
	}
	if !Content.WithComputable().Has(AuxData) {
		t.Fatal("content should make aux_data computable")
	}
	if AuxData.WithComputable() != AuxData {
		t.Fatal("aux_data alone derives nothing new")
	}
	if !noAttributes.None() || allAttributes.None() {
		t.Fatal("None() disagrees with the zero/full mask")
	}
	if !allAttributes.All() {
		t.Fatal("union of all bits should report All()")
	}
}
