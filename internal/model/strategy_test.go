package model

import (
	"encoding/json"
	"testing"
)

func TestRewriteOverrides_Apply(t *testing.T) {
	aggressive := ModeAggressive
	bogus := RewriteMode("bogus")
	no := false

	tests := []struct {
		name      string
		overrides *RewriteOverrides
		want      RewriteOptions
	}{
		{"nil", nil, DefaultRewriteOptions()},
		{"empty", &RewriteOverrides{}, DefaultRewriteOptions()},
		{
			"mode only",
			&RewriteOverrides{Mode: &aggressive},
			RewriteOptions{Mode: ModeAggressive, PreserveQueryParams: true, PreserveAnchors: true},
		},
		{
			"unknown mode",
			&RewriteOverrides{Mode: &bogus},
			DefaultRewriteOptions(),
		},
		{
			"flags",
			&RewriteOverrides{PreserveQueryParams: &no, PreserveAnchors: &no},
			RewriteOptions{Mode: ModeConservative},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.overrides.Apply(DefaultRewriteOptions()); got != tt.want {
				t.Errorf("Apply() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRewriteOverrides_JSON(t *testing.T) {
	var o RewriteOverrides
	if err := json.Unmarshal([]byte(`{"strategy":"aggressive","preserve_anchors":false}`), &o); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if o.IsZero() {
		t.Fatal("IsZero() = true")
	}
	if o.Mode == nil || *o.Mode != ModeAggressive {
		t.Errorf("Mode = %v", o.Mode)
	}
	if o.PreserveQueryParams != nil {
		t.Errorf("PreserveQueryParams = %v, want nil", *o.PreserveQueryParams)
	}
	if o.PreserveAnchors == nil || *o.PreserveAnchors {
		t.Errorf("PreserveAnchors = %v, want false", o.PreserveAnchors)
	}

	got := o.Apply(DefaultRewriteOptions())
	want := RewriteOptions{Mode: ModeAggressive, PreserveQueryParams: true}
	if got != want {
		t.Errorf("Apply() = %+v, want %+v", got, want)
	}
}
