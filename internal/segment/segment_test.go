package segment

import "testing"

func TestBuild(t *testing.T) {
	tests := []struct {
		locale string
		suffix string
		want   string
	}{
		{"fr", "be", "fr-be"},
		{"de", "be", "de-be"},
		{"en-gb", "uk", "uk"},
		{"de-de", "de", "de"},
		{"fr", "fr-be", "fr-be"},
		{"fr", "fr", "fr"},
		{"pt-pt", "", "pt-pt"},
		{"fr", "", "fr"},
		// normalization
		{"FR", "BE", "fr-be"},
		{"fr", "/be/", "fr-be"},
		{"fr", "//", "fr"},
		{" de ", " at ", "de-at"},
		{"de", "/de-at", "de-at"},
	}

	for _, tt := range tests {
		t.Run(tt.locale+"+"+tt.suffix, func(t *testing.T) {
			if got := Build(tt.locale, tt.suffix); got != tt.want {
				t.Errorf("Build(%q, %q) = %q, want %q", tt.locale, tt.suffix, got, tt.want)
			}
		})
	}
}

func TestBuildNoSlashes(t *testing.T) {
	inputs := [][2]string{{"fr", "/be"}, {"en-gb", "uk/"}, {"es", "/es/"}}
	for _, in := range inputs {
		got := Build(in[0], in[1])
		if got == "" || got[0] == '/' || got[len(got)-1] == '/' {
			t.Errorf("Build(%q, %q) = %q, want non-empty segment without edge slashes", in[0], in[1], got)
		}
	}
}
