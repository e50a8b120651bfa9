package model

import (
	"reflect"
	"testing"
)

func TestActivityCauseTags(t *testing.T) {
	tests := []struct {
		name  string
		cause string
		want  []string
	}{
		{name: "single", cause: "Environment", want: []string{"Environment"}},
		{name: "multiple", cause: "Education, Environment", want: []string{"Education", "Environment"}},
		{name: "extra separators", cause: " Poverty ,, Health ,", want: []string{"Poverty", "Health"}},
		{name: "empty", cause: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Activity{CauseArea: tt.cause}.CauseTags()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CauseTags() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestJoinCauseTags(t *testing.T) {
	got := JoinCauseTags([]string{" Education", "", "Environment "})
	if got != "Education, Environment" {
		t.Errorf("JoinCauseTags() = %q", got)
	}
	if JoinCauseTags(nil) != "" {
		t.Error("expected empty string for no tags")
	}
}
