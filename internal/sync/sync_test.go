package sync

import (
	"reflect"
	"testing"
)

func TestWords(t *testing.T) {
	tests := []struct {
		name                  string
		args                  []string
		del, pause, enable, h bool
		want                  []string
		wantErr               bool
	}{
		{"list", nil, false, false, false, false, []string{"sync"}, false},
		{"add", []string{"/tmp/a", "/a"}, false, false, false, false, []string{"sync", "/tmp/a", "/a"}, false},
		{"pause", []string{"/tmp/a"}, false, true, false, false, []string{"sync", "-p", "/tmp/a"}, false},
		{"delete with handles", []string{"ID1"}, true, false, false, true, []string{"sync", "-d", "--show-handles", "ID1"}, false},
		{"delete needs target", nil, true, false, false, false, nil, true},
		{"exclusive", []string{"ID1"}, true, true, false, false, nil, true},
		{"too many", []string{"a", "b", "c"}, false, false, false, false, nil, true},
	}
	for _, tt := range tests {
		got, err := Words(tt.args, tt.del, tt.pause, tt.enable, tt.h)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: expected error %v, got %v", tt.name, tt.wantErr, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}
