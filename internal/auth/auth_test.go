package auth

import (
	"reflect"
	"testing"
)

func TestLoginWords(t *testing.T) {
	tests := []struct {
		args     []string
		authCode string
		want     []string
		wantErr  bool
	}{
		{[]string{"me@mega.nz", "pw"}, "", []string{"login", "me@mega.nz", "pw"}, false},
		{[]string{"me@mega.nz"}, "123456", []string{"login", "--auth-code=123456", "me@mega.nz"}, false},
		{[]string{"https://mega.nz/folder/abc#key"}, "", []string{"login", "https://mega.nz/folder/abc#key"}, false},
		{nil, "", nil, true},
		{[]string{"a", "b", "c"}, "", nil, true},
	}
	for _, tt := range tests {
		got, err := LoginWords(tt.args, tt.authCode)
		if (err != nil) != tt.wantErr {
			t.Errorf("LoginWords(%v): expected error %v, got %v", tt.args, tt.wantErr, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("LoginWords(%v): expected %v, got %v", tt.args, tt.want, got)
		}
	}
}
