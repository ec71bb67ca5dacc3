package backup

import (
	"reflect"
	"testing"
)

func TestCreateWords(t *testing.T) {
	got, err := CreateWords([]string{"/home/me/docs", "/Backups"}, "1d", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"backup", "/home/me/docs", "/Backups", "--period=1d", "--num-backups=3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	if _, err := CreateWords([]string{"/home/me/docs"}, "1d", 3); err == nil {
		t.Errorf("expected an error for a missing remote path")
	}
	if _, err := CreateWords([]string{"a", "b"}, "1d", 0); err == nil {
		t.Errorf("expected an error for zero backups")
	}
}

func TestSetWords(t *testing.T) {
	tests := []struct {
		args    []string
		period  string
		num     int
		want    []string
		wantErr bool
	}{
		{[]string{"7"}, "2h", 0, []string{"backup", "--period=2h", "7"}, false},
		{[]string{"7"}, "", 4, []string{"backup", "--num-backups=4", "7"}, false},
		{[]string{"/docs"}, "0 0 * * * *", 2, []string{"backup", "--period=0 0 * * * *", "--num-backups=2", "/docs"}, false},
		{[]string{"7"}, "", 0, nil, true},
		{nil, "1d", 0, nil, true},
	}
	for _, tt := range tests {
		got, err := SetWords(tt.args, tt.period, tt.num)
		if (err != nil) != tt.wantErr {
			t.Errorf("SetWords(%v, %q, %d): expected error %v, got %v", tt.args, tt.period, tt.num, tt.wantErr, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SetWords(%v, %q, %d): expected %v, got %v", tt.args, tt.period, tt.num, tt.want, got)
		}
	}
}
