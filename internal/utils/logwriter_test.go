package utils

import (
	"reflect"
	"testing"
)

func TestLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "single",
			in:   "broken pipe\n",
			want: []string{"broken pipe"},
		},
		{
			name: "multiple",
			in:   "first\r\n\nsecond\n  third  ",
			want: []string{"first", "second", "third"},
		},
		{
			name: "blank",
			in:   "\n \n",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lines([]byte(tt.in)); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("lines() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogEvent(t *testing.T) {
	var got []string
	w := LogEvent(func(message string) {
		got = append(got, message)
	})

	n, err := w.Write([]byte("a\nb\n"))
	if err != nil || n != 4 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}
