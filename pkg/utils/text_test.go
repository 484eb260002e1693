package utils

import (
	"reflect"
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
}

func TestSplitTrim(t *testing.T) {
	got := SplitTrim("Lower prices ; Coffee beans", ";")
	want := []string{"Lower prices", "Coffee beans"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitTrim = %q, want %q", got, want)
	}
	if got := SplitTrim("single", ";"); len(got) != 1 {
		t.Errorf("SplitTrim without separator = %q", got)
	}
}
