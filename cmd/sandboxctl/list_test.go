package main

import "testing"

func TestFormatSize(t *testing.T) {
	cases := map[int64]string{
		0:                  "0B",
		1023:               "1023B",
		1024:               "1.0KiB",
		1536:               "1.5KiB",
		1024 * 1024:        "1.0MiB",
		1024 * 1024 * 1024: "1.0GiB",
	}
	for in, want := range cases {
		if got := formatSize(in); got != want {
			t.Errorf("formatSize(%d) = %q, want %q", in, got, want)
		}
	}
}
