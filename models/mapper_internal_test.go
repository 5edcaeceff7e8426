package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveURL(t *testing.T) {
	cases := []struct {
		name string
		base string
		path string
		want string
	}{
		{"relative joined", "https://cdn.example.com/", "img/a.jpg", "https://cdn.example.com/img/a.jpg"},
		{"slash collapse", "https://cdn.example.com", "/img/a.jpg", "https://cdn.example.com/img/a.jpg"},
		{"absolute untouched", "https://cdn.example.com/", "https://other.example.com/b.png", "https://other.example.com/b.png"},
		{"empty path", "https://cdn.example.com/", "", ""},
		{"default base", "", "img/a.jpg", "https://united-cube.com/img/a.jpg"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, resolveURL(tc.base, tc.path))
		})
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "a.jpg", fileName("https://cdn.example.com/img/a.jpg"))
	assert.Equal(t, "img", fileName("https://cdn.example.com/img/"))
	assert.Equal(t, "", fileName(""))
}

func TestParseTimeFormats(t *testing.T) {
	want := time.Date(2021, 6, 7, 8, 9, 10, 0, time.UTC)

	assert.Equal(t, want, parseTime("2021-06-07T08:09:10Z"))
	assert.Equal(t, want, parseTime("2021-06-07T08:09:10").UTC())
	assert.Equal(t, want, parseTime("2021-06-07 08:09:10").UTC())
	assert.True(t, parseTime("seven past eight").IsZero())
	assert.True(t, parseTime("").IsZero())
}
