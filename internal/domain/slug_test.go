package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain title", in: "Hello, World!", want: "hello-world"},
		{name: "diacritics", in: "Crème Brûlée à la Carte", want: "creme-brulee-a-la-carte"},
		{name: "collapses separators", in: "  --a--  b__c  ", want: "a-b-c"},
		{name: "digits kept", in: "Go 1.25 Release", want: "go-1-25-release"},
		{name: "already a slug", in: "my-first-post", want: "my-first-post"},
		{name: "nothing usable", in: "!!!", want: ""},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}
