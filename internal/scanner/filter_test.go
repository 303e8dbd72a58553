package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMightContain(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		target string
		want   bool
	}{
		{name: "marker usage", text: "@Entity class A {}", target: "Entity", want: true},
		{name: "usage with arguments", text: `@Entity("x") class A {}`, target: "Entity", want: true},
		{name: "qualified usage", text: "@javax.persistence.Entity class A {}", target: "Entity", want: true},
		{name: "name without at sign", text: "class Entity {}", target: "Entity", want: false},
		{name: "other annotation", text: "@Service class A {}", target: "Entity", want: false},
		{name: "case differs", text: "@entity class A {}", target: "Entity", want: false},
		{name: "inside comment still passes", text: "// @Entity\nclass A {}", target: "Entity", want: true},
		{name: "whitespace after at sign", text: "@ Entity class A {}", target: "Entity", want: true},
		{name: "newline after at sign", text: "@\nEntity class A {}", target: "Entity", want: true},
		{name: "comment after at sign", text: "@/* c */Entity class A {}", target: "Entity", want: true},
		{name: "name without any at sign", text: "// Entity\nclass A {}", target: "Entity", want: false},
		{name: "empty target", text: "@Entity class A {}", target: "", want: false},
		{name: "empty text", text: "", target: "Entity", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MightContain([]byte(tt.text), tt.target))
		})
	}
}
