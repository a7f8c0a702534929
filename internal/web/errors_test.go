package web

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetErrorHintKnownCases(t *testing.T) {
	cases := []struct {
		err  string
		want string
	}{
		{"unknown table: widgets", "check the table name against GET /tables"},
		{"unknown column: nope", "check the column name against GET /tables/{name}/schema"},
		{"parse error: unexpected token", "check SQL syntax against the grammar in section 6"},
		{"table widgets already exists", "a table with this name was already created"},
		{"primary key value is reserved as an internal sentinel", "the maximum uint64 value is reserved and cannot be used as a primary key"},
		{"primary key must not be null", "the primary key column cannot be null"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, GetErrorHint(c.err))
	}
}

func TestGetErrorHintIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, "check the table name against GET /tables", GetErrorHint("UNKNOWN TABLE: widgets"))
}

func TestGetErrorHintUnknownErrorReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", GetErrorHint("some completely unrelated failure"))
}
