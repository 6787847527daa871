package main

import (
	"testing"

	"github.com/cnclabs/kgekit/pkg/estimate"
	"github.com/stretchr/testify/assert"
)

func TestParseQuery(t *testing.T) {
	assert.Equal(t, estimate.Query{Head: "A", Relation: "r", Tail: "?"}, parseQuery("A r ?"))
	assert.Equal(t, estimate.Query{Head: "A", Relation: "r", Tail: "?"}, parseQuery("  A   r "))
	assert.Equal(t, estimate.Query{Head: "?", Relation: "r", Tail: "B"}, parseQuery("? r B extra"))
}
