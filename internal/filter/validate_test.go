package filter_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranshuparmar/sockwatch/internal/filter"
)

func TestValidate(t *testing.T) {
	t.Run(
		"nil root", func(t *testing.T) {
			n, err := filter.Validate(nil)
			require.NoError(t, err)
			assert.Equal(t, 0, n)
		},
	)

	t.Run(
		"counts distinct nodes", func(t *testing.T) {
			tests := []struct {
				name  string
				root  *filter.Node
				count int
			}{
				{"leaf", filter.Eq(filter.SideDst, 80), 1},
				{"or", filter.Eq(filter.SideDst, 80).Or(filter.Eq(filter.SideSrc, 80)), 3},
				{"not", filter.Ge(filter.SideSrc, 1024).Not(), 2},
				{
					"nested",
					filter.Ge(filter.SideSrc, 1024).Not().And(
						filter.Le(filter.SideDst, 9000).Or(filter.Eq(filter.SideDst, 22)),
					),
					6,
				},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					n, err := filter.Validate(tt.root)
					require.NoError(t, err)
					assert.Equal(t, tt.count, n)
				})
			}
		},
	)

	t.Run(
		"structurally equal subtrees are distinct nodes", func(t *testing.T) {
			root := filter.Eq(filter.SideDst, 80).Or(filter.Eq(filter.SideDst, 80))
			n, err := filter.Validate(root)
			require.NoError(t, err)
			assert.Equal(t, 3, n)
		},
	)

	t.Run(
		"shared instance", func(t *testing.T) {
			leaf := filter.Eq(filter.SideDst, 80)
			_, err := filter.Validate(leaf.Or(leaf))
			require.Error(t, err)
			assert.ErrorIs(t, err, filter.ErrCircularReference)
		},
	)

	t.Run(
		"cycle", func(t *testing.T) {
			root := filter.Eq(filter.SideDst, 80).And(filter.Eq(filter.SideSrc, 80))
			root.Right = root
			_, err := filter.Validate(root)
			assert.ErrorIs(t, err, filter.ErrCircularReference)

			var verr *filter.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, filter.OpAnd, verr.Op)
		},
	)

	t.Run(
		"shape", func(t *testing.T) {
			leaf := func() *filter.Node { return filter.Eq(filter.SideSrc, 1) }
			tests := []struct {
				name string
				root *filter.Node
				err  error
			}{
				{"missing op", &filter.Node{Side: filter.SideSrc, Port: 1}, filter.ErrOpRequired},
				{"missing side", &filter.Node{Op: filter.OpEQ, Port: 1}, filter.ErrSideRequired},
				{"and without right", &filter.Node{Op: filter.OpAnd, Left: leaf()}, filter.ErrOperandRequired},
				{"or without left", &filter.Node{Op: filter.OpOr, Right: leaf()}, filter.ErrOperandRequired},
				{"not without operand", &filter.Node{Op: filter.OpNot}, filter.ErrOperandRequired},
				{"not with two operands", &filter.Node{Op: filter.OpNot, Left: leaf(), Right: leaf()}, filter.ErrOperandRedundant},
				{"bad child", leaf().And(&filter.Node{Op: filter.OpLE}), filter.ErrSideRequired},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					_, err := filter.Validate(tt.root)
					assert.ErrorIs(t, err, tt.err)
				})
			}
		},
	)
}

func TestNode_Match(t *testing.T) {
	web := filter.Eq(filter.SideDst, 80).Or(filter.Eq(filter.SideSrc, 80))

	// A: local 5000 -> remote 80, B: local 22 -> remote 9999
	assert.True(t, web.Match(5000, 80))
	assert.False(t, web.Match(22, 9999))

	var all *filter.Node
	assert.True(t, all.Match(1, 2))

	ephemeral := filter.Ge(filter.SideSrc, 32768).And(filter.Le(filter.SideSrc, 60999))
	assert.True(t, ephemeral.Match(40000, 443))
	assert.False(t, ephemeral.Match(22, 443))
	assert.True(t, ephemeral.Not().Match(22, 443))
}

func TestNode_Clone(t *testing.T) {
	orig := filter.Eq(filter.SideDst, 80).Or(filter.Eq(filter.SideSrc, 80))
	c := orig.Clone()
	require.Equal(t, orig, c)

	orig.Left.Port = 443
	orig.Right = nil
	assert.Equal(t, uint16(80), c.Left.Port)
	assert.NotNil(t, c.Right)

	n, err := filter.Validate(c)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
