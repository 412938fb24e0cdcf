package pending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deechat/mcp-core/pkg/mcp/mcperrors"
)

func TestTable_ResolveDeliversValueOnce(t *testing.T) {
	t.Parallel()

	tbl := New()
	id, wait := tbl.Register(time.Second)

	ok := tbl.Resolve(id, "hello", nil)
	require.True(t, ok)

	res := <-wait
	assert.Equal(t, "hello", res.Value)
	assert.NoError(t, res.Err)
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_ResolveUnknownIDReturnsFalse(t *testing.T) {
	t.Parallel()

	tbl := New()
	assert.False(t, tbl.Resolve(999, nil, nil))
}

func TestTable_DoubleResolveIsNoOp(t *testing.T) {
	t.Parallel()

	tbl := New()
	id, wait := tbl.Register(time.Second)

	assert.True(t, tbl.Resolve(id, 1, nil))
	assert.False(t, tbl.Resolve(id, 2, nil))

	res := <-wait
	assert.Equal(t, 1, res.Value)
}

func TestTable_TimeoutReleasesEntry(t *testing.T) {
	t.Parallel()

	tbl := New()
	before := tbl.Len()
	_, wait := tbl.Register(10 * time.Millisecond)

	res := <-wait
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, mcperrors.ErrTimeout)
	assert.Equal(t, before, tbl.Len())
}

func TestTable_CancelAllResolvesEveryEntry(t *testing.T) {
	t.Parallel()

	tbl := New()
	_, wait1 := tbl.Register(time.Minute)
	_, wait2 := tbl.Register(time.Minute)

	cancelErr := mcperrors.New(mcperrors.KindCanceled, assertErr)
	tbl.CancelAll(cancelErr)

	r1 := <-wait1
	r2 := <-wait2
	assert.ErrorIs(t, r1.Err, mcperrors.ErrCanceled)
	assert.ErrorIs(t, r2.Err, mcperrors.ErrCanceled)
	assert.Equal(t, 0, tbl.Len())
}

var assertErr = mcperrors.ErrCanceled
