package skip

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/communes/pkg/batch/support/util/exception"
)

func TestSkipPolicy_Limits(t *testing.T) {
	factory := NewDefaultSkipPolicyFactory()

	unlimited, err := factory.Create(UnlimitedSkips, nil)
	require.NoError(t, err)
	assert.True(t, unlimited.CanSkip(0))
	assert.True(t, unlimited.CanSkip(1_000_000))

	none, err := factory.Create(0, nil)
	require.NoError(t, err)
	assert.False(t, none.CanSkip(0))

	ten, err := factory.Create(10, nil)
	require.NoError(t, err)
	assert.True(t, ten.CanSkip(9), "the tenth skip is allowed")
	assert.False(t, ten.CanSkip(10), "the eleventh skip is not")
	assert.Equal(t, 10, ten.GetSkipLimit())

	_, err = factory.Create(-2, nil)
	assert.Error(t, err)
}

func TestSkipPolicy_ShouldSkip(t *testing.T) {
	p, err := NewDefaultSkipPolicyFactory().Create(UnlimitedSkips, []string{"sql.ErrNoRows"})
	require.NoError(t, err)

	assert.True(t, p.ShouldSkip(exception.NewBatchError("reader", "bad line", nil, true, false)))
	assert.True(t, p.ShouldSkip(fmt.Errorf("lookup: %w", exception.NewBatchError("reader", "x", nil, true, false))))
	assert.False(t, p.ShouldSkip(exception.NewBatchError("reader", "fatal", nil, false, false)))
	assert.False(t, p.ShouldSkip(errors.New("boom")))
	assert.False(t, p.ShouldSkip(nil))
	assert.False(t, p.ShouldSkip(exception.NewSkipLimitExceededError("s", 1, exception.NewBatchError("r", "x", nil, true, false))))

	assert.False(t, NeverSkip().CanSkip(0))
}
