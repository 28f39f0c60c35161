package validation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationErrNilWhenEmpty(t *testing.T) {
	var n Notification
	assert.False(t, n.HasErrors())
	assert.NoError(t, n.Err("anything"))
}

func TestNotificationKeepsInsertionOrder(t *testing.T) {
	var n Notification
	n.Append("first")
	n.Appendf("'%s' should not be null or empty", "sku")
	n.Append("third")

	err := n.Err("invalid item")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, "invalid item", f.Message)
	assert.Equal(t, []string{"first", "'sku' should not be null or empty", "third"}, f.Messages())
	assert.Equal(t, "invalid item: first; 'sku' should not be null or empty; third", err.Error())
}

func TestNotificationMergeFlattensFailures(t *testing.T) {
	inner := New("invalid address", "'city' should not be null or empty")
	wrapped := fmt.Errorf("build address: %w", inner)

	var n Notification
	n.Append("outer")
	n.Merge(wrapped)
	n.Merge(errors.New("plain"))
	n.Merge(nil)

	assert.Equal(t, []Error{
		{Message: "outer"},
		{Message: "'city' should not be null or empty"},
		{Message: "plain"},
	}, n.Errors())
}

func TestErrorsReturnsCopy(t *testing.T) {
	var n Notification
	n.Append("a")
	errs := n.Errors()
	errs[0].Message = "mutated"
	assert.Equal(t, "a", n.Errors()[0].Message)
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(""))
	assert.True(t, IsBlank("  \t"))
	assert.False(t, IsBlank(" x "))
}
