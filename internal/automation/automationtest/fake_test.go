package automationtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/commentbot/internal/automation"
)

func TestClearRequiresEditableElement(t *testing.T) {
	ctx := context.Background()
	box := automation.XPath("box", "//textarea")
	button := automation.XPath("button", "//button")

	f := New()
	f.Show(box.Value, button.Value)
	f.SetValue(box.Value, "draft")

	err := f.Clear(ctx, box)
	assert.True(t, errors.Is(err, automation.ErrNotEditable))
	assert.Equal(t, "draft", f.Value(box.Value))

	f.Editable(box.Value)
	require.NoError(t, f.Clear(ctx, box))
	assert.Empty(t, f.Value(box.Value))

	err = f.Clear(ctx, button)
	assert.True(t, errors.Is(err, automation.ErrNotEditable))
}

func TestEditableSurvivesReset(t *testing.T) {
	ctx := context.Background()
	box := automation.Tag("box", "textarea")

	f := New()
	f.Editable(box.Value)
	f.Reset()

	err := f.Clear(ctx, box)
	assert.True(t, errors.Is(err, automation.ErrElementNotFound), "absent elements are not found")

	f.Show(box.Value)
	assert.NoError(t, f.Clear(ctx, box))
}
