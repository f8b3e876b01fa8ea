package position

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bluefermion/annotator/internal/model"
)

var desktop = model.Viewport{Width: 1280, Height: 800}

func TestPopover_PrefersTop(t *testing.T) {
	target := model.Rect{X: 400, Y: 500, Width: 200, Height: 40}

	got := Popover(target, desktop, DefaultPanel)
	assert.Equal(t, model.PlacementTop, got.Placement)
	assert.Equal(t, 500-DefaultPanel.Height-Gap, got.Top)
	assert.Equal(t, 400.0, got.Left)
	assert.Equal(t, got.Top-target.Y, got.YOffset)
	assert.Equal(t, 0.0, got.XOffset)
}

func TestPopover_FallsBackRightThenBottom(t *testing.T) {
	right := Popover(model.Rect{X: 100, Y: 20, Width: 200, Height: 40}, desktop, DefaultPanel)
	assert.Equal(t, model.PlacementRight, right.Placement)
	assert.Equal(t, 300.0+Gap, right.Left)

	bottom := Popover(model.Rect{X: 1000, Y: 20, Width: 250, Height: 40}, desktop, DefaultPanel)
	assert.Equal(t, model.PlacementBottom, bottom.Placement)
	assert.Equal(t, 60.0+Gap, bottom.Top)
	// clamped so the panel does not run off the right edge
	assert.Equal(t, desktop.Width-DefaultPanel.Width, bottom.Left)
}

func TestPopover_TopNeedsRoomForGap(t *testing.T) {
	target := model.Rect{X: 100, Y: DefaultPanel.Height + Gap/2, Width: 200, Height: 40}

	got := Popover(target, desktop, DefaultPanel)
	assert.Equal(t, model.PlacementRight, got.Placement)
	assert.Equal(t, target.Y, got.Top)
}

func TestPopover_InsetWhenNoSideFits(t *testing.T) {
	vp := model.Viewport{Width: 1000, Height: 800}
	// plenty of room on the left, none above, right or below
	target := model.Rect{X: 700, Y: 10, Width: 300, Height: 750}

	got := Popover(target, vp, DefaultPanel)
	assert.Equal(t, model.PlacementBottom, got.Placement)
	assert.Equal(t, target.Y+Gap, got.Top)
	assert.Equal(t, vp.Width-DefaultPanel.Width, got.Left)
	assert.GreaterOrEqual(t, got.Left, target.X-DefaultPanel.Width)
	assert.LessOrEqual(t, got.Top+DefaultPanel.Height, vp.Height)
}

func TestPopover_CornerStaysInsideViewport(t *testing.T) {
	vp := model.Viewport{Width: 400, Height: 300}
	target := model.Rect{X: 0, Y: 0, Width: 390, Height: 290}

	got := Popover(target, vp, DefaultPanel)
	assert.GreaterOrEqual(t, got.Top, 0.0)
	assert.GreaterOrEqual(t, got.Left, 0.0)
	assert.LessOrEqual(t, got.Top, vp.Height)
	assert.LessOrEqual(t, got.Left, vp.Width)
}

func TestPopover_PanelLargerThanViewport(t *testing.T) {
	vp := model.Viewport{Width: 200, Height: 150}
	got := Popover(model.Rect{X: 10, Y: 10, Width: 50, Height: 20}, vp, DefaultPanel)
	assert.Equal(t, 0.0, got.Left)
	assert.Equal(t, 0.0, got.Top)
}

func TestPopover_ZeroPanelUsesDefault(t *testing.T) {
	target := model.Rect{X: 400, Y: 500, Width: 200, Height: 40}
	assert.Equal(t, Popover(target, desktop, DefaultPanel), Popover(target, desktop, model.Size{}))
}

func TestIsSmall(t *testing.T) {
	tests := []struct {
		name string
		rect model.Rect
		want bool
	}{
		{"large card", model.Rect{Width: 300, Height: 200}, false},
		{"short bar", model.Rect{Width: 1000, Height: 40}, true},
		{"narrow column", model.Rect{Width: 100, Height: 400}, true},
		{"small area", model.Rect{Width: 150, Height: 90}, true},
		{"threshold", model.Rect{Width: 150, Height: 100}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSmall(tt.rect))
		})
	}
}

func TestLabel(t *testing.T) {
	assert.Equal(t, model.LabelInside, Label(model.Rect{X: 10, Y: 10, Width: 400, Height: 300}, desktop, DefaultLabel))
	assert.Equal(t, model.LabelTopLeftOutside, Label(model.Rect{X: 10, Y: 100, Width: 80, Height: 30}, desktop, DefaultLabel))
	assert.Equal(t, model.LabelRightOutside, Label(model.Rect{X: 10, Y: 0, Width: 80, Height: 30}, desktop, DefaultLabel))
	assert.Equal(t, model.LabelBottomOutside, Label(model.Rect{X: 1200, Y: 0, Width: 80, Height: 30}, desktop, DefaultLabel))
	assert.Equal(t, model.LabelInside, Label(model.Rect{X: 0, Y: 0, Width: 1280, Height: 79}, model.Viewport{Width: 1280, Height: 80}, DefaultLabel))
}
