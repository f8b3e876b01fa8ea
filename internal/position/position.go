// Package position decides where floating UI (the editor popover and the
// hover/selection labels) is drawn relative to an annotated element.
//
// Everything here is a pure function of its inputs.
package position

import "github.com/bluefermion/annotator/internal/model"

// Gap is the distance in pixels between a target and a panel placed outside it.
const Gap = 8

// DefaultPanel is the editor popover footprint used when the host does not report one.
var DefaultPanel = model.Size{Width: 320, Height: 260}

// DefaultLabel is the footprint of a hover/selection label.
var DefaultLabel = model.Size{Width: 160, Height: 24}

// Elements below any of these thresholds count as small.
const (
	SmallArea   = 15000
	SmallHeight = 80
	SmallWidth  = 150
)

// Popover anchors a panel of the given size to target. Placements are tried in
// order top, right, bottom; the first side with room for the whole panel plus
// Gap wins. Otherwise the panel is inset into the target's own box.
// The result is always clamped so the panel's origin stays inside the viewport.
func Popover(target model.Rect, vp model.Viewport, panel model.Size) model.Anchor {
	if panel.Width <= 0 || panel.Height <= 0 {
		panel = DefaultPanel
	}

	var top, left float64
	var placement model.Placement

	switch {
	case target.Y >= panel.Height+Gap:
		placement = model.PlacementTop
		top = target.Y - panel.Height - Gap
		left = target.X
	case vp.Width-target.Right() >= panel.Width+Gap:
		placement = model.PlacementRight
		top = target.Y
		left = target.Right() + Gap
	case vp.Height-target.Bottom() >= panel.Height+Gap:
		placement = model.PlacementBottom
		top = target.Bottom() + Gap
		left = target.X
	default:
		// inset: hang the panel from the target's top edge
		placement = model.PlacementBottom
		top = target.Y + Gap
		left = target.X + Gap
	}

	top = clamp(top, 0, vp.Height-panel.Height)
	left = clamp(left, 0, vp.Width-panel.Width)

	return model.Anchor{
		Top:       top,
		Left:      left,
		XOffset:   left - target.X,
		YOffset:   top - target.Y,
		Placement: placement,
	}
}

// IsSmall reports whether r is small enough that a label drawn inside it would
// cover most of the element.
func IsSmall(r model.Rect) bool {
	return r.Area() < SmallArea || r.Height < SmallHeight || r.Width < SmallWidth
}

// Label picks where to draw the name label of target. Large elements get the
// label inside; small ones get it outside, on the first side with room.
func Label(target model.Rect, vp model.Viewport, label model.Size) model.LabelPlacement {
	if !IsSmall(target) {
		return model.LabelInside
	}
	if label.Width <= 0 || label.Height <= 0 {
		label = DefaultLabel
	}
	switch {
	case target.Y >= label.Height:
		return model.LabelTopLeftOutside
	case vp.Width-target.Right() >= label.Width:
		return model.LabelRightOutside
	case vp.Height-target.Bottom() >= label.Height:
		return model.LabelBottomOutside
	default:
		return model.LabelInside
	}
}

// clamp bounds v to [lo, hi]. A panel larger than the viewport (hi < lo) is
// pinned to lo.
func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if v > hi {
		return hi
	}
	if v < lo {
		return lo
	}
	return v
}
