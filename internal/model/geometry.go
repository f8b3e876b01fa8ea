package model

// Rect is a viewport-relative rectangle as reported by the browser
// (getBoundingClientRect). X/Y are the left/top edges in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Area returns the rectangle's area in square pixels.
func (r Rect) Area() float64 { return r.Width * r.Height }

// Viewport is the visible browser window size.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Size is the footprint of a floating panel or label.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Placement names the side of the target a floating panel is attached to.
type Placement string

const (
	PlacementTop    Placement = "top"
	PlacementBottom Placement = "bottom"
	PlacementLeft   Placement = "left"
	PlacementRight  Placement = "right"
)

// Anchor is the computed screen position of a floating panel.
// XOffset/YOffset are measured from the target's top-left corner.
type Anchor struct {
	Top       float64   `json:"top"`
	Left      float64   `json:"left"`
	XOffset   float64   `json:"xOffset"`
	YOffset   float64   `json:"yOffset"`
	Placement Placement `json:"placement"`
}

// LabelPlacement is where a hover/selection label is drawn relative to its element.
type LabelPlacement string

const (
	LabelTopLeftOutside LabelPlacement = "top-left-outside"
	LabelRightOutside   LabelPlacement = "right-outside"
	LabelBottomOutside  LabelPlacement = "bottom-outside"
	LabelInside         LabelPlacement = "inside"
)
