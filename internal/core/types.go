package core

// Hint tells the window how width and height passed to SetSize are meant.
type Hint int

const (
	HintNone  Hint = 0 // width and height are the default size
	HintMin   Hint = 1 // width and height are minimum bounds
	HintMax   Hint = 2 // width and height are maximum bounds
	HintFixed Hint = 3 // the user can not resize the window
)

func (h Hint) String() string {
	switch h {
	case HintNone:
		return "none"
	case HintMin:
		return "min"
	case HintMax:
		return "max"
	case HintFixed:
		return "fixed"
	}
	return "unknown"
}

// Size is the last size requested through SetSize.
type Size struct {
	Width  int
	Height int
	Hint   Hint
}
