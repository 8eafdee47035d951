package render

// RunStyle captures inline run formatting. Size is in half-points.
type RunStyle struct {
	Bold   bool
	Italic bool
	Size   int
	Color  string
}

// Page and font settings shared by the résumé and cover letter.
const (
	FontName = "Georgia"
	BodySize = 22 // 11pt

	HeadingColor = "1F2937"
	HeadingSize  = 26
	NameSize     = 28

	// Margins in twentieths of a point: 0.75in top/bottom, 1.0in left/right.
	MarginTopBottom = 1080
	MarginLeftRight = 1440
)

// StyleMap centralizes the formatting of key résumé elements.
var StyleMap = map[string]RunStyle{
	"name": {
		Bold: true,
		Size: NameSize,
	},
	"sectionHeading": {
		Bold:  true,
		Size:  HeadingSize,
		Color: HeadingColor,
	},
	"roleLine": {
		Bold: true,
	},
}
