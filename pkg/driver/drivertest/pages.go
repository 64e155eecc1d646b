package drivertest

// VideoPage describes a YouTube style watch page for Loaders.
type VideoPage struct {
	// Consent adds the cookie consent overlay with its accept link.
	Consent bool
	// Paused sets the play button title to "Play (k)" instead of "Pause (k)".
	Paused bool
	// Omit lists player button classes to leave out.
	Omit []string
	// HiddenFor delays the player by this many lookups.
	HiddenFor int
}

// Build returns a fresh node tree for the page.
func (p VideoPage) Build() *Node {
	omitted := make(map[string]bool, len(p.Omit))
	for _, c := range p.Omit {
		omitted[c] = true
	}

	player := &Node{ID: "movie_player", Tag: "div", HiddenFor: p.HiddenFor}
	for _, class := range []string{
		"ytp-play-button",
		"ytp-next-button",
		"ytp-subtitles-button",
		"ytp-autonav-toggle-button",
		"ytp-fullscreen-button",
	} {
		if omitted[class] {
			continue
		}
		player.Children = append(player.Children, &Node{Tag: "button", Classes: []string{"ytp-button", class}})
	}

	play := FindNode(player, func(n *Node) bool { return hasClass(n, "ytp-play-button") })
	if play != nil {
		play.SetAttr("title", "Pause (k)")
		if p.Paused {
			play.SetAttr("title", "Play (k)")
		}
		play.OnClick = func(n *Node) {
			if n.Attrs["title"] == "Play (k)" {
				n.Attrs["title"] = "Pause (k)"
			} else {
				n.Attrs["title"] = "Play (k)"
			}
		}
	}

	root := &Node{Tag: "body", Children: []*Node{player}}
	if p.Consent {
		root.Children = append(root.Children, &Node{
			Tag: "ytd-consent-bump-v2-lightbox",
			Children: []*Node{
				{Tag: "a", Text: "ACCEPT ALL"},
				{Tag: "a", Text: "CUSTOMISE"},
			},
		})
	}
	return root
}

// FindNode returns the first node under root, root included, for which
// match is true.
func FindNode(root *Node, match func(*Node) bool) *Node {
	if root == nil {
		return nil
	}
	if match(root) {
		return root
	}
	for _, c := range root.Children {
		if n := FindNode(c, match); n != nil {
			return n
		}
	}
	return nil
}

// ByClass matches nodes carrying class.
func ByClass(class string) func(*Node) bool {
	return func(n *Node) bool { return hasClass(n, class) }
}

// ByText matches nodes whose text is text.
func ByText(text string) func(*Node) bool {
	return func(n *Node) bool { return n.Text == text }
}

func hasClass(n *Node, class string) bool {
	for _, c := range n.Classes {
		if c == class {
			return true
		}
	}
	return false
}
