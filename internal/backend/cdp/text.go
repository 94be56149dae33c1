package cdp

import (
	"github.com/xkilldash9x/hmi-harness/api/schemas"
	"github.com/xkilldash9x/hmi-harness/internal/vision"
)

// collectTextJS lists every visible, non-empty text node and the value of
// button-like inputs with their viewport rectangles.
const collectTextJS = `(() => {
	const out = [];
	const push = (text, r) => {
		text = (text || '').trim();
		if (!text || r.width === 0 || r.height === 0) return;
		out.push({text, x1: Math.round(r.left), y1: Math.round(r.top), x2: Math.round(r.right), y2: Math.round(r.bottom)});
	};
	const visible = (el) => {
		if (!el) return true;
		const s = window.getComputedStyle(el);
		return s.display !== 'none' && s.visibility !== 'hidden' && s.opacity !== '0';
	};
	if (!document.body) return out;
	const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
	const range = document.createRange();
	while (walker.nextNode()) {
		const node = walker.currentNode;
		if (!visible(node.parentElement)) continue;
		range.selectNodeContents(node);
		push(node.textContent, range.getBoundingClientRect());
	}
	for (const el of document.querySelectorAll('input[type=button], input[type=submit], input[placeholder]')) {
		if (!visible(el)) continue;
		push(el.value || el.placeholder, el.getBoundingClientRect());
	}
	return out;
})()`

type textBox struct {
	Text string `json:"text"`
	X1   int    `json:"x1"`
	Y1   int    `json:"y1"`
	X2   int    `json:"x2"`
	Y2   int    `json:"y2"`
}

func toIndex(boxes []textBox) vision.TextIndex {
	idx := make(vision.TextIndex, 0, len(boxes))
	for _, b := range boxes {
		idx = append(idx, vision.TextBox{
			Text: b.Text,
			Rect: schemas.Rectangle{P1: schemas.Point{X: b.X1, Y: b.Y1}, P2: schemas.Point{X: b.X2, Y: b.Y2}},
		})
	}
	return idx
}
