package flamegraph

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/mwiater/cgbench/internal/callgrind"
)

const (
	imageWidth  = 1200
	frameHeight = 16
	fontSize    = 12
	fontWidth   = 0.59
	xPad        = 10
	footer      = 24
)

type renderOptions struct {
	Title     string
	Subtitle  string
	CountName string
	Direction Direction
	MinWidth  float64
	Negate    bool
}

// frame is a node of the merged stack tree. value is the width count, base
// and current are only set for differential corpora.
type frame struct {
	name     string
	value    uint64
	base     uint64
	current  uint64
	children []*frame
	index    map[string]*frame
}

func (f *frame) child(name string) *frame {
	if c, ok := f.index[name]; ok {
		return c
	}
	c := &frame{name: name, index: map[string]*frame{}}
	f.index[name] = c
	f.children = append(f.children, c)
	return c
}

func (f *frame) depth() int {
	d := 0
	for _, c := range f.children {
		d = max(d, c.depth()+1)
	}
	return d
}

func (f *frame) sortChildren() {
	sort.Slice(f.children, func(i, j int) bool { return f.children[i].name < f.children[j].name })
	for _, c := range f.children {
		c.sortChildren()
	}
}

// buildTree merges folded lines into a tree below the synthetic root "all".
func buildTree(lines []string, differential, negate bool) (*frame, error) {
	root := &frame{name: "all", index: map[string]*frame{}}
	for _, line := range lines {
		n := 1
		if differential {
			n = 2
		}
		// Counts are the trailing space separated fields; frame names may
		// contain spaces.
		stack := strings.TrimRight(line, " ")
		counts := make([]uint64, n)
		for i := n - 1; i >= 0; i-- {
			j := strings.LastIndexByte(stack, ' ')
			if j <= 0 {
				return nil, fmt.Errorf("invalid folded stack line %q", line)
			}
			v, err := strconv.ParseUint(stack[j+1:], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid count in folded stack line %q", line)
			}
			counts[i] = v
			stack = stack[:j]
		}

		var value, base, current uint64
		if differential {
			base, current = counts[0], counts[1]
			value = current
			if negate {
				value = base
			}
		} else {
			value = counts[0]
		}

		nodes := []*frame{root}
		node := root
		for _, name := range strings.Split(stack, ";") {
			node = node.child(name)
			nodes = append(nodes, node)
		}
		for _, n := range nodes {
			n.value += value
			n.base += base
			n.current += current
		}
	}
	root.sortChildren()
	return root, nil
}

type svgRenderer struct {
	opts         renderOptions
	differential bool
	total        uint64
	maxDepth     int
	maxDelta     float64
	header       int
	buf          bytes.Buffer
}

// render writes the SVG of lines to w. Differential lines carry a base and
// a new count.
func render(w io.Writer, lines []string, differential bool, opts renderOptions) error {
	if len(lines) == 0 {
		return fmt.Errorf("unable to create a flamegraph: %w", ErrNoStacks)
	}
	root, err := buildTree(lines, differential, opts.Negate)
	if err != nil {
		return err
	}
	if root.value == 0 {
		return fmt.Errorf("unable to create a flamegraph: %w", ErrNoStacks)
	}

	r := &svgRenderer{opts: opts, differential: differential, total: root.value, maxDepth: root.depth()}
	if differential {
		r.maxDelta = maxDelta(root, opts.Negate)
	}
	r.header = 34
	if opts.Subtitle != "" {
		r.header += 18
	}
	height := r.header + (r.maxDepth+1)*frameHeight + footer

	fmt.Fprintf(&r.buf, `<?xml version="1.0" standalone="no"?>
<!DOCTYPE svg PUBLIC "-//W3C//DTD SVG 1.1//EN" "http://www.w3.org/Graphics/SVG/1.1/DTD/svg11.dtd">
<svg version="1.1" width="%d" height="%d" viewBox="0 0 %d %d" xmlns="http://www.w3.org/2000/svg">
<rect x="0" y="0" width="%d" height="%d" fill="#f8f8f8"/>
`, imageWidth, height, imageWidth, height, imageWidth, height)
	fmt.Fprintf(&r.buf, `<text x="%d" y="24" font-size="17" font-family="Verdana" text-anchor="middle">%s</text>`+"\n",
		imageWidth/2, escape(opts.Title))
	if opts.Subtitle != "" {
		fmt.Fprintf(&r.buf, `<text x="%d" y="44" font-size="%d" font-family="Verdana" fill="#a0a0a0" text-anchor="middle">%s</text>`+"\n",
			imageWidth/2, fontSize, escape(opts.Subtitle))
	}

	r.drawFrame(root, 0, 0)

	fmt.Fprintf(&r.buf, `<text x="%d" y="%d" font-size="%d" font-family="Verdana">Total: %d %s</text>`+"\n",
		xPad, height-8, fontSize, root.value, escape(opts.CountName))
	r.buf.WriteString("</svg>\n")

	_, err = w.Write(r.buf.Bytes())
	return err
}

func maxDelta(f *frame, negate bool) float64 {
	m := math.Abs(delta(f, negate))
	for _, c := range f.children {
		m = math.Max(m, maxDelta(c, negate))
	}
	return m
}

func delta(f *frame, negate bool) float64 {
	d := float64(f.current) - float64(f.base)
	if negate {
		return -d
	}
	return d
}

func (r *svgRenderer) drawFrame(f *frame, offset uint64, depth int) {
	usable := float64(imageWidth - 2*xPad)
	width := float64(f.value) / float64(r.total) * usable
	if width < r.opts.MinWidth {
		return
	}
	x := xPad + float64(offset)/float64(r.total)*usable
	row := depth
	if r.opts.Direction == BottomToTop {
		row = r.maxDepth - depth
	}
	y := r.header + row*frameHeight

	pct := float64(f.value) / float64(r.total) * 100
	tooltip := fmt.Sprintf("%s (%d %s, %.2f%%)", f.name, f.value, r.opts.CountName, pct)
	if r.differential {
		tooltip = fmt.Sprintf("%s (%d %s, %.2f%%; %s)", f.name, f.value, r.opts.CountName, pct,
			callgrind.PercentageDiff(f.current, f.base))
	}

	fmt.Fprintf(&r.buf, `<g><title>%s</title><rect x="%.2f" y="%d" width="%.2f" height="%d" fill="%s" rx="2" ry="2"/>`,
		escape(tooltip), x, y, width, frameHeight-1, r.color(f))
	if chars := int(width / (fontSize * fontWidth)); chars >= 3 {
		fmt.Fprintf(&r.buf, `<text x="%.2f" y="%.1f" font-size="%d" font-family="Verdana">%s</text>`,
			x+3, float64(y)+10.5, fontSize, escape(truncate(f.name, chars)))
	}
	r.buf.WriteString("</g>\n")

	childOffset := offset
	for _, c := range f.children {
		r.drawFrame(c, childOffset, depth+1)
		childOffset += c.value
	}
}

func (r *svgRenderer) color(f *frame) string {
	if !r.differential {
		return warmColor(f.name)
	}
	d := delta(f, r.opts.Negate)
	if d == 0 || r.maxDelta == 0 {
		return "rgb(250,250,250)"
	}
	c := int(210 * math.Abs(d) / r.maxDelta)
	if d > 0 {
		return fmt.Sprintf("rgb(255,%d,%d)", 255-c, 255-c)
	}
	return fmt.Sprintf("rgb(%d,%d,255)", 255-c, 255-c)
}

// warmColor derives a stable red to yellow colour from the frame name.
func warmColor(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	sum := h.Sum32()
	v1 := float64(sum&0xff) / 255
	v2 := float64((sum>>8)&0xff) / 255
	v3 := float64((sum>>16)&0xff) / 255
	return fmt.Sprintf("rgb(%d,%d,%d)", 205+int(50*v3), int(230*v1), int(55*v2))
}

func truncate(s string, chars int) string {
	runes := []rune(s)
	if len(runes) <= chars {
		return s
	}
	return string(runes[:chars-2]) + ".."
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
