/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package prefs

// Field names bind widgets to UIState.
const (
	FieldBits16        = "bits16"
	FieldBits8         = "bits8"
	FieldStereo        = "stereo"
	FieldMono          = "mono"
	FieldFreq44        = "freq44"
	FieldFreq22        = "freq22"
	FieldFreq11        = "freq11"
	FieldConvert8Bit   = "convert8bit"
	FieldFixLoops      = "fixloops"
	FieldModRange      = "modrange"
	FieldInterpolation = "interpolation"
	FieldFilter        = "filter"
	FieldPanAmp        = "panamp"
)

const (
	panMin  = 0.0
	panMax  = 100.0
	panStep = 1.0
)

// Kind identifies a widget type.
type Kind int

const (
	KindNotebook Kind = iota
	KindTab
	KindBox
	KindRadio
	KindCheck
	KindLabel
	KindSpin
)

func (k Kind) String() string {
	switch k {
	case KindNotebook:
		return "notebook"
	case KindTab:
		return "tab"
	case KindBox:
		return "box"
	case KindRadio:
		return "radio"
	case KindCheck:
		return "check"
	case KindLabel:
		return "label"
	case KindSpin:
		return "spin"
	default:
		return "unknown"
	}
}

// Widget is one node of the preferences layout.
type Widget struct {
	Kind  Kind
	Label string
	Field string // empty for containers and labels

	// Horizontal and Framed apply to boxes.
	Horizontal bool
	Framed     bool

	// Spin range.
	Min, Max, Step float64

	Children []Widget
	Tabs     []Tab
}

// Tab is one notebook page.
type Tab struct {
	Label   string
	Widgets []Widget
}

var radioGroups = [][]string{
	{FieldBits16, FieldBits8},
	{FieldStereo, FieldMono},
	{FieldFreq44, FieldFreq22, FieldFreq11},
}

func radioGroupOf(field string) []string {
	for _, group := range radioGroups {
		for _, f := range group {
			if f == field {
				return group
			}
		}
	}
	return nil
}

func radio(label, field string) Widget {
	return Widget{Kind: KindRadio, Label: label, Field: field}
}

func check(label, field string) Widget {
	return Widget{Kind: KindCheck, Label: label, Field: field}
}

func framed(label string, children ...Widget) Widget {
	return Widget{Kind: KindBox, Label: label, Framed: true, Children: children}
}

// Layout returns the preferences dialog: a notebook with a quality tab
// and an options tab.
func Layout() []Widget {
	quality := Widget{Kind: KindBox, Framed: true, Children: []Widget{
		{Kind: KindBox, Horizontal: true, Framed: true, Children: []Widget{
			framed("Resolution",
				radio("16 bit", FieldBits16),
				radio("8 bit", FieldBits8)),
			framed("Channels",
				radio("Stereo", FieldStereo),
				radio("Mono", FieldMono)),
		}},
		{Kind: KindBox, Framed: true, Children: []Widget{
			framed("Sampling rate",
				radio("44 kHz", FieldFreq44),
				radio("22 kHz", FieldFreq22),
				radio("11 kHz", FieldFreq11)),
		}},
	}}

	options := Widget{Kind: KindBox, Children: []Widget{
		check("Convert 16 bit samples to 8 bit", FieldConvert8Bit),
		check("Fix sample loops", FieldFixLoops),
		check("Force 3 octave range in standard MOD files", FieldModRange),
		check("Enable 32-bit linear interpolation", FieldInterpolation),
		check("Enable IT filters", FieldFilter),
		{Kind: KindLabel, Label: "Pan amplitude (%)"},
		{Kind: KindSpin, Field: FieldPanAmp, Min: panMin, Max: panMax, Step: panStep},
	}}

	return []Widget{{
		Kind: KindNotebook,
		Tabs: []Tab{
			{Label: "Quality", Widgets: []Widget{quality}},
			{Label: "Options", Widgets: []Widget{options}},
		},
	}}
}

// Walk visits every widget depth-first. Notebook pages are reported as
// KindTab widgets ahead of their contents.
func Walk(widgets []Widget, fn func(w Widget, depth int)) {
	walk(widgets, 0, fn)
}

func walk(widgets []Widget, depth int, fn func(Widget, int)) {
	for _, w := range widgets {
		fn(w, depth)
		for _, tab := range w.Tabs {
			fn(Widget{Kind: KindTab, Label: tab.Label}, depth+1)
			walk(tab.Widgets, depth+2, fn)
		}
		walk(w.Children, depth+1, fn)
	}
}
