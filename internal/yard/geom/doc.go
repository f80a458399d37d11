// Package geom holds the planar geometry shared by the yard fusion engine:
// world positions, pixel bounding boxes, homography projection from a
// camera's ground plane into facility metres, rectangular zones and
// trajectory heading.
//
// World frame: metres in a facility-local ground plane, +y pointing into
// the facility. Headings are compass style, 0 = north (+y), clockwise.
package geom
