// Package world is the neighbourhood explorer: a static 3D layout of
// points of interest around the property.
//
// Positions are metres in a Y-up frame. Markers can be filtered by
// category, hovered, selected, or picked with a ray from the camera.
package world
