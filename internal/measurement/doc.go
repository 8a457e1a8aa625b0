// Package measurement implements on-image distance measurement with a
// user-set scale.
//
// Points are stored in percent of the image so they survive resizing. To
// compare distances they are converted into a fixed nominal frame (by
// default 1000×1000 pixels, or the scene's declared size). Calibration and
// measurement use the same frame, so a calibrated scale is meaningful for
// every later measurement on that scene.
//
// # Protocol
//
// In measure mode, two clicks make a Measurement. After StartCalibration
// the next two clicks define a known reference length; the engine derives
// pixels per meter from it and drops back to measure mode. Each measurement
// keeps the scale it was created with.
//
// Export returns the stable JSON document offered for download; SQLiteArchive
// keeps a copy of each download.
package measurement
