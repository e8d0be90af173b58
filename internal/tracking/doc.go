// Package tracking maintains the live set of sensor-tracked anchors and their
// overlay labels. A single event loop applies Added, Updated and Removed events
// in arrival order; each addition launches an independent translation task whose
// result is applied only if the anchor it was started for still exists.
package tracking
