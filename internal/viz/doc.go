// Package viz draws a running world in the terminal.
//
// A [Model] steps a [world.World] on every tick and renders the surfaces
// of its scene as a braille wireframe next to the Newton statistics of
// recent frames. [App] puts a preset picker in front of it.
//
// # Key Bindings
//
//	Space - Pause/Resume stepping
//	N     - Advance one frame
//	D     - Dump the current frame
//	[ ]   - Recover the previous/next dumped frame
//	C     - Run the sanity checker
//	O     - Write surfaces as OBJ
//	G     - Toggle GIF recording
//	T     - Cycle color themes
//	?     - Show help overlay
//
// Recordings and OBJ files are written to [Options].OutDir.
package viz
