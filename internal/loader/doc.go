// Package loader reads declarative scene definitions from YAML.
//
// The source is a single file or a directory of *.yaml / *.yml files.
// Each file holds a list of scene items (or a single mapping):
//
//	- id: evening
//	  name: Evening
//	  icon: mdi:weather-night
//	  entities:
//	    light.lounge:
//	      state: "on"
//	      brightness: 90
//	    light.hall: "on"
//	    switch.fountain: false
//
// Per-entity values are normalised: a mapping carries a state plus
// attributes, a bare scalar is the desired state, and booleans become
// on/off. Items without an entities mapping are skipped, and duplicate
// scene ids keep the first occurrence.
//
// The loader is stateless between calls: every Load re-reads the source,
// which is what makes runtime reloads pick up edits.
package loader
