// Package modstore owns the set of installed mods for one game
// profile. Mods live as plain directories under the profile's mods
// dir, one per mod, with a .tmm.toml metadata file at each mod root.
// The store is the only component that creates or destroys mod
// files; everything else references mods by ModID.
package modstore
