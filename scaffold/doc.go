// Package scaffold downloads interface definitions and generates starter
// guest projects.
//
// References are written "name@release":
//
//	ref, _ := scaffold.ParseInterfaceAtRelease("keyvalue@v0.2.0")
//	path, err := scaffold.NewFetcher("", logger).Fetch(ctx, ref, "wit")
//
// New renders one of the embedded templates ("c" or "rust") into a fresh
// project directory.
package scaffold
